package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"mentions/internal/document"
	"mentions/internal/render"
	"mentions/internal/scanner"
	"mentions/internal/search"
	"mentions/internal/server"
	"mentions/internal/store"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	faintStyle  = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E3350D"))
)

func lspCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Serve the language server over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.New(cfg).RunStdio()
		},
	}
}

func paths() (string, string, error) {
	return server.Paths(cfg, root)
}

func renderCmd() *cobra.Command {
	var (
		format string
		file   bool
	)
	cmd := &cobra.Command{
		Use:   "render <uri|file>",
		Short: "Render a stored document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var stored string
			if file {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				stored = string(data)
			} else {
				storePath, _, err := paths()
				if err != nil {
					return err
				}
				st, err := store.OpenReadonly(storePath, 1000)
				if err != nil {
					return err
				}
				defer st.Close()
				if stored, err = st.Load(cmd.Context(), args[0]); err != nil {
					return err
				}
			}

			nodes := render.Nodes(document.Deserialize(stored), cfg.Routes)
			out := cmd.OutOrStdout()
			switch format {
			case "html":
				html, err := render.HTML(nodes)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, html)
			case "ansi":
				fmt.Fprintln(out, render.ANSI(nodes, lipgloss.NewRenderer(out)))
			case "text":
				fmt.Fprintln(out, render.Plain(nodes))
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "ansi", "output format: ansi, html or text")
	cmd.Flags().BoolVar(&file, "file", false, "read the serialized document from a file")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Import YAML/JSON catalog files into the catalog database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, catalogPath, err := paths()
			if err != nil {
				return err
			}
			catalog, err := search.OpenCatalog(catalogPath, cfg.SearchLimit)
			if err != nil {
				return err
			}
			defer catalog.Close()

			start := time.Now()
			report, err := scanner.Import(cmd.Context(), args[0], catalog)
			if err != nil {
				return err
			}
			total, err := catalog.Count(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %d entries from %d files in %s (%d skipped)\n",
				headerStyle.Render("imported"), report.Entries, report.Files,
				time.Since(start).Round(time.Millisecond), report.Skipped)
			for _, e := range report.Errors {
				fmt.Fprintln(out, errorStyle.Render(e.Error()))
			}
			fmt.Fprintln(out, faintStyle.Render(fmt.Sprintf("%d entries in %s", total, catalogPath)))
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, catalogPath, err := paths()
			if err != nil {
				return err
			}
			catalog, err := search.OpenCatalog(catalogPath, cfg.SearchLimit)
			if err != nil {
				return err
			}
			defer catalog.Close()

			categories, err := cfg.CategoryList()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			res, err := catalog.Search(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			r := lipgloss.NewRenderer(out)
			for _, category := range categories {
				candidates := res.Of(category)
				if len(candidates) == 0 {
					continue
				}
				fmt.Fprintln(out, headerStyle.Render(category.String()))
				for _, c := range candidates {
					tok, err := c.Token()
					if err != nil {
						continue
					}
					chip := render.ANSI([]render.Node{render.Chip(tok, cfg.Routes)}, r)
					fmt.Fprintf(out, "  %s %s\n", chip, faintStyle.Render(fmt.Sprintf("#%d", c.ID)))
				}
			}
			if res.Len() == 0 {
				fmt.Fprintln(out, faintStyle.Render("no matches"))
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <uri>",
		Short: "List the saved revisions of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storePath, _, err := paths()
			if err != nil {
				return err
			}
			st, err := store.OpenReadonly(storePath, 1000)
			if err != nil {
				return err
			}
			defer st.Close()

			revisions, err := st.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, rev := range revisions {
				nodes := render.Nodes(document.Deserialize(rev.Content), cfg.Routes)
				fmt.Fprintf(out, "%s %s\n  %s\n",
					headerStyle.Render(rev.ID),
					faintStyle.Render(rev.CreatedAt.Format(time.RFC3339)),
					render.Plain(nodes))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of revisions, 0 for all")
	return cmd
}

func revertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revert <uri> <revision>",
		Short: "Restore a saved revision of a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			storePath, _, err := paths()
			if err != nil {
				return err
			}
			st, err := store.Open(storePath)
			if err != nil {
				return err
			}
			defer st.Close()

			content, err := st.Revert(cmd.Context(), args[0], args[1])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no revision %s for %s", args[1], args[0])
			} else if err != nil {
				return err
			}
			nodes := render.Nodes(document.Deserialize(content), cfg.Routes)
			fmt.Fprintln(cmd.OutOrStdout(), render.Plain(nodes))
			return nil
		},
	}
}
