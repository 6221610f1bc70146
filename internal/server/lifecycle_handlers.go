package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"mentions/internal/config"
	"mentions/internal/manager"
	"mentions/internal/scanner"
	"mentions/internal/scheduler"
	"mentions/internal/search"
	"mentions/internal/store"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) initialize(
	context *glsp.Context,
	params *protocol.InitializeParams,
) (any, error) {
	// Config
	cfg, err := config.Merge(s.config, params.InitializationOptions)
	if err != nil {
		return nil, fmt.Errorf("invalid initialization options: %w", err)
	}
	s.config = cfg
	log.Infof("Config: %+v", cfg)

	// Databases live in the state dir unless configured.
	var root string
	if params.RootURI != nil {
		if u, err := url.Parse(*params.RootURI); err == nil {
			root = u.Path
		}
	}
	if err := s.setup(root); err != nil {
		return nil, err
	}

	syncKind := protocol.TextDocumentSyncKindIncremental

	capabilities := s.handler.CreateServerCapabilities()
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
		Save:      &protocol.SaveOptions{IncludeText: &protocol.False},
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"@"},
	}
	capabilities.ExecuteCommandProvider = &protocol.ExecuteCommandOptions{
		Commands: []string{CommandCommit, CommandCancel, CommandKey, CommandPreview, CommandSerialize},
	}
	if cfg.Routes.Base == "" {
		capabilities.DocumentLinkProvider = nil
		capabilities.DefinitionProvider = nil
	}

	version := "0.1.0"
	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    Name,
			Version: &version,
		},
	}, nil
}

// Paths resolves the document store and catalog locations. Unset paths
// default to the XDG state dir; documents are kept per workspace root.
func Paths(cfg config.Config, root string) (storePath, catalogPath string, err error) {
	stateDir := ""
	if cfg.StorePath == "" || cfg.CatalogPath == "" {
		if stateDir, err = getXDGStateHome(Name); err != nil {
			return "", "", err
		}
	}
	storePath = cfg.StorePath
	if storePath == "" {
		dir, err := ensureDir(filepath.Join(stateDir, url.PathEscape(root)))
		if err != nil {
			return "", "", err
		}
		storePath = filepath.Join(dir, "documents.db")
	}
	catalogPath = cfg.CatalogPath
	if catalogPath == "" {
		catalogPath = filepath.Join(stateDir, "catalog.db")
	}
	return storePath, catalogPath, nil
}

// setup opens the databases, starts the scheduler and wires the manager.
// root is the workspace path; documents are stored per workspace.
func (s *Server) setup(root string) error {
	cfg := s.config

	storePath, catalogPath, err := Paths(cfg, root)
	if err != nil {
		return err
	}

	st, err := store.Open(storePath)
	if err != nil {
		return err
	}
	catalog, err := search.OpenCatalog(catalogPath, cfg.SearchLimit)
	if err != nil {
		st.Close()
		return err
	}
	provider, err := search.NewCached(catalog, cfg.CacheSize)
	if err != nil {
		st.Close()
		catalog.Close()
		return err
	}
	categories, err := cfg.CategoryList()
	if err != nil {
		st.Close()
		catalog.Close()
		return err
	}

	s.store, s.catalog, s.provider = st, catalog, provider
	s.scheduler = scheduler.NewScheduler()
	s.manager = manager.NewDocumentManager(manager.Options{
		Provider:   provider,
		Scheduler:  s.scheduler,
		Store:      st,
		MaxLength:  cfg.MaxLength,
		QueryLimit: cfg.QueryLimit,
		Debounce:   cfg.Debounce(),
		Categories: categories,
	})
	s.manager.Subscribe(s.publishPreview)
	log.Infof("Documents in %s, catalog in %s.", storePath, catalogPath)

	// Catalog directory import.
	if cfg.CatalogDir != "" {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			report, err := scanner.Import(context.Background(), cfg.CatalogDir, catalog)
			if err != nil {
				log.Errorf("catalog import failed: %v", err)
				return
			}
			for _, e := range report.Errors {
				log.Warningf("catalog import: %v", e)
			}
			provider.Purge()
		}()
	}

	// Start autosave routine.
	if interval := cfg.AutosaveInterval(); interval > 0 {
		s.scheduler.SchedulePeriodicTask(interval, scheduler.Task{
			Name:    "autosave",
			Execute: s.manager.SaveAll,
		})
	}
	return nil
}

func (s *Server) initialized(
	context *glsp.Context,
	params *protocol.InitializedParams,
) error {
	log.Info("Client initialized.")
	return nil
}

func (s *Server) setTrace(
	context *glsp.Context,
	params *protocol.SetTraceParams,
) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

func (s *Server) shutdown(context *glsp.Context) error {
	return s.close()
}

func (s *Server) close() error {
	protocol.SetTraceValue(protocol.TraceValueOff)
	if s.manager == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	errs = append(errs, s.manager.CloseAll(ctx))
	s.scheduler.Stop()
	s.wg.Wait()

	s.previewMu.Lock()
	if s.preview != nil {
		errs = append(errs, s.preview.Shutdown(ctx))
		s.preview = nil
	}
	s.previewMu.Unlock()

	errs = append(errs, s.store.Close(), s.catalog.Close())
	s.manager = nil
	return errors.Join(errs...)
}
