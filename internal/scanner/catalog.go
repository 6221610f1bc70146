package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"mentions/internal/document"
	"mentions/internal/search"

	"gopkg.in/yaml.v3"
)

// Entry is one entity of a catalog file. Fields a category does not use
// are ignored.
type Entry struct {
	ID             int    `yaml:"id"`
	Name           string `yaml:"name"`
	Sprite         string `yaml:"sprite"`
	NationalNumber int    `yaml:"national_number"`
	Type           string `yaml:"type"`
	Class          string `yaml:"class"`
}

// File is the layout of a catalog file. JSON files use the same keys.
type File struct {
	Creatures []Entry `yaml:"creatures"`
	Pokemon   []Entry `yaml:"pokemon"` // legacy alias of creatures
	Moves     []Entry `yaml:"moves"`
	Items     []Entry `yaml:"items"`
	Abilities []Entry `yaml:"abilities"`
}

// Candidates converts the file's entries in category order.
func (f File) Candidates() []search.Candidate {
	var out []search.Candidate
	add := func(cat document.Category, entries []Entry) {
		for _, e := range entries {
			out = append(out, e.candidate(cat))
		}
	}
	add(document.CategoryCreature, f.Creatures)
	add(document.CategoryCreature, f.Pokemon)
	add(document.CategoryMove, f.Moves)
	add(document.CategoryItem, f.Items)
	add(document.CategoryAbility, f.Abilities)
	return out
}

func (e Entry) candidate(cat document.Category) search.Candidate {
	c := search.Candidate{Category: cat, ID: e.ID, Name: strings.TrimSpace(e.Name)}
	switch cat {
	case document.CategoryCreature:
		c.Icon, c.SecondaryID = e.Sprite, e.NationalNumber
	case document.CategoryMove:
		c.Kind, c.Class = e.Type, e.Class
	case document.CategoryItem:
		c.Icon = e.Sprite
	}
	return c
}

// Parse decodes a YAML or JSON catalog file.
func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return f, nil
}

// IsCatalogFile reports whether path has a catalog extension.
func IsCatalogFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// Upserter stores catalog entries.
type Upserter interface {
	Upsert(ctx context.Context, entries ...search.Candidate) error
}

// Report summarizes an import. Invalid files and entries are skipped and
// listed in Errors.
type Report struct {
	Files   int
	Entries int
	Skipped int
	Errors  []error
}

func (r Report) Err() error {
	return errors.Join(r.Errors...)
}

// Import scans root for catalog files and upserts their valid entries.
// The returned error is only set when root cannot be walked.
func Import(ctx context.Context, root string, dst Upserter) (Report, error) {
	var report Report
	skip := func(path string, info fs.FileInfo) bool {
		return !IsCatalogFile(path)
	}
	err := Scan(ctx, root, skip, func(path string, contents []byte) {
		if ctx.Err() != nil {
			return
		}
		f, err := Parse(contents)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("%s: %w", path, err))
			return
		}
		report.Files++

		var valid []search.Candidate
		for _, c := range f.Candidates() {
			if _, err := c.Token(); err != nil {
				report.Skipped++
				report.Errors = append(report.Errors, fmt.Errorf("%s: %s %q: %w", path, c.Category, c.Name, err))
				continue
			}
			valid = append(valid, c)
		}
		if len(valid) == 0 {
			return
		}
		if err := dst.Upsert(ctx, valid...); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("%s: %w", path, err))
			return
		}
		report.Entries += len(valid)
	})
	if err != nil {
		return report, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	log.Infof("imported %d entries from %d catalog files under %s", report.Entries, report.Files, root)
	return report, nil
}
