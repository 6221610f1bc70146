package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"mentions/internal/document"
	"mentions/internal/render"
)

type Config struct {
	// MaxLength is the flat-text length past which a warning is reported.
	MaxLength  int `json:"max_length" mapstructure:"max_length"`
	QueryLimit int `json:"query_limit" mapstructure:"query_limit"`
	DebounceMs int `json:"debounce_ms" mapstructure:"debounce_ms"`
	// Categories offered on completion, in display order.
	Categories []string `json:"categories" mapstructure:"categories"`

	Routes render.Routes `json:"routes" mapstructure:"routes"`

	CatalogPath string `json:"catalog_path" mapstructure:"catalog_path"`
	CatalogDir  string `json:"catalog_dir" mapstructure:"catalog_dir"` // imported on startup
	StorePath   string `json:"store_path" mapstructure:"store_path"`
	SearchLimit int    `json:"search_limit" mapstructure:"search_limit"`
	CacheSize   int    `json:"cache_size" mapstructure:"cache_size"`

	AutosaveMinutes int    `json:"autosave_minutes" mapstructure:"autosave_minutes"`
	PreviewAddr     string `json:"preview_addr" mapstructure:"preview_addr"`
}

var defaultConfig = Config{
	MaxLength:       2000,
	QueryLimit:      50,
	DebounceMs:      300,
	Categories:      []string{"creature", "move", "item", "ability"},
	Routes:          render.DefaultRoutes(),
	SearchLimit:     10,
	CacheSize:       256,
	AutosaveMinutes: 1,
}

// Default returns a copy of the default configuration.
func Default() Config {
	cfg := defaultConfig
	cfg.Categories = append([]string(nil), defaultConfig.Categories...)
	return cfg
}

func Load(v any) (Config, error) {
	return Merge(Default(), v)
}

// Merge overwrites the fields of base present in v, a JSON-marshalable
// value such as LSP initialization options.
func Merge(base Config, v any) (Config, error) {
	cfg := base
	cfg.Categories = append([]string(nil), base.Categories...)

	data, err := json.Marshal(v)
	if err != nil {
		return Config{}, fmt.Errorf("failed to marshal source: %w", err)
	}

	// only fields present in src will overwrite.
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal into Config: %w", err)
	}

	return cfg, cfg.Validate()
}

// LoadFromJSON reads JSON from r into a Config.
func LoadFromJSON(r io.Reader) (Config, error) {
	cfg := Default()

	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.MaxLength <= 0 {
		errs = append(errs, fmt.Errorf("max_length must be positive, got %d", c.MaxLength))
	}
	if c.QueryLimit <= 0 {
		errs = append(errs, fmt.Errorf("query_limit must be positive, got %d", c.QueryLimit))
	}
	if c.DebounceMs < 0 {
		errs = append(errs, fmt.Errorf("debounce_ms must not be negative, got %d", c.DebounceMs))
	}
	if _, err := c.CategoryList(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// CategoryList parses Categories. An empty list means every category.
func (c Config) CategoryList() ([]document.Category, error) {
	if len(c.Categories) == 0 {
		return document.Categories, nil
	}
	out := make([]document.Category, 0, len(c.Categories))
	for _, name := range c.Categories {
		cat, err := document.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	return out, nil
}

func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func (c Config) AutosaveInterval() time.Duration {
	return time.Duration(c.AutosaveMinutes) * time.Minute
}
