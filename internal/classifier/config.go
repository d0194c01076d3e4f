package classifier

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var ErrInvalidConfig = errors.New("invalid classifier config")

// Category is a weighted group of literal terms and regex patterns.
type Category struct {
	Name     string   `json:"name"`
	Weight   float64  `json:"weight"`
	Active   bool     `json:"is_active"`
	Terms    []string `json:"terms"`
	Patterns []string `json:"patterns"`
}

// Config is the full classifier configuration. Homophones maps a canonical
// token to the variants that should be rewritten to it; BoardRelaxations maps
// a board ID to the categories that board does not enforce.
type Config struct {
	Categories       []Category          `json:"categories"`
	Homophones       map[string][]string `json:"homophones"`
	BoardRelaxations map[string][]string `json:"board_relaxations"`
}

// Source loads a classifier configuration.
type Source interface {
	Load(ctx context.Context) (*Config, error)
}

// IsEmpty reports whether the config has no categories at all. A config
// whose categories are all inactive is not empty.
func (c *Config) IsEmpty() bool {
	return c == nil || len(c.Categories) == 0
}

// HasActiveCategories reports whether the config would classify anything.
func (c *Config) HasActiveCategories() bool {
	if c == nil {
		return false
	}
	for _, cat := range c.Categories {
		if cat.Active {
			return true
		}
	}
	return false
}

// Validate checks the config before it is written to the store. Patterns that
// fail to compile are rejected here; at classification time they are skipped.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		if err := cat.Validate(); err != nil {
			return err
		}
		if seen[cat.Name] {
			return fmt.Errorf("%w: duplicate category %q", ErrInvalidConfig, cat.Name)
		}
		seen[cat.Name] = true
	}
	for canonical, variants := range c.Homophones {
		if strings.TrimSpace(canonical) == "" {
			return fmt.Errorf("%w: empty homophone canonical token", ErrInvalidConfig)
		}
		for _, v := range variants {
			if strings.TrimSpace(v) == "" {
				return fmt.Errorf("%w: empty variant for %q", ErrInvalidConfig, canonical)
			}
		}
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" || len(c.Name) > 50 {
		return fmt.Errorf("%w: category name must be 1-50 characters", ErrInvalidConfig)
	}
	if c.Weight < 0 || c.Weight > 1 {
		return fmt.Errorf("%w: weight of %q must be within [0, 1]", ErrInvalidConfig, c.Name)
	}
	for _, p := range c.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: pattern %q in %q: %v", ErrInvalidConfig, p, c.Name, err)
		}
	}
	return nil
}

//go:embed default_config.json
var defaultConfigJSON []byte

// StaticSource serves a bundled snapshot, optionally overridden by a file.
type StaticSource struct {
	cfg *Config
}

// NewStaticSource parses the bundled snapshot, or the file at path when path
// is non-empty.
func NewStaticSource(path string) (*StaticSource, error) {
	data := defaultConfigJSON
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read static classifier config: %w", err)
		}
		data = b
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	return &StaticSource{cfg: cfg}, nil
}

// MustStaticSource returns the bundled snapshot and panics if it is malformed.
func MustStaticSource() *StaticSource {
	s, err := NewStaticSource("")
	if err != nil {
		panic(err)
	}
	return s
}

func (s *StaticSource) Load(_ context.Context) (*Config, error) {
	return s.cfg, nil
}

// ParseConfig decodes a JSON classifier configuration.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse classifier config: %w", err)
	}
	return &cfg, nil
}
