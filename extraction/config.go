package extraction

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigYAML []byte

// Config holds the data-driven heuristics: classifier thresholds, junk strings, and the
// design-feature rules used by the markdown report.
type Config struct {
	MinRunes int `yaml:"min_runes"`

	// Junk replaces the default junk set when present in a user file.
	Junk []string `yaml:"junk"`

	// ExtraJunk is appended to Junk; use it to extend the defaults.
	ExtraJunk []string `yaml:"extra_junk,omitempty"`

	// RowJunk maps a case id to filler strings that only apply to that row.
	RowJunk map[string][]string `yaml:"row_junk"`

	Features []FeatureRule `yaml:"features"`
}

// DefaultConfig returns a fresh copy of the embedded defaults.
func DefaultConfig() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		panic(fmt.Sprintf("extraction: embedded default config: %v", err))
	}
	return cfg
}

// LoadConfig reads a YAML config on top of the defaults. An empty path or a missing file
// yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("LoadConfig: read: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("LoadConfig: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("LoadConfig: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.MinRunes < 0 {
		return errors.New("min_runes must be >= 0")
	}
	for i, r := range c.Features {
		if r.Label == "" {
			return fmt.Errorf("features[%d]: missing label", i)
		}
		if len(r.Any) == 0 && len(r.All) == 0 {
			return fmt.Errorf("features[%d] (%s): needs any or all", i, r.Label)
		}
	}
	return nil
}

// Save writes the config as YAML.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("Save: mkdir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("Save: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("Save: write: %w", err)
	}
	return nil
}

// Classifier builds the text classifier described by the config.
func (c Config) Classifier() *Classifier {
	junk := make([]string, 0, len(c.Junk)+len(c.ExtraJunk))
	junk = append(junk, c.Junk...)
	junk = append(junk, c.ExtraJunk...)

	cl := NewClassifier(c.MinRunes, junk)
	for caseID, fragments := range c.RowJunk {
		cl.addRowJunk(caseID, fragments)
	}
	return cl
}
