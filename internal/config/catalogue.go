package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

//go:embed tasks.yaml
var defaultCatalogue []byte

// Catalogue holds the ordered task prompts for both categories.
type Catalogue struct {
	Regular  []string `yaml:"regular"`
	Romantic []string `yaml:"romantic"`
}

// LoadCatalogue reads the task catalogue from Tasks.CatalogueFile, or the
// embedded default when unset, and trims it to the configured counts.
func LoadCatalogue(cfg *Config) (*Catalogue, error) {
	data := defaultCatalogue
	if cfg.Tasks.CatalogueFile != "" {
		b, err := os.ReadFile(cfg.Tasks.CatalogueFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read %s: %w", cfg.Tasks.CatalogueFile, err)
		}
		data = b
	}

	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unable to parse task catalogue: %w", err)
	}

	if cfg.Tasks.RegularCount <= 0 || cfg.Tasks.RomanticCount <= 0 {
		return nil, fmt.Errorf("task counts must be positive, got regular=%d romantic=%d",
			cfg.Tasks.RegularCount, cfg.Tasks.RomanticCount)
	}
	if len(c.Regular) < cfg.Tasks.RegularCount {
		return nil, fmt.Errorf("catalogue has %d regular prompts, need %d", len(c.Regular), cfg.Tasks.RegularCount)
	}
	if len(c.Romantic) < cfg.Tasks.RomanticCount {
		return nil, fmt.Errorf("catalogue has %d romantic prompts, need %d", len(c.Romantic), cfg.Tasks.RomanticCount)
	}
	for i, p := range c.Regular {
		if p == "" {
			return nil, fmt.Errorf("regular prompt at index %d is empty", i)
		}
	}
	for i, p := range c.Romantic {
		if p == "" {
			return nil, fmt.Errorf("romantic prompt at index %d is empty", i)
		}
	}

	c.Regular = c.Regular[:cfg.Tasks.RegularCount]
	c.Romantic = c.Romantic[:cfg.Tasks.RomanticCount]
	return &c, nil
}
