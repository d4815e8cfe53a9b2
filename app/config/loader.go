package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and validation of the feed source file
type Loader struct {
	path string
}

// NewLoader creates a new configuration loader
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load reads and validates the feed source file
func (l *Loader) Load() (*FeedsFile, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds file: %w", err)
	}

	var file FeedsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse feeds file: %w", err)
	}

	l.setDefaults(&file)

	if err := l.validate(&file); err != nil {
		return nil, fmt.Errorf("invalid feeds file %s: %w", l.path, err)
	}

	return &file, nil
}

func (l *Loader) setDefaults(file *FeedsFile) {
	if file.Defaults.TimeoutSeconds == 0 {
		file.Defaults.TimeoutSeconds = 5
	}
	if file.Defaults.MaxItemsPerFeed == 0 {
		file.Defaults.MaxItemsPerFeed = 3
	}
}

func (l *Loader) validate(file *FeedsFile) error {
	seen := make(map[string]bool, len(file.Feeds))
	for i, source := range file.Feeds {
		if source.ID == "" {
			return fmt.Errorf("feed at index %d: id is required", i)
		}
		if source.URL == "" {
			return fmt.Errorf("feed %s: url is required", source.ID)
		}
		if source.Name == "" {
			return fmt.Errorf("feed %s: name is required", source.ID)
		}
		if seen[source.ID] {
			return fmt.Errorf("duplicate feed id: %s", source.ID)
		}
		seen[source.ID] = true
	}

	if file.Defaults.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	if file.Defaults.MaxItemsPerFeed < 0 {
		return fmt.Errorf("max items per feed must be non-negative")
	}

	return nil
}
