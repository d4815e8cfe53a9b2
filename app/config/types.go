package config

// FeedsFile represents the full feed source configuration file
type FeedsFile struct {
	Defaults Defaults       `yaml:"defaults"`
	Feeds    []Source       `yaml:"feeds"`
	Fallback []FallbackItem `yaml:"fallback"`
}

// Source describes one configured feed origin. Loaded once at startup and
// immutable for the lifetime of the process.
type Source struct {
	ID       string `yaml:"id"`
	URL      string `yaml:"url"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Language string `yaml:"language"`
	Enabled  *bool  `yaml:"enabled"`
}

// Defaults contains settings applied to every feed source
type Defaults struct {
	TimeoutSeconds  int  `yaml:"timeout_seconds"`
	MaxItemsPerFeed int  `yaml:"max_items_per_feed"`
	Enabled         bool `yaml:"enabled"`
}

// FallbackItem is a static seed headline served when the store has no items
// for today and the fallback flag is enabled
type FallbackItem struct {
	Headline   string `yaml:"headline"`
	Summary    string `yaml:"summary"`
	SourceName string `yaml:"source_name"`
	SourceURL  string `yaml:"source_url"`
	Category   string `yaml:"category"`
}

// IsEnabled reports whether the source participates in ingestion, falling
// back to the file-level default when the source does not set it.
func (s *Source) IsEnabled(defaults Defaults) bool {
	if s.Enabled != nil {
		return *s.Enabled
	}
	return defaults.Enabled
}
