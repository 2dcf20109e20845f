package lessonscan

import (
	"github.com/hazyhaar/a11ywatch/lessonscan/internal/config"
)

// Config is the top-level lessonscan configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// BudgetConfig bounds one session.
type BudgetConfig = config.BudgetConfig

// SuggestConfig locates the suggestion backend.
type SuggestConfig = config.SuggestConfig

// SinkConfig defines an event output.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}
