// Package config handles lessonscan configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level lessonscan configuration.
type Config struct {
	Browser    BrowserConfig    `yaml:"browser"`
	Axe        AxeConfig        `yaml:"axe"`
	Heuristics HeuristicsConfig `yaml:"heuristics"`
	Detector   DetectorConfig   `yaml:"detector"`
	Budget     BudgetConfig     `yaml:"budget"`
	Suggest    SuggestConfig    `yaml:"suggest"`
	Store      StoreConfig      `yaml:"store"`
	HTTP       HTTPConfig       `yaml:"http"`
	Sinks      []SinkConfig     `yaml:"sinks"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string         `yaml:"remote"`
	MemoryLimit      int64          `yaml:"memory_limit"`
	RecycleInterval  time.Duration  `yaml:"recycle_interval"`
	ResourceBlocking []string       `yaml:"resource_blocking"`
	Mode             string         `yaml:"mode"` // headless | headful
	XvfbDisplay      string         `yaml:"xvfb_display"`
	NavTimeout       time.Duration  `yaml:"nav_timeout"`
	Viewport         ViewportConfig `yaml:"viewport"`
}

// ViewportConfig is the emulated device.
type ViewportConfig struct {
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	ScaleFactor float64 `yaml:"scale_factor"`
	Mobile      bool    `yaml:"mobile"`
}

// AxeConfig locates the axe-core bundle.
type AxeConfig struct {
	Script string   `yaml:"script"`
	Tags   []string `yaml:"tags"`
}

// HeuristicsConfig holds UI/UX thresholds. Zero values take defaults.
type HeuristicsConfig struct {
	Disabled       bool          `yaml:"disabled"`
	MinTouchTarget float64       `yaml:"min_touch_target"`
	MinFontSize    float64       `yaml:"min_font_size"`
	MaxCLS         float64       `yaml:"max_cls"`
	MaxLCP         time.Duration `yaml:"max_lcp"`
	MaxINP         time.Duration `yaml:"max_inp"`
	MaxNodes       int           `yaml:"max_nodes"`
}

// DetectorConfig controls screen-change debouncing.
type DetectorConfig struct {
	URLDelay    time.Duration `yaml:"url_delay"`
	TitleDelay  time.Duration `yaml:"title_delay"`
	DOMDelay    time.Duration `yaml:"dom_delay"`
	MinInserted int           `yaml:"min_inserted"`
}

// BudgetConfig bounds one lesson session.
type BudgetConfig struct {
	MaxScreens         int `yaml:"max_screens"`
	MaxIssuesPerScreen int `yaml:"max_issues_per_screen"`
}

// SuggestConfig locates the suggestion backend.
type SuggestConfig struct {
	// URL of the backend's suggest endpoint. "local" serves suggestions
	// in-process without a network hop.
	URL                 string        `yaml:"url"`
	Timeout             time.Duration `yaml:"timeout"`
	BreakerThreshold    int           `yaml:"breaker_threshold"`
	BreakerReset        time.Duration `yaml:"breaker_reset"`
	Platform            string        `yaml:"platform"`
	PageType            string        `yaml:"page_type"`
	SpecialInstructions string        `yaml:"special_instructions"`
}

// StoreConfig locates the session history database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig controls the API server.
type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	EventBuffer  int           `yaml:"event_buffer"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SinkConfig defines an event output.
type SinkConfig struct {
	Type    string `yaml:"type"` // stdout | webhook
	URL     string `yaml:"url"`  // webhook
	Retries int    `yaml:"retries"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Axe.Script == "" {
		c.Axe.Script = "axe.min.js"
	}
	if c.Detector.URLDelay <= 0 {
		c.Detector.URLDelay = time.Second
	}
	if c.Detector.TitleDelay <= 0 {
		c.Detector.TitleDelay = time.Second
	}
	if c.Detector.DOMDelay <= 0 {
		c.Detector.DOMDelay = 1500 * time.Millisecond
	}
	if c.Detector.MinInserted <= 0 {
		c.Detector.MinInserted = 3
	}
	if c.Budget.MaxScreens <= 0 {
		c.Budget.MaxScreens = 50
	}
	if c.Budget.MaxIssuesPerScreen <= 0 {
		c.Budget.MaxIssuesPerScreen = 100
	}
	if c.Suggest.URL == "" {
		c.Suggest.URL = "http://localhost:8000/api/suggest"
	}
	if c.Suggest.Timeout <= 0 {
		c.Suggest.Timeout = 30 * time.Second
	}
	if c.Suggest.BreakerThreshold <= 0 {
		c.Suggest.BreakerThreshold = 5
	}
	if c.Suggest.BreakerReset <= 0 {
		c.Suggest.BreakerReset = 30 * time.Second
	}
	if c.Suggest.Platform == "" {
		c.Suggest.Platform = "web"
	}
	if c.Suggest.PageType == "" {
		c.Suggest.PageType = "lesson"
	}
	if c.Store.Path == "" {
		c.Store.Path = "lessonscan.db"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8090"
	}
	if c.HTTP.EventBuffer <= 0 {
		c.HTTP.EventBuffer = 64
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = 10 * time.Second
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: "stdout"}}
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "webhook" && c.Sinks[i].Retries <= 0 {
			c.Sinks[i].Retries = 3
		}
	}
}

func (c *Config) validate() error {
	switch c.Browser.Mode {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: browser.mode %q: want headless or headful", c.Browser.Mode)
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook needs url", i)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	return nil
}
