package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Version  int     `toml:"version"`
	Language string  `toml:"language"`
	Rules    Rules   `toml:"rules"`
	Watch    Watch   `toml:"watch"`
	Exclude  Exclude `toml:"exclude"`
	Output   Output  `toml:"output"`
	History  History `toml:"history"`
	Server   Server  `toml:"server"`
}

type Rules struct {
	// Enabled lists the rule ids to run; empty means all rules.
	Enabled []string `toml:"enabled"`
	// PromiseCalls is the allow-list of promise-returning call patterns
	// used for missing-await detection.
	PromiseCalls []string `toml:"promise_calls"`
}

type Watch struct {
	Paths    []string      `toml:"paths"`
	Debounce time.Duration `toml:"debounce"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Output struct {
	Mermaid  string `toml:"mermaid"`
	SARIF    string `toml:"sarif"`
	Markdown string `toml:"markdown"`
}

type History struct {
	Enabled    bool   `toml:"enabled"`
	Path       string `toml:"path"`
	ProjectKey string `toml:"project_key"`
}

type Server struct {
	Address      string  `toml:"address"`
	RateLimit    float64 `toml:"rate_limit"`
	Burst        int     `toml:"burst"`
	OTLPEndpoint string  `toml:"otlp_endpoint"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "javascript"
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if len(cfg.Exclude.Dirs) == 0 {
		cfg.Exclude.Dirs = []string{"node_modules", ".git"}
	}
	if strings.TrimSpace(cfg.History.Path) == "" {
		cfg.History.Path = "reviewable.db"
	}
	if strings.TrimSpace(cfg.History.ProjectKey) == "" {
		cfg.History.ProjectKey = "default"
	}
	if strings.TrimSpace(cfg.Server.Address) == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 10
	}
	if cfg.Server.Burst == 0 {
		cfg.Server.Burst = 20
	}
}

func validate(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d", cfg.Version)
	}
	switch cfg.Language {
	case "javascript", "typescript":
	default:
		return fmt.Errorf("unsupported language %q (expected javascript or typescript)", cfg.Language)
	}
	if cfg.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	if cfg.Server.Burst < 0 {
		return fmt.Errorf("server.burst must not be negative")
	}
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	for _, id := range cfg.Rules.Enabled {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("rules.enabled contains an empty rule id")
		}
	}
	return nil
}
