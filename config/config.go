// Package config loads the service configuration and the declarative route
// rules, and builds the routing table from them.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/sciplat/usher/hooks"
	"github.com/sciplat/usher/routing"
)

const (
	DefaultAddress     = ":8080"
	DefaultUserHeader  = "X-Auth-Request-User"
	DefaultTokenHeader = "X-Auth-Request-Token"
	DefaultPathPrefix  = "/usher"
)

// RouteDef is one declarative routing rule. Hooks are referred to by name
// and resolved against the hook registry when the table is built.
type RouteDef struct {
	Source string   `yaml:"source"`
	Target string   `yaml:"target"`
	Hooks  []string `yaml:"hooks"`
}

// Config is the service configuration. Timeouts are given in seconds.
type Config struct {
	Address       string `yaml:"address"`
	BaseURL       string `yaml:"base-url"`
	PathPrefix    string `yaml:"path-prefix"`
	UserHeader    string `yaml:"user-header"`
	TokenHeader   string `yaml:"token-header"`
	LogLevel      string `yaml:"log-level"`
	HTTPTimeout   int64  `yaml:"http-timeout"`
	SpawnTimeout  int64  `yaml:"spawn-timeout"`
	ShutdownDelay int64  `yaml:"shutdown-delay"`

	// Routes may be given inline or in a separate routes file; the file
	// wins when both are set.
	Routes     []RouteDef `yaml:"routes"`
	RoutesFile string     `yaml:"routes-file"`

	// Hook settings.
	SpawnerTarget  string   `yaml:"spawner-target"`
	GithubAPI      string   `yaml:"github-api"`
	NotebookOwners []string `yaml:"notebook-owners"`
	TutorialOwner  string   `yaml:"tutorial-owner"`
	TutorialRepo   string   `yaml:"tutorial-repo"`
	TutorialRef    string   `yaml:"tutorial-ref"`

	SystemTestOwner string `yaml:"system-test-owner"`
	SystemTestRepo  string `yaml:"system-test-repo"`
	SystemTestRef   string `yaml:"system-test-ref"`
}

// New returns a configuration with the defaults applied.
func New() *Config {
	return &Config{
		Address:     DefaultAddress,
		PathPrefix:  DefaultPathPrefix,
		UserHeader:  DefaultUserHeader,
		TokenHeader: DefaultTokenHeader,
		LogLevel:    "info",
	}
}

// Load reads a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	c := New()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.UnmarshalStrict(raw, c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("base-url %q is not an absolute URL", c.BaseURL)
	}
	return nil
}

// HTTPTimeoutDuration returns the HTTP timeout; zero means the client
// default.
func (c *Config) HTTPTimeoutDuration() time.Duration {
	return time.Duration(c.HTTPTimeout) * time.Second
}

// SpawnTimeoutDuration returns the lab spawn timeout; zero means the client
// default.
func (c *Config) SpawnTimeoutDuration() time.Duration {
	return time.Duration(c.SpawnTimeout) * time.Second
}

// ShutdownDelayDuration returns the delay before graceful shutdown.
func (c *Config) ShutdownDelayDuration() time.Duration {
	return time.Duration(c.ShutdownDelay) * time.Second
}

// routesFile is the shape of a standalone routes file.
type routesFile struct {
	Routes []RouteDef `yaml:"routes"`
}

// LoadRoutes returns the configured route definitions, reading the routes
// file if one is set.
func (c *Config) LoadRoutes() ([]RouteDef, error) {
	if c.RoutesFile == "" {
		return c.Routes, nil
	}
	raw, err := os.ReadFile(c.RoutesFile)
	if err != nil {
		return nil, err
	}
	var f routesFile
	if err := yaml.UnmarshalStrict(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing routes file %s: %w", c.RoutesFile, err)
	}
	return f.Routes, nil
}

// BuildTable resolves the hook names of every route definition against the
// registry and builds the routing table. Unknown hook names and incomplete
// definitions fail here, at load time, not on first use.
func BuildTable(defs []RouteDef, registry hooks.Registry) (*routing.Table, error) {
	rules := make([]*routing.Rule, 0, len(defs))
	for _, def := range defs {
		if def.Source == "" || def.Target == "" {
			return nil, fmt.Errorf("route %+v needs both source and target", def)
		}
		ruleHooks := make([]routing.Hook, 0, len(def.Hooks))
		for _, name := range def.Hooks {
			h, err := registry.Lookup(name)
			if err != nil {
				return nil, fmt.Errorf("route %s: %w", def.Source, err)
			}
			ruleHooks = append(ruleHooks, h)
		}
		rules = append(rules, routing.NewRule(def.Source, def.Target, ruleHooks...))
	}
	return routing.NewTable(rules...), nil
}

// HookOptions derives the builtin hook configuration.
func (c *Config) HookOptions() hooks.Options {
	return hooks.Options{
		SpawnerTarget:  c.SpawnerTarget,
		SpawnTimeout:   c.SpawnTimeoutDuration(),
		GithubAPI:      c.GithubAPI,
		NotebookOwners: c.NotebookOwners,
		TutorialOwner:  c.TutorialOwner,
		TutorialRepo:   c.TutorialRepo,
		TutorialRef:    c.TutorialRef,

		SystemTestOwner: c.SystemTestOwner,
		SystemTestRepo:  c.SystemTestRepo,
		SystemTestRef:   c.SystemTestRef,
	}
}
