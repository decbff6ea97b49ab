package internal

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/ansuz/internal/arxiv"
	"github.com/starford/ansuz/internal/sync"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Duration wraps time.Duration so YAML configs can say "6h" or "168h".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"6h\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Store   StoreConfig       `yaml:"store"`
	Notes   NotesConfig       `yaml:"notes"`
	Arxiv   ArxivConfig       `yaml:"arxiv"`
	Sync    SyncConfig        `yaml:"sync"`
	Sources SourcesConfig     `yaml:"sources"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration. Invalid windows, caps, or source
// specs are rejected here, before any network or storage activity.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Sources.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns the HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig holds the SQLite database path.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// NotesConfig holds the Markdown notes directory. An empty path disables
// note management.
type NotesConfig struct {
	Path string `yaml:"path"`
}

// ArxivConfig holds the external source endpoint.
type ArxivConfig struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// SyncConfig holds the staleness windows and result caps. The arXiv
// documentation itself is inconsistent about sensible refetch intervals, so
// nothing here is hard-coded.
type SyncConfig struct {
	// Freshness is the window consulted by the staleness policy: a fetch
	// unit younger than this is skipped.
	Freshness Duration `yaml:"freshness"`

	// RecentWindow bounds how far back a regular (non-full) pass reaches;
	// returned articles published earlier are dropped.
	RecentWindow Duration `yaml:"recent_window"`

	// RecentMaxResults caps each remote call on a regular pass.
	RecentMaxResults int `yaml:"recent_max_results"`

	// FullMaxResults caps each remote call on a full/forced pass.
	FullMaxResults int `yaml:"full_max_results"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Freshness, validation.Required, validation.Min(Duration(time.Minute))),
		validation.Field(&c.RecentWindow, validation.Required, validation.Min(Duration(time.Hour))),
		validation.Field(&c.RecentMaxResults, validation.Required, validation.Min(1)),
		validation.Field(&c.FullMaxResults, validation.Required, validation.Min(1)),
	)
}

// FilterConfig is a named fetch unit spanning categories and/or a query.
type FilterConfig struct {
	Categories []string `yaml:"categories"`
	Query      string   `yaml:"query"`
}

// SourcesConfig holds the configured categories (label to arXiv code) and
// named filters.
type SourcesConfig struct {
	Categories map[string]string       `yaml:"categories"`
	Filters    map[string]FilterConfig `yaml:"filters"`
}

// Validate rejects empty category codes and filters with neither
// categories nor a query.
func (c *SourcesConfig) Validate() error {
	for label, code := range c.Categories {
		if code == "" {
			return fmt.Errorf("sources: category %q has an empty code", label)
		}
	}
	for name, f := range c.Filters {
		if len(f.Categories) == 0 && f.Query == "" {
			return fmt.Errorf("sources: filter %q has neither categories nor a query", name)
		}
		for _, code := range f.Categories {
			if code == "" {
				return fmt.Errorf("sources: filter %q has an empty category code", name)
			}
		}
	}
	return nil
}

// Specs resolves the configured sources into sync specs in a deterministic
// order: categories sorted by code first, then filters sorted by name.
func (c *SourcesConfig) Specs() []sync.Spec {
	specs := make([]sync.Spec, 0, len(c.Categories)+len(c.Filters))

	codes := make([]string, 0, len(c.Categories))
	labels := make(map[string]string, len(c.Categories))
	for label, code := range c.Categories {
		codes = append(codes, code)
		labels[code] = label
	}
	sort.Strings(codes)
	for _, code := range codes {
		specs = append(specs, sync.Spec{
			Key:        code,
			Label:      labels[code],
			Categories: []string{code},
		})
	}

	names := make([]string, 0, len(c.Filters))
	for name := range c.Filters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f := c.Filters[name]
		specs = append(specs, sync.Spec{
			Key:        sync.FilterKey(name),
			Label:      name,
			Categories: f.Categories,
			Query:      f.Query,
		})
	}

	return specs
}

// AuthConfig holds API authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a Config with sensible default values. The
// default sources mirror a high-energy-physics reading setup.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Path: "./ansuz.db",
		},
		Notes: NotesConfig{
			Path: "./notes",
		},
		Arxiv: ArxivConfig{
			BaseURL: arxiv.DefaultBaseURL,
			Timeout: Duration(30 * time.Second),
		},
		Sync: SyncConfig{
			Freshness:        Duration(6 * time.Hour),
			RecentWindow:     Duration(7 * 24 * time.Hour),
			RecentMaxResults: 100,
			FullMaxResults:   200,
		},
		Sources: SourcesConfig{
			Categories: map[string]string{
				"HEP Experiments":     "hep-ex",
				"HEP Theory":          "hep-th",
				"HEP Phenomenology":   "hep-ph",
				"Nuclear Experiments": "nucl-ex",
			},
			Filters: map[string]FilterConfig{
				"ALICE": {
					Categories: []string{"hep-ex", "hep-ph"},
					Query:      "ALICE",
				},
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
