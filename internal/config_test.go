package internal

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Sync.Freshness.Std() != 6*time.Hour {
		t.Errorf("Freshness = %v", cfg.Sync.Freshness.Std())
	}
	if cfg.Sync.RecentWindow.Std() != 7*24*time.Hour {
		t.Errorf("RecentWindow = %v", cfg.Sync.RecentWindow.Std())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.App.HTTP.Port = 0 }},
		{"port too large", func(c *Config) { c.App.HTTP.Port = 70000 }},
		{"empty store path", func(c *Config) { c.Store.Path = "" }},
		{"zero freshness", func(c *Config) { c.Sync.Freshness = 0 }},
		{"tiny freshness", func(c *Config) { c.Sync.Freshness = Duration(time.Second) }},
		{"zero recent cap", func(c *Config) { c.Sync.RecentMaxResults = 0 }},
		{"zero full cap", func(c *Config) { c.Sync.FullMaxResults = 0 }},
		{"empty category code", func(c *Config) { c.Sources.Categories["Broken"] = "" }},
		{"empty filter", func(c *Config) { c.Sources.Filters["broken"] = FilterConfig{} }},
		{"filter with empty code", func(c *Config) {
			c.Sources.Filters["broken"] = FilterConfig{Categories: []string{""}}
		}},
		{"token mode without token", func(c *Config) { c.Auth.Mode = AuthModeToken }},
		{"unknown auth mode", func(c *Config) { c.Auth.Mode = "basic" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate succeeded, want error")
			}
		})
	}
}

func TestSpecsAreDeterministic(t *testing.T) {
	src := SourcesConfig{
		Categories: map[string]string{
			"HEP Theory":      "hep-th",
			"HEP Experiments": "hep-ex",
		},
		Filters: map[string]FilterConfig{
			"CMS":   {Categories: []string{"hep-ex"}, Query: "CMS"},
			"ALICE": {Categories: []string{"hep-ex", "hep-ph"}, Query: "ALICE"},
		},
	}

	specs := src.Specs()
	if len(specs) != 4 {
		t.Fatalf("specs = %d, want 4", len(specs))
	}

	wantKeys := []string{"hep-ex", "hep-th", "filter_ALICE", "filter_CMS"}
	for i, want := range wantKeys {
		if specs[i].Key != want {
			t.Errorf("specs[%d].Key = %q, want %q", i, specs[i].Key, want)
		}
	}

	if specs[0].Label != "HEP Experiments" {
		t.Errorf("category label = %q", specs[0].Label)
	}
	if specs[2].Query != "ALICE" || len(specs[2].Categories) != 2 {
		t.Errorf("filter spec = %+v", specs[2])
	}
}

func TestDurationUnmarshalYAML(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte(`"36h"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Std() != 36*time.Hour {
		t.Errorf("d = %v", d.Std())
	}

	for _, bad := range []string{`"soon"`, `42`, `""`} {
		var d Duration
		if err := yaml.Unmarshal([]byte(bad), &d); err == nil {
			t.Errorf("unmarshal %s succeeded, want error", bad)
		}
	}
}

func TestConfigUnmarshalYAML(t *testing.T) {
	raw := `
app:
  log_level: 0
  http:
    port: 9090
store:
  path: /tmp/test.db
sync:
  freshness: "12h"
  recent_window: "72h"
  recent_max_results: 50
  full_max_results: 150
sources:
  categories:
    Machine Learning: cs.LG
  filters:
    transformers:
      categories: [cs.LG, cs.CL]
      query: transformer
auth:
  mode: token
  token: s3cret
`
	cfg := NewDefaultConfig()
	if err := yaml.Unmarshal([]byte(raw), cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 {
		t.Errorf("port = %d", cfg.App.HTTP.Port)
	}
	if cfg.Sync.Freshness.Std() != 12*time.Hour {
		t.Errorf("freshness = %v", cfg.Sync.Freshness.Std())
	}
	if cfg.Sources.Categories["Machine Learning"] != "cs.LG" {
		t.Errorf("categories = %v", cfg.Sources.Categories)
	}
	if !cfg.Auth.AuthEnabled() {
		t.Error("auth not enabled")
	}
	if got := cfg.App.HTTP.Address(); got != ":9090" {
		t.Errorf("Address = %q", got)
	}
}
