package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeTemp(t, `
healthcheck:
  enabled: true
  checks_enabled:
    - "^backend:"
    - "^db:"
  schedule_interval: 10m
  retries_delay: 5s
  max_retries: 3
checks:
  - name: db:postgres
    type: tcp
    target: localhost:5432
    critical: true
  - name: backend:api
    type: http
    target: http://localhost:9200/_cluster/health
    expected_status: 200
    timeout: 10s
    headers:
      Authorization: Basic abc
server:
  address: ":9090"
storage:
  path: /tmp/runs.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	hc := cfg.HealthCheck
	if !hc.Enabled {
		t.Error("expected enabled")
	}
	if len(hc.ChecksEnabled) != 2 || hc.ChecksEnabled[0] != "^backend:" {
		t.Errorf("unexpected checks_enabled: %v", hc.ChecksEnabled)
	}
	if hc.ScheduleInterval.Duration != 10*time.Minute {
		t.Errorf("unexpected schedule_interval: %s", hc.ScheduleInterval.Duration)
	}
	if hc.RetriesDelay.Duration != 5*time.Second {
		t.Errorf("unexpected retries_delay: %s", hc.RetriesDelay.Duration)
	}
	if hc.MaxRetries != 3 {
		t.Errorf("unexpected max_retries: %d", hc.MaxRetries)
	}

	if len(cfg.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(cfg.Checks))
	}
	db := cfg.Checks[0]
	if db.Name != "db:postgres" || db.Type != "tcp" || !db.Critical {
		t.Errorf("unexpected check: %+v", db)
	}
	api := cfg.Checks[1]
	if api.Timeout.Duration != 10*time.Second {
		t.Errorf("unexpected timeout: %s", api.Timeout.Duration)
	}
	if api.Headers["Authorization"] != "Basic abc" {
		t.Errorf("unexpected headers: %v", api.Headers)
	}
	if cfg.Server.Address != ":9090" {
		t.Errorf("unexpected address: %s", cfg.Server.Address)
	}
	if cfg.Storage.Path != "/tmp/runs.db" {
		t.Errorf("unexpected storage path: %s", cfg.Storage.Path)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeTemp(t, `
checks:
  - name: api
    type: http
    target: http://localhost:8080
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	hc := cfg.HealthCheck
	if !hc.Enabled {
		t.Error("enabled should default to true")
	}
	if len(hc.ChecksEnabled) != 1 || hc.ChecksEnabled[0] != ".*" {
		t.Errorf("expected default checks_enabled [.*], got %v", hc.ChecksEnabled)
	}
	if hc.ScheduleInterval.Duration != DefaultScheduleInterval {
		t.Errorf("expected %s, got %s", DefaultScheduleInterval, hc.ScheduleInterval.Duration)
	}
	if hc.RetriesDelay.Duration != DefaultRetriesDelay {
		t.Errorf("expected %s, got %s", DefaultRetriesDelay, hc.RetriesDelay.Duration)
	}
	if hc.MaxRetries != DefaultMaxRetries {
		t.Errorf("expected %d, got %d", DefaultMaxRetries, hc.MaxRetries)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("unexpected default address: %s", cfg.Server.Address)
	}
	if cfg.Storage.Path != "healthgate.db" {
		t.Errorf("unexpected default storage path: %s", cfg.Storage.Path)
	}

	api := cfg.Checks[0]
	if api.Timeout.Duration != DefaultCheckTimeout {
		t.Errorf("expected default timeout, got %s", api.Timeout.Duration)
	}
	if api.ExpectedStatus != 200 {
		t.Errorf("expected default status 200, got %d", api.ExpectedStatus)
	}
}

func TestLoad_ExplicitlyDisabled(t *testing.T) {
	path := writeTemp(t, `
healthcheck:
  enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HealthCheck.Enabled {
		t.Error("expected enabled: false to stick")
	}
}

func TestLoad_ChecksEnabledScalar(t *testing.T) {
	path := writeTemp(t, `
healthcheck:
  checks_enabled: "^backend:.*"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.HealthCheck.ChecksEnabled) != 1 || cfg.HealthCheck.ChecksEnabled[0] != "^backend:.*" {
		t.Errorf("scalar should promote to single-element list, got %v", cfg.HealthCheck.ChecksEnabled)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "interval too short",
			yaml: `
healthcheck:
  schedule_interval: 1m
`,
			wantErr: "schedule_interval",
		},
		{
			name: "interval too long",
			yaml: `
healthcheck:
  schedule_interval: 25h
`,
			wantErr: "schedule_interval",
		},
		{
			name: "retries delay too long",
			yaml: `
healthcheck:
  retries_delay: 7h
`,
			wantErr: "retries_delay",
		},
		{
			name: "negative max retries",
			yaml: `
healthcheck:
  max_retries: -1
`,
			wantErr: "max_retries",
		},
		{
			name: "bad regex",
			yaml: `
healthcheck:
  checks_enabled: "["
`,
			wantErr: "checks_enabled",
		},
		{
			name: "duplicate check names",
			yaml: `
checks:
  - name: api
    type: http
    target: http://a
  - name: api
    type: http
    target: http://b
`,
			wantErr: "duplicate check name",
		},
		{
			name: "missing target",
			yaml: `
checks:
  - name: api
    type: http
`,
			wantErr: "target is required",
		},
		{
			name: "invalid type",
			yaml: `
checks:
  - name: api
    type: smtp
    target: localhost:25
`,
			wantErr: "invalid type",
		},
		{
			name: "unparseable duration",
			yaml: `
healthcheck:
  schedule_interval: soon
`,
			wantErr: "parsing config",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestCompileChecksEnabled(t *testing.T) {
	hc := HealthCheck{ChecksEnabled: StringList{"^backend:", ".*"}}
	res, err := hc.CompileChecksEnabled()
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 patterns, got %d", len(res))
	}
	if !res[0].MatchString("backend:api") || res[0].MatchString("frontend:cdn") {
		t.Error("compiled pattern does not match as expected")
	}
}
