package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal valid config gets defaults",
			yaml: `
worker:
  command: /usr/local/bin/ask
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Worker.Command != "/usr/local/bin/ask" {
					t.Error("worker.command not parsed")
				}
				if cfg.Dispatch.Deadline != 15*time.Second {
					t.Errorf("dispatch.deadline = %v, want 15s", cfg.Dispatch.Deadline)
				}
				if cfg.Worker.Timeout != 120*time.Second {
					t.Errorf("worker.timeout = %v, want 120s", cfg.Worker.Timeout)
				}
				if cfg.Worker.MaxOutputBytes != 1<<20 {
					t.Errorf("worker.max_output_bytes = %d", cfg.Worker.MaxOutputBytes)
				}
				if cfg.Results.RecentLimit != 10 || cfg.Results.HistoryLimit != 20 || cfg.Results.ListLimit != 50 {
					t.Errorf("results defaults not applied: %+v", cfg.Results)
				}
				if cfg.Delegate.BoardSize != 20 || cfg.Delegate.ResultLimit != 500 {
					t.Errorf("delegate defaults not applied: %+v", cfg.Delegate)
				}
				if cfg.Dispatch.FallbackResult != "Could not process that request." {
					t.Errorf("fallback = %q", cfg.Dispatch.FallbackResult)
				}
				if len(cfg.SourceFiles) != 1 {
					t.Errorf("SourceFiles = %v", cfg.SourceFiles)
				}
			},
		},
		{
			name: "explicit values and env interpolation",
			yaml: `
service:
  log_level: debug
  timezone: Asia/Macau
state:
  path: ${HOLDLINE_TEST_DB}
api:
  listen: 0.0.0.0:9000
  auth:
    api_key: ${HOLDLINE_TEST_KEY}
  cors_origins: ["https://voice.example.com"]
dispatch:
  deadline: 5s
worker:
  command: python3
  args: ["/opt/gateway-query.py", "{input}"]
delegate:
  enabled: true
  command: /opt/agent
  model: heavy
`,
			env: map[string]string{
				"HOLDLINE_TEST_DB":  "/tmp/jobs.db",
				"HOLDLINE_TEST_KEY": "k3y",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.State.Path != "/tmp/jobs.db" {
					t.Errorf("state.path = %q", cfg.State.Path)
				}
				if cfg.API.Listen != "0.0.0.0:9000" {
					t.Errorf("api.listen = %q", cfg.API.Listen)
				}
				if cfg.Dispatch.Deadline != 5*time.Second {
					t.Errorf("deadline = %v", cfg.Dispatch.Deadline)
				}
				if len(cfg.Worker.Args) != 2 || cfg.Worker.Args[1] != "{input}" {
					t.Errorf("worker.args = %v", cfg.Worker.Args)
				}
				if !cfg.Delegate.Enabled || cfg.Delegate.Model != "heavy" {
					t.Errorf("delegate = %+v", cfg.Delegate)
				}
				if cfg.Location().String() != "Asia/Macau" {
					t.Errorf("location = %v", cfg.Location())
				}
				if cfg.API.Auth.APIKey != "k3y" {
					t.Errorf("api.auth.api_key = %q", cfg.API.Auth.APIKey)
				}
				if len(cfg.API.CORSOrigins) != 1 {
					t.Errorf("cors_origins = %v", cfg.API.CORSOrigins)
				}
			},
		},
		{
			name:    "missing worker command",
			yaml:    "service:\n  log_level: info\n",
			wantErr: "worker.command is required",
		},
		{
			name: "invalid log level",
			yaml: `
service:
  log_level: loud
worker:
  command: x
`,
			wantErr: "service.log_level",
		},
		{
			name: "unresolved api key",
			yaml: `
api:
  auth:
    api_key: ${HOLDLINE_TEST_UNSET_KEY}
worker:
  command: x
`,
			wantErr: "HOLDLINE_TEST_UNSET_KEY",
		},
		{
			name: "delegation without command",
			yaml: `
worker:
  command: x
delegate:
  enabled: true
`,
			wantErr: "delegate.command",
		},
		{
			name: "unknown timezone",
			yaml: `
service:
  timezone: Mars/Olympus
worker:
  command: x
`,
			wantErr: "service.timezone",
		},
		{
			name:    "malformed yaml",
			yaml:    "worker: [unterminated\n",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			dir := t.TempDir()
			path := writeFile(t, dir, ConfigFile, tt.yaml)

			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error %q does not contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.checkFn(t, cfg)
		})
	}
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ConfigFile, "worker:\n  command: /bin/echo\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(dir) error = %v", err)
	}
	if cfg.Worker.Command != "/bin/echo" {
		t.Errorf("worker.command = %q", cfg.Worker.Command)
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for directory without config.yaml")
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadTokensRequireLock(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ConfigFile, "worker:\n  command: /bin/echo\n")
	writeFile(t, dir, TokensFile, "tokens:\n  - token: t1\n    scopes: [\"jobs:ro\"]\n")

	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "config lock") {
		t.Fatalf("expected lock hint, got %v", err)
	}

	if _, err := Lock(dir, false); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() after lock error = %v", err)
	}
	if len(cfg.API.Auth.Tokens) != 1 || cfg.API.Auth.Tokens[0].Token != "t1" {
		t.Errorf("tokens = %+v", cfg.API.Auth.Tokens)
	}
	if len(cfg.SourceFiles) != 2 {
		t.Errorf("SourceFiles = %v", cfg.SourceFiles)
	}
}

func TestLoadDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ConfigFile, "worker:\n  command: /bin/echo\n")
	if _, err := Lock(dir, false); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if _, err := Load(dir); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	writeFile(t, dir, ConfigFile, "worker:\n  command: /bin/evil\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("expected hash mismatch, got %v", err)
	}
}

func TestTokensNeedScopes(t *testing.T) {
	cfg := Defaults()
	cfg.Worker.Command = "x"
	cfg.API.Auth.Tokens = []APIToken{{Token: "abc"}}
	if err := validate(cfg); err == nil || !strings.Contains(err.Error(), "scopes") {
		t.Fatalf("expected scopes error, got %v", err)
	}
}

func TestInterpolateEnv(t *testing.T) {
	t.Setenv("HOLDLINE_TEST_SET", "value")

	got := interpolateEnv("a=${HOLDLINE_TEST_SET} b=${HOLDLINE_TEST_NOT_SET} c=$PLAIN")
	want := "a=value b=${HOLDLINE_TEST_NOT_SET} c=$PLAIN"
	if got != want {
		t.Errorf("interpolateEnv() = %q, want %q", got, want)
	}
}

func TestDiscoverConfigDirFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(ConfigDirEnv, dir)

	got, err := DiscoverConfigDir()
	if err != nil {
		t.Fatalf("DiscoverConfigDir() error = %v", err)
	}
	if got != dir {
		t.Errorf("DiscoverConfigDir() = %q, want %q", got, dir)
	}
}

func TestConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ConfigFile, "")

	got, err := ConfigDir(path)
	if err != nil || got != dir {
		t.Errorf("ConfigDir(file) = %q, %v", got, err)
	}
	got, err = ConfigDir(dir)
	if err != nil || got != dir {
		t.Errorf("ConfigDir(dir) = %q, %v", got, err)
	}
}
