package doctor

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/holdline/internal/config"
)

func validConfig() *config.Config {
	cfg := config.Defaults()
	cfg.State.Path = "/tmp/test.db"
	cfg.Service.Timezone = "UTC"
	cfg.Worker.Command = "responder"
	cfg.API.Auth.Tokens = []config.APIToken{{Token: "t", Scopes: []string{"jobs:rw"}}}
	return cfg
}

func newDoctor(cfg *config.Config, known ...string) *Doctor {
	d := New(cfg)
	d.lookPath = func(name string) (string, error) {
		for _, k := range known {
			if k == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("executable file not found in $PATH")
	}
	return d
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := newDoctor(validConfig(), "responder").Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_MissingStatePath(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.State.Path = ""
	r := newDoctor(cfg, "responder").Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "service", "state.path")
}

func TestValidate_UnknownTimezone(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Service.Timezone = "Mars/Olympus"
	r := newDoctor(cfg, "responder").Validate()
	assertHasError(t, r, "service", "Mars/Olympus")
}

func TestValidate_WorkerCommandNotFound(t *testing.T) {
	t.Parallel()
	r := newDoctor(validConfig()).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "worker", "responder")
}

func TestValidate_WorkerDirMissing(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Worker.Dir = t.TempDir() + "/nope"
	r := newDoctor(cfg, "responder").Validate()
	assertHasError(t, r, "worker", "not a directory")
}

func TestValidate_RepeatedInputPlaceholder(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Worker.Args = []string{"--q", "{input}", "--echo={input}"}
	r := newDoctor(cfg, "responder").Validate()
	assertHasWarning(t, r, "worker", "2 times")
}

func TestValidate_DeadlineNotShorterThanTimeout(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Dispatch.Deadline = 30 * time.Second
	cfg.Worker.Timeout = 20 * time.Second
	r := newDoctor(cfg, "responder").Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "dispatch", "pending reply")
}

func TestValidate_DelegateCommand(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Delegate.Enabled = true
	cfg.Delegate.Command = "agent-runner"

	r := newDoctor(cfg, "responder").Validate()
	assertHasError(t, r, "delegate", "agent-runner")

	r = newDoctor(cfg, "responder", "agent-runner").Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
}

func TestValidate_DelegateDisabledSkipsCommand(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Delegate.Command = "agent-runner"
	r := newDoctor(cfg, "responder").Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
}

func TestValidate_TokenScopes(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Auth.Tokens = []config.APIToken{
		{Token: "a", Scopes: []string{"jobs:ro", "agents:rw", "events:ro"}},
		{Token: "b", Scopes: []string{"plugin:rw"}},
		{Token: "c"},
	}
	r := newDoctor(cfg, "responder").Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "token_scopes", "plugin:rw")
	assertHasWarning(t, r, "token_scopes", "no scopes")
	if len(r.Errors) != 1 {
		t.Fatalf("expected exactly one scope error, got: %v", r.Errors)
	}
}

func TestValidate_WarnNoAuth(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Auth.Tokens = nil
	r := newDoctor(cfg, "responder").Validate()
	assertHasWarning(t, r, "api", "no authentication")
}

func TestValidate_WarnBothAPIKeyAndTokens(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Auth.APIKey = "admin"
	r := newDoctor(cfg, "responder").Validate()
	assertHasWarning(t, r, "deprecated", "both")
}

func TestValidate_WarnRetention(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Maintenance.JobRetention = 0
	r := newDoctor(cfg, "responder").Validate()
	assertHasWarning(t, r, "maintenance", "never pruned")

	cfg = validConfig()
	cfg.Maintenance.Interval = 48 * time.Hour
	cfg.Maintenance.JobRetention = 24 * time.Hour
	r = newDoctor(cfg, "responder").Validate()
	assertHasWarning(t, r, "maintenance", "exceeds")
}

func TestValidate_WarnMissingEnvVar(t *testing.T) {
	cfg := validConfig()
	cfg.Worker.Env = []string{"MODEL_KEY=${HOLDLINE_DOCTOR_UNSET_VAR}"}
	r := newDoctor(cfg, "responder").Validate()
	assertHasWarning(t, r, "env_vars", "HOLDLINE_DOCTOR_UNSET_VAR")
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:  false,
		Errors: []Issue{{Category: "worker", Field: "worker.command", Message: "missing"}},
	}
	out, err := FormatJSON(r)
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	if !strings.Contains(out, `"valid": false`) {
		t.Fatalf("expected valid=false in JSON, got: %s", out)
	}
	if !strings.Contains(out, `"worker.command"`) {
		t.Fatalf("expected field in JSON, got: %s", out)
	}
}

func TestFormatHuman_Valid(t *testing.T) {
	t.Parallel()
	out := FormatHuman(&Result{Valid: true})
	if out != "Configuration valid.\n" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFormatHuman_Errors(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:    false,
		Errors:   []Issue{{Category: "worker", Field: "worker.command", Message: "not found"}},
		Warnings: []Issue{{Category: "api", Message: "no auth"}},
	}
	out := FormatHuman(r)
	if !strings.Contains(out, "1 error(s), 1 warning(s)") {
		t.Fatalf("expected counts, got: %s", out)
	}
	if !strings.Contains(out, "ERROR [worker] worker.command: not found") {
		t.Fatalf("expected error line, got: %s", out)
	}
	if !strings.Contains(out, "WARN  [api] no auth") {
		t.Fatalf("expected warning line, got: %s", out)
	}
}

func assertHasError(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && (strings.Contains(e.Message, substring) || strings.Contains(e.Field, substring)) {
			return
		}
	}
	t.Fatalf("expected error with category=%q containing %q, got: %v", category, substring, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && strings.Contains(w.Message, substring) {
			return
		}
	}
	t.Fatalf("expected warning with category=%q containing %q, got: %v", category, substring, r.Warnings)
}
