// Package doctor validates holdline configuration beyond what the loader
// enforces: worker executables, timing relationships, and token scopes.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/mattjoyce/holdline/internal/auth"
	"github.com/mattjoyce/holdline/internal/config"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateServiceConfig(r)
	d.validateWorker(r)
	d.validateDispatchTiming(r)
	d.validateDelegate(r)
	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.warnMaintenance(r)
	d.warnMissingEnvVars(r)
	d.warnDeprecatedSyntax(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateServiceConfig(r *Result) {
	if d.cfg.State.Path == "" {
		d.addError(r, "service", "state.path", "state.path is required")
	}
	if _, err := time.LoadLocation(d.cfg.Service.Timezone); err != nil {
		d.addError(r, "service", "service.timezone",
			fmt.Sprintf("unknown timezone %q", d.cfg.Service.Timezone))
	}
}

// validateWorker checks that the worker executable resolves.
func (d *Doctor) validateWorker(r *Result) {
	w := d.cfg.Worker
	if w.Command == "" {
		d.addError(r, "worker", "worker.command", "worker.command is required")
		return
	}
	if _, err := d.lookPath(w.Command); err != nil {
		d.addError(r, "worker", "worker.command",
			fmt.Sprintf("worker command %q not found: %v", w.Command, err))
	}
	if w.Dir != "" {
		if info, err := os.Stat(w.Dir); err != nil || !info.IsDir() {
			d.addError(r, "worker", "worker.dir",
				fmt.Sprintf("worker.dir %q is not a directory", w.Dir))
		}
	}
	if w.GracePeriod <= 0 {
		d.addWarning(r, "worker", "worker.grace_period",
			"grace_period is zero; aborted workers are killed without a chance to exit")
	}
	placeholders := 0
	for _, a := range w.Args {
		placeholders += strings.Count(a, "{input}")
	}
	if placeholders > 1 {
		d.addWarning(r, "worker", "worker.args",
			fmt.Sprintf("{input} appears %d times; the query is substituted into each", placeholders))
	}
}

// validateDispatchTiming checks the deadline against the worker timeout.
func (d *Doctor) validateDispatchTiming(r *Result) {
	deadline := d.cfg.Dispatch.Deadline
	timeout := d.cfg.Worker.Timeout
	if deadline <= 0 {
		d.addError(r, "dispatch", "dispatch.deadline", "deadline must be positive")
		return
	}
	if timeout > 0 && timeout <= deadline {
		d.addWarning(r, "dispatch", "worker.timeout",
			fmt.Sprintf("worker.timeout (%s) is not longer than dispatch.deadline (%s); callers never see a pending reply", timeout, deadline))
	}
}

func (d *Doctor) validateDelegate(r *Result) {
	dc := d.cfg.Delegate
	if !dc.Enabled {
		return
	}
	if dc.Command == "" {
		d.addError(r, "delegate", "delegate.command", "delegate.command is required when delegation is enabled")
		return
	}
	if _, err := d.lookPath(dc.Command); err != nil {
		d.addError(r, "delegate", "delegate.command",
			fmt.Sprintf("delegate command %q not found: %v", dc.Command, err))
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required")
	}
	if d.cfg.API.Auth.APIKey == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "api", "api.auth", "no authentication configured; every protected route returns 401")
	}
	for i, origin := range d.cfg.API.CORSOrigins {
		if origin == "*" && len(d.cfg.API.CORSOrigins) > 1 {
			d.addWarning(r, "api", fmt.Sprintf("api.cors_origins[%d]", i),
				"wildcard origin makes the other entries redundant")
		}
	}
}

// validateTokenScopes checks that every scope is one the API understands.
func (d *Doctor) validateTokenScopes(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		if len(token.Scopes) == 0 {
			d.addWarning(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes", i),
				"token has no scopes and can only reach /healthz")
		}
		for j, scope := range token.Scopes {
			if !auth.IsKnownScope(scope) {
				d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j),
					fmt.Sprintf("unknown scope %q (known: %s)", scope, strings.Join(auth.KnownScopes, ", ")))
			}
		}
	}
}

func (d *Doctor) warnMaintenance(r *Result) {
	m := d.cfg.Maintenance
	if m.JobRetention <= 0 {
		d.addWarning(r, "maintenance", "maintenance.job_retention",
			"job_retention is zero; finished jobs are never pruned")
		return
	}
	if m.Interval > m.JobRetention {
		d.addWarning(r, "maintenance", "maintenance.interval",
			fmt.Sprintf("interval (%s) exceeds job_retention (%s)", m.Interval, m.JobRetention))
	}
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// warnMissingEnvVars warns about empty secrets and ${VAR} references left in
// the worker environment.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		if token.Token == "" {
			d.addWarning(r, "env_vars", fmt.Sprintf("api.auth.tokens[%d].token", i),
				"token value is empty (possibly unresolved environment variable)")
		}
	}

	for i, kv := range d.cfg.Worker.Env {
		for _, m := range envVarRe.FindAllStringSubmatch(kv, -1) {
			if os.Getenv(m[1]) == "" {
				d.addWarning(r, "env_vars", fmt.Sprintf("worker.env[%d]", i),
					fmt.Sprintf("environment variable ${%s} not set", m[1]))
			}
		}
	}
}

// warnDeprecatedSyntax warns about legacy config patterns.
func (d *Doctor) warnDeprecatedSyntax(r *Result) {
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) > 0 {
		d.addWarning(r, "deprecated", "api.auth",
			"both api_key and tokens configured; prefer tokens array only")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
