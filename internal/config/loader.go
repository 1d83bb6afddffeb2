package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFile is the main config file inside a config directory.
	ConfigFile = "config.yaml"
	// TokensFile optionally holds scoped API tokens next to ConfigFile.
	TokensFile = "tokens.yaml"

	// ConfigDirEnv overrides config discovery.
	ConfigDirEnv = "HOLDLINE_CONFIG_DIR"
)

var lockedFiles = []string{ConfigFile, TokensFile}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads configuration from a config.yaml file or a directory holding
// one. A tokens.yaml beside it is merged into api.auth.tokens. Files are
// verified against .checksums, defaults applied, then the result validated.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, ConfigFile)
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but %s not found: %s", ConfigFile, absPath)
		}
	}
	configDir := filepath.Dir(absPath)

	cfg := &Config{}
	if err := decodeFile(absPath, cfg); err != nil {
		return nil, err
	}
	cfg.SourceFiles = []string{absPath}

	tokensPath := filepath.Join(configDir, TokensFile)
	if fileExists(tokensPath) {
		var tf struct {
			Tokens []APIToken `yaml:"tokens"`
		}
		if err := decodeFile(tokensPath, &tf); err != nil {
			return nil, err
		}
		cfg.API.Auth.Tokens = append(cfg.API.Auth.Tokens, tf.Tokens...)
		cfg.SourceFiles = append(cfg.SourceFiles, tokensPath)
	}

	if err := verifyIntegrity(configDir, cfg.SourceFiles); err != nil {
		return nil, err
	}

	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DiscoverConfigDir finds the config directory by checking standard locations.
// Priority order: $HOLDLINE_CONFIG_DIR, ~/.config/holdline, /etc/holdline, ./config.yaml.
func DiscoverConfigDir() (string, error) {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "holdline")
		if dirExists(userConfigDir) {
			return userConfigDir, nil
		}
	}

	if dirExists("/etc/holdline") {
		return "/etc/holdline", nil
	}

	if fileExists("./" + ConfigFile) {
		return "./" + ConfigFile, nil
	}

	return "", fmt.Errorf("no config found (checked: $%s, ~/.config/holdline, /etc/holdline, ./%s)", ConfigDirEnv, ConfigFile)
}

// ConfigDir returns the directory that holds the file at configPath, or
// configPath itself when it is a directory.
func ConfigDir(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}
	if dirExists(absPath) {
		return absPath, nil
	}
	return filepath.Dir(absPath), nil
}

func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), out); err != nil {
		return fmt.Errorf("failed to parse YAML in %s: %w", path, err)
	}
	return nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	d := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = d.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = d.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = d.Service.LogFormat
	}
	if cfg.Service.Timezone == "" {
		cfg.Service.Timezone = d.Service.Timezone
	}

	if cfg.State.Path == "" {
		cfg.State.Path = d.State.Path
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = d.API.Listen
	}
	if cfg.API.MaxBodyBytes == 0 {
		cfg.API.MaxBodyBytes = d.API.MaxBodyBytes
	}

	setDuration(&cfg.Dispatch.Deadline, d.Dispatch.Deadline)
	setString(&cfg.Dispatch.PendingMessage, d.Dispatch.PendingMessage)
	setString(&cfg.Dispatch.FallbackResult, d.Dispatch.FallbackResult)
	setString(&cfg.Dispatch.AbortedResult, d.Dispatch.AbortedResult)
	setInt(&cfg.Dispatch.MaxQueryBytes, d.Dispatch.MaxQueryBytes)

	setDuration(&cfg.Worker.Timeout, d.Worker.Timeout)
	setDuration(&cfg.Worker.GracePeriod, d.Worker.GracePeriod)
	setInt(&cfg.Worker.MaxOutputBytes, d.Worker.MaxOutputBytes)

	setDuration(&cfg.Delegate.Timeout, d.Delegate.Timeout)
	setInt(&cfg.Delegate.ResultLimit, d.Delegate.ResultLimit)
	setInt(&cfg.Delegate.BoardSize, d.Delegate.BoardSize)

	setInt(&cfg.Results.RecentLimit, d.Results.RecentLimit)
	setInt(&cfg.Results.HistoryLimit, d.Results.HistoryLimit)
	setInt(&cfg.Results.PreviewChars, d.Results.PreviewChars)
	setInt(&cfg.Results.ListLimit, d.Results.ListLimit)

	setDuration(&cfg.Maintenance.Interval, d.Maintenance.Interval)
	setDuration(&cfg.Maintenance.JobRetention, d.Maintenance.JobRetention)

	return cfg
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setDuration(v *time.Duration, def time.Duration) {
	if *v == 0 {
		*v = def
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is and rejected by validation where they matter.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

func unresolved(field, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
	}
	return nil
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}
	if _, err := time.LoadLocation(cfg.Service.Timezone); err != nil {
		return fmt.Errorf("service.timezone %q: %w", cfg.Service.Timezone, err)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if err := unresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
		return err
	}
	for i, tok := range cfg.API.Auth.Tokens {
		field := fmt.Sprintf("api.auth.tokens[%d]", i)
		if tok.Token == "" {
			return fmt.Errorf("%s.token is required", field)
		}
		if err := unresolved(field+".token", tok.Token); err != nil {
			return err
		}
		if len(tok.Scopes) == 0 {
			return fmt.Errorf("%s.scopes must be non-empty", field)
		}
	}

	if cfg.Dispatch.Deadline < 0 {
		return fmt.Errorf("dispatch.deadline must be positive")
	}
	if cfg.Worker.Command == "" {
		return fmt.Errorf("worker.command is required")
	}
	if err := unresolved("worker.command", cfg.Worker.Command); err != nil {
		return err
	}
	if cfg.Worker.Timeout < 0 || cfg.Worker.GracePeriod < 0 {
		return fmt.Errorf("worker.timeout and worker.grace_period must be positive")
	}
	if cfg.Worker.MaxOutputBytes < 0 {
		return fmt.Errorf("worker.max_output_bytes must be positive")
	}

	if cfg.Delegate.Enabled {
		if cfg.Delegate.Command == "" {
			return fmt.Errorf("delegate.command is required when delegation is enabled")
		}
		if err := unresolved("delegate.command", cfg.Delegate.Command); err != nil {
			return err
		}
	}
	if err := unresolved("delegate.callback_secret", cfg.Delegate.CallbackSecret); err != nil {
		return err
	}

	if cfg.Maintenance.Interval < 0 || cfg.Maintenance.JobRetention < 0 {
		return fmt.Errorf("maintenance.interval and maintenance.job_retention must be positive")
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Location resolves service.timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Service.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
