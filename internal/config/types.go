package config

import "time"

// Config represents the complete holdline configuration.
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	State       StateConfig       `yaml:"state"`
	API         APIConfig         `yaml:"api"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Worker      WorkerConfig      `yaml:"worker"`
	Delegate    DelegateConfig    `yaml:"delegate"`
	Results     ResultsConfig     `yaml:"results"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`

	// SourceFiles lists the files the config was assembled from.
	SourceFiles []string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// Timezone is an IANA zone name used when rendering job history.
	Timezone string `yaml:"timezone"`
}

// StateConfig defines where jobs and the agent board are stored.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen       string        `yaml:"listen"`
	CORSOrigins  []string      `yaml:"cors_origins,omitempty"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	Auth         APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token with full access.
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// DispatchConfig tunes the response race for submitted queries.
type DispatchConfig struct {
	Deadline       time.Duration `yaml:"deadline"`
	PendingMessage string        `yaml:"pending_message"`
	FallbackResult string        `yaml:"fallback_result"`
	AbortedResult  string        `yaml:"aborted_result"`
	MaxQueryBytes  int           `yaml:"max_query_bytes"`
}

// WorkerConfig describes the external worker launched per query. Args may
// contain {input}; otherwise the query is appended as the last argument.
type WorkerConfig struct {
	Command        string        `yaml:"command"`
	Args           []string      `yaml:"args,omitempty"`
	Dir            string        `yaml:"dir,omitempty"`
	Env            []string      `yaml:"env,omitempty"`
	Timeout        time.Duration `yaml:"timeout"`
	GracePeriod    time.Duration `yaml:"grace_period"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
}

// DelegateConfig describes background delegation of heavier tasks.
type DelegateConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Command        string        `yaml:"command"`
	Args           []string      `yaml:"args,omitempty"`
	Model          string        `yaml:"model,omitempty"`
	Timeout        time.Duration `yaml:"timeout"`
	ResultLimit    int           `yaml:"result_limit"`
	BoardSize      int           `yaml:"board_size"`
	CallbackSecret string        `yaml:"callback_secret,omitempty"`
}

// ResultsConfig bounds the polling summaries.
type ResultsConfig struct {
	RecentLimit  int `yaml:"recent_limit"`
	HistoryLimit int `yaml:"history_limit"`
	PreviewChars int `yaml:"preview_chars"`
	ListLimit    int `yaml:"list_limit"`
}

// MaintenanceConfig controls orphan recovery and pruning.
type MaintenanceConfig struct {
	Interval     time.Duration `yaml:"interval"`
	JobRetention time.Duration `yaml:"job_retention"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "holdline",
			LogLevel:  "info",
			LogFormat: "json",
			Timezone:  "Local",
		},
		State: StateConfig{
			Path: "./data/holdline.db",
		},
		API: APIConfig{
			Listen:       "127.0.0.1:18795",
			MaxBodyBytes: 1 << 20,
		},
		Dispatch: DispatchConfig{
			Deadline:       15 * time.Second,
			PendingMessage: "Still working on that. It's a complex query. Call check_results in about 10 seconds to get the answer.",
			FallbackResult: "Could not process that request.",
			AbortedResult:  "Aborted by user",
			MaxQueryBytes:  4096,
		},
		Worker: WorkerConfig{
			Timeout:        120 * time.Second,
			GracePeriod:    5 * time.Second,
			MaxOutputBytes: 1 << 20,
		},
		Delegate: DelegateConfig{
			Timeout:     10 * time.Minute,
			ResultLimit: 500,
			BoardSize:   20,
		},
		Results: ResultsConfig{
			RecentLimit:  10,
			HistoryLimit: 20,
			PreviewChars: 200,
			ListLimit:    50,
		},
		Maintenance: MaintenanceConfig{
			Interval:     time.Hour,
			JobRetention: 30 * 24 * time.Hour,
		},
	}
}
