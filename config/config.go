// Package config loads service configuration from an optional YAML file with
// environment variable overrides for the secrets and deployment-specific
// fields.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	// Config is the full service configuration.
	Config struct {
		HTTP       HTTP       `yaml:"http"`
		Generation Generation `yaml:"generation"`
		Runs       Runs       `yaml:"runs"`
	}

	// HTTP configures the API server.
	HTTP struct {
		// Addr is the listen address, host:port.
		Addr string `yaml:"addr"`
	}

	// Generation configures the text-generation client.
	Generation struct {
		// BaseURL is the OpenAI-compatible API root.
		BaseURL string `yaml:"base_url"`
		// APIKey is the bearer token; usually supplied via OPENROUTER_API_KEY.
		APIKey string `yaml:"api_key"`
		// Model is the model identifier used for every call.
		Model string `yaml:"model"`
		// Temperature is the sampling temperature.
		Temperature float32 `yaml:"temperature"`
		// Timeout bounds each completion call.
		Timeout Duration `yaml:"timeout"`
		// RequestsPerSecond enables client-side pacing when positive.
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	}

	// Runs configures the run registry and its janitor.
	Runs struct {
		// Retention is how long an idle, unobserved run is kept in memory.
		Retention Duration `yaml:"retention"`
		// SweepInterval is how often the janitor evicts stale runs.
		SweepInterval Duration `yaml:"sweep_interval"`
		// Keepalive is the SSE idle window before a ping frame is emitted.
		Keepalive Duration `yaml:"keepalive"`
	}

	// Duration wraps time.Duration so YAML values can use Go duration
	// syntax ("15s", "1h").
	Duration time.Duration
)

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTP{Addr: ":8080"},
		Generation: Generation{
			BaseURL:     "https://openrouter.ai/api/v1",
			Temperature: 0.2,
			Timeout:     Duration(60 * time.Second),
		},
		Runs: Runs{
			Retention:     Duration(time.Hour),
			SweepInterval: Duration(5 * time.Minute),
			Keepalive:     Duration(15 * time.Second),
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and environment overrides, in that order of precedence.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FABLEFORGE_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("OPENROUTER_BASE_URL"); v != "" {
		cfg.Generation.BaseURL = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := os.Getenv("OPENROUTER_MAIN_MODEL"); v != "" {
		cfg.Generation.Model = v
	}
}
