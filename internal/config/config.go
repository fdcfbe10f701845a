// Package config loads the service configuration: the set of external hosts
// to reconcile, how each is monitored, and where state lives.
//
// Configuration is constructed exactly once at process start and passed by
// reference to the ingestion collaborators. Nothing reads configuration at
// package init, and the reconciliation core takes no configuration at all.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Polling controls timer-driven ingestion for one host.
type Polling struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`
	Limit           int  `yaml:"limit"`
}

// Webhook controls push ingestion for one host.
// The receiver itself is a collaborator outside this repository.
type Webhook struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Host describes one external system instance to reconcile.
type Host struct {
	ID             string            `yaml:"id"`
	Name           string            `yaml:"name"`
	Role           string            `yaml:"role"`
	Platform       string            `yaml:"platform"`
	Endpoint       string            `yaml:"endpoint"`
	Port           int               `yaml:"port"`
	Protocol       string            `yaml:"protocol"`
	CredentialsEnv map[string]string `yaml:"credentials_env"`
	Polling        Polling           `yaml:"polling"`
	Webhook        Webhook           `yaml:"webhook"`

	// Spool is an optional directory of observation files polled by the
	// file-based event source.
	Spool string `yaml:"spool"`

	// StatusMap aliases vendor status names to canonical ones, applied at
	// the ingestion boundary before validation.
	StatusMap map[string]string `yaml:"status_map"`

	// Credentials holds secrets resolved from CredentialsEnv at load time.
	// Never serialized.
	Credentials map[string]string `yaml:"-"`
}

// Config is the whole service configuration.
type Config struct {
	Database string `yaml:"database"`
	Hosts    []Host `yaml:"hosts"`
}

// Load reads, validates, and resolves the configuration at path.
//
// The raw YAML is validated against the embedded CUE schema before typed
// decoding, then defaults are applied (port 443, protocol https) and
// credentials_env indirections are resolved from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := validate(data); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	for i := range cfg.Hosts {
		host := &cfg.Hosts[i]
		if host.Port == 0 {
			host.Port = 443
		}
		if host.Protocol == "" {
			host.Protocol = "https"
		}
		if host.Polling.Enabled && host.Polling.IntervalSeconds == 0 {
			host.Polling.IntervalSeconds = 60
		}
		if host.Polling.Enabled && host.Polling.Limit == 0 {
			host.Polling.Limit = 100
		}
		host.Credentials = resolveCredentials(host.CredentialsEnv)
	}
	return &cfg, nil
}

// validate checks the decoded YAML against the embedded CUE schema.
func validate(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := ctx.Encode(raw)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := schema.Unify(value).Validate(); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	return nil
}

// resolveCredentials maps credential names to values read from the
// environment variables named in the config. Missing variables resolve to
// empty strings; whether that is fatal is the transport's call.
func resolveCredentials(env map[string]string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	creds := make(map[string]string, len(env))
	for name, envvar := range env {
		creds[name] = os.Getenv(envvar)
	}
	return creds
}
