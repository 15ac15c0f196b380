/*
Copyright 2024 Alexandre Mahdhaoui

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"sigs.k8s.io/yaml"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/envconfig"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/tlsutil"
)

const (
	// ConfigPathEnvKey is the environment variable key for the optional config file path.
	ConfigPathEnvKey = "VLAB_GATEWAY_CONFIG_PATH"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is used to configure the API application.
//
// Every field may be overridden by an environment variable. Secrets are only read from the environment.
type Config struct {
	// PublicURL is the public base URL of the lab (VLAB_URL).
	PublicURL string `json:"publicURL"`

	// LogLevel is one of debug, info, warn or error (VLAB_GATEWAY_LOG_LEVEL).
	LogLevel string `json:"logLevel"`
	// Development enables human-readable logs.
	Development bool `json:"development"`
	// TraceStdout exports spans to stderr (VLAB_GATEWAY_TRACE_STDOUT).
	TraceStdout bool `json:"traceStdout"`

	// MessageBroker is the NATS URL jobs are published to (VLAB_MESSAGE_BROKER).
	MessageBroker string `json:"messageBroker"`

	// Token configures request authentication.
	Token struct {
		// Verify enables signature verification (VLAB_VERIFY_TOKEN).
		Verify bool `json:"verify"`
		// Key is the HS256 key (VLAB_AUTH_TOKEN_KEY). Required when Verify is set.
		Key string `json:"-"`
	} `json:"token"`

	// TaskStore configures the badger database holding task records.
	TaskStore struct {
		// Path is the database directory (VLAB_GATEWAY_TASK_DB).
		Path string `json:"path"`
		// InMemory keeps task records in memory only.
		InMemory bool `json:"inMemory"`
		// TTL expires task records, in time.ParseDuration syntax. Empty keeps them forever.
		TTL string `json:"ttl"`

		ttl time.Duration
	} `json:"taskStore"`

	// APIServer is the configuration for the API server.
	APIServer struct {
		// Port is the port for the API server.
		Port int `json:"port"`
		// TLS serves the API over TLS. Usually terminated by the lab's reverse proxy instead.
		TLS tlsutil.Config `json:"tls"`
	} `json:"apiServer"`

	// ProbesServer is the configuration for the probes server.
	ProbesServer struct {
		// LivenessPath is the path for the liveness probe.
		LivenessPath string `json:"livenessPath"`
		// ReadinessPath is the path for the readiness probe.
		ReadinessPath string `json:"readinessPath"`
		// Port is the port for the probes server.
		Port int `json:"port"`
	} `json:"probesServer"`

	// MetricsServer is the configuration for the metrics server.
	MetricsServer struct {
		// Path is the path for the metrics server.
		Path string `json:"path"`
		// Port is the port for the metrics server.
		Port int `json:"port"`
	} `json:"metricsServer"`
}

func defaultConfig() *Config {
	config := &Config{
		PublicURL:     "https://localhost",
		LogLevel:      "info",
		MessageBroker: nats.DefaultURL,
	}

	config.TaskStore.Path = "/var/lib/vlab-gateway/tasks"
	config.TaskStore.TTL = "24h"
	config.APIServer.Port = 5000
	config.ProbesServer.Port = 8081
	config.ProbesServer.LivenessPath = "/healthz"
	config.ProbesServer.ReadinessPath = "/readyz"
	config.MetricsServer.Port = 8080
	config.MetricsServer.Path = "/metrics"

	return config
}

// loadConfig reads the file named by VLAB_GATEWAY_CONFIG_PATH, when set, over the defaults, then applies
// environment overrides.
func loadConfig(_ context.Context) (*Config, error) {
	config := defaultConfig()

	if configPath := os.Getenv(ConfigPathEnvKey); configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		// Parse YAML (uses json tags)
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	env := envconfig.New()
	env.String("VLAB_URL", &config.PublicURL)
	env.String("VLAB_GATEWAY_LOG_LEVEL", &config.LogLevel)
	env.Bool("VLAB_GATEWAY_TRACE_STDOUT", &config.TraceStdout)
	env.String("VLAB_MESSAGE_BROKER", &config.MessageBroker)
	env.Bool("VLAB_VERIFY_TOKEN", &config.Token.Verify)
	env.String("VLAB_GATEWAY_TASK_DB", &config.TaskStore.Path)
	env.String("VLAB_GATEWAY_TASK_TTL", &config.TaskStore.TTL)

	if err := env.Secret("VLAB_AUTH_TOKEN_KEY", &config.Token.Key); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.Token.Verify {
		if err := envconfig.RequireSecrets(map[string]string{"VLAB_AUTH_TOKEN_KEY": c.Token.Key}); err != nil {
			return errors.Join(errors.New("token verification is enabled"), err, ErrInvalidConfig)
		}
	}

	if !strings.HasPrefix(c.PublicURL, "http://") && !strings.HasPrefix(c.PublicURL, "https://") {
		return errors.Join(fmt.Errorf("public url %q must be an http(s) url", c.PublicURL), ErrInvalidConfig)
	}

	if c.MessageBroker == "" {
		return errors.Join(errors.New("message broker must be set"), ErrInvalidConfig)
	}

	if c.TaskStore.TTL != "" {
		ttl, err := time.ParseDuration(c.TaskStore.TTL)
		if err != nil {
			return errors.Join(fmt.Errorf("task store ttl %q", c.TaskStore.TTL), err, ErrInvalidConfig)
		}

		c.TaskStore.ttl = ttl
	}

	if !c.TaskStore.InMemory && c.TaskStore.Path == "" {
		return errors.Join(errors.New("task store path must be set"), ErrInvalidConfig)
	}

	return nil
}
