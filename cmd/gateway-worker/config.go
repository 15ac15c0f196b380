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
	"net/url"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"sigs.k8s.io/yaml"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/controller"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/envconfig"
	"github.com/alexandremahdhaoui/vlab-gateway/pkg/constants"
)

const (
	// ConfigPathEnvKey is the environment variable key for the optional config file path.
	ConfigPathEnvKey = "VLAB_GATEWAY_CONFIG_PATH"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is used to configure the worker application.
//
// Every field may be overridden by an environment variable. Secrets are only read from the environment.
type Config struct {
	// LogLevel is one of debug, info, warn or error (VLAB_GATEWAY_LOG_LEVEL).
	LogLevel string `json:"logLevel"`
	// Development enables human-readable logs.
	Development bool `json:"development"`
	// TraceStdout exports spans to stderr (VLAB_GATEWAY_TRACE_STDOUT).
	TraceStdout bool `json:"traceStdout"`

	// MessageBroker is the NATS URL jobs are consumed from (VLAB_MESSAGE_BROKER).
	MessageBroker string `json:"messageBroker"`

	// Dispatcher bounds job execution.
	Dispatcher struct {
		// Concurrency is the number of jobs run at the same time (VLAB_GATEWAY_CONCURRENCY).
		Concurrency int `json:"concurrency"`
		// Group is the queue group shared by every worker.
		Group string `json:"group"`
	} `json:"dispatcher"`

	// VCenter is the connection to the control plane.
	VCenter struct {
		Host string `json:"host"` // INF_VCENTER_SERVER
		Port int    `json:"port"` // INF_VCENTER_PORT
		User string `json:"user"` // INF_VCENTER_USER
		// Password is read from INF_VCENTER_PASSWORD.
		Password string `json:"-"`
		// Insecure skips TLS verification (INF_VCENTER_INSECURE).
		Insecure     bool   `json:"insecure"`
		Datacenter   string `json:"datacenter"`   // INF_VCENTER_DATACENTER
		Datastore    string `json:"datastore"`    // INF_VCENTER_DATASTORE
		ResourcePool string `json:"resourcePool"` // INF_VCENTER_RESOURCE_POOL
		// TopLevelFolder holds the per-user folders (INF_VCENTER_TOP_LVL_DIR).
		TopLevelFolder string `json:"topLevelFolder"`
	} `json:"vcenter"`

	// Images selects the template image and its setup strategy.
	Images struct {
		// Dir holds the template images (VLAB_GATEWAY_IMAGES_DIR).
		Dir string `json:"dir"`
		// Name is the image deployed by create jobs (VLAB_GATEWAY_IMAGE).
		Name string `json:"name"`
		// Strategies maps image names to setup strategy names.
		Strategies map[string]string `json:"strategies"`
		// DefaultStrategy applies to images missing from Strategies.
		DefaultStrategy string `json:"defaultStrategy"`
	} `json:"images"`

	// Appliance configures the guest of deployed appliances.
	Appliance struct {
		// PublicURL is the public base URL of the lab (VLAB_URL).
		PublicURL string `json:"publicURL"`
		// Domain is the lab domain (VLAB_DOMAIN).
		Domain string `json:"domain"`
		// Production flags appliances of a production deployment (VLAB_PRODUCTION).
		Production bool `json:"production"`
		// AdminUser is the guest admin account (VLAB_IPAM_ADMIN).
		AdminUser string `json:"adminUser"`
		// AdminPassword is read from VLAB_IPAM_ADMIN_PW.
		AdminPassword string `json:"-"`
		// LogBroker receives guest logs (VLAB_IPAM_BROKER).
		LogBroker string `json:"logBroker"`
		// LogKey is read from VLAB_IPAM_KEY.
		LogKey string `json:"-"`
		// DDNSKey is read from VLAB_DDNS_KEY.
		DDNSKey string `json:"-"`
		// ConfigMaster is the configuration-management master (VLAB_CONFIG_MASTER). Defaults to the host of
		// PublicURL.
		ConfigMaster string `json:"configMaster"`
	} `json:"appliance"`

	// Timings are in time.ParseDuration syntax.
	Timings struct {
		BootDelay           string `json:"bootDelay"`
		RebootDelay         string `json:"rebootDelay"`
		SentinelPath        string `json:"sentinelPath"`
		SentinelInterval    string `json:"sentinelInterval"`
		SentinelMaxAttempts int    `json:"sentinelMaxAttempts"`
	} `json:"timings"`

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

	bootDelay        time.Duration
	rebootDelay      time.Duration
	sentinelInterval time.Duration
}

func defaultConfig() *Config {
	config := &Config{
		LogLevel:      "info",
		MessageBroker: nats.DefaultURL,
	}

	config.Dispatcher.Concurrency = 4
	config.Dispatcher.Group = constants.WorkerQueueGroup

	config.VCenter.Host = "localhost"
	config.VCenter.Port = 443
	config.VCenter.Datastore = "VM-Storage"
	config.VCenter.ResourcePool = "Resources"
	config.VCenter.TopLevelFolder = "vlab"

	config.Images.Dir = "/images"
	config.Images.Name = controller.DefaultImageName
	config.Images.DefaultStrategy = controller.StrategyGuestConfig

	config.Appliance.PublicURL = "https://localhost"
	config.Appliance.Domain = "local"
	config.Appliance.AdminUser = "administrator"
	config.Appliance.LogBroker = "localhost:9092"

	config.Timings.BootDelay = "60s"
	config.Timings.RebootDelay = "30s"
	config.Timings.SentinelPath = "/etc/vlab/network_configured"
	config.Timings.SentinelInterval = "5s"
	config.Timings.SentinelMaxAttempts = 60

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

	if err := config.overlayEnv(envconfig.New()); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) overlayEnv(env *envconfig.Env) error {
	env.String("VLAB_GATEWAY_LOG_LEVEL", &c.LogLevel)
	env.Bool("VLAB_GATEWAY_TRACE_STDOUT", &c.TraceStdout)
	env.String("VLAB_MESSAGE_BROKER", &c.MessageBroker)

	env.String("INF_VCENTER_SERVER", &c.VCenter.Host)
	env.String("INF_VCENTER_USER", &c.VCenter.User)
	env.Bool("INF_VCENTER_INSECURE", &c.VCenter.Insecure)
	env.String("INF_VCENTER_DATACENTER", &c.VCenter.Datacenter)
	env.String("INF_VCENTER_DATASTORE", &c.VCenter.Datastore)
	env.String("INF_VCENTER_RESOURCE_POOL", &c.VCenter.ResourcePool)
	env.String("INF_VCENTER_TOP_LVL_DIR", &c.VCenter.TopLevelFolder)

	env.String("VLAB_GATEWAY_IMAGES_DIR", &c.Images.Dir)
	env.String("VLAB_GATEWAY_IMAGE", &c.Images.Name)

	env.String("VLAB_URL", &c.Appliance.PublicURL)
	env.String("VLAB_DOMAIN", &c.Appliance.Domain)
	env.Bool("VLAB_PRODUCTION", &c.Appliance.Production)
	env.String("VLAB_IPAM_ADMIN", &c.Appliance.AdminUser)
	env.String("VLAB_IPAM_BROKER", &c.Appliance.LogBroker)
	env.String("VLAB_CONFIG_MASTER", &c.Appliance.ConfigMaster)

	return errors.Join(
		env.Int("INF_VCENTER_PORT", &c.VCenter.Port),
		env.Int("VLAB_GATEWAY_CONCURRENCY", &c.Dispatcher.Concurrency),
		env.Secret("INF_VCENTER_PASSWORD", &c.VCenter.Password),
		env.Secret("VLAB_IPAM_ADMIN_PW", &c.Appliance.AdminPassword),
		env.Secret("VLAB_IPAM_KEY", &c.Appliance.LogKey),
		env.Secret("VLAB_DDNS_KEY", &c.Appliance.DDNSKey),
	)
}

func (c *Config) validate() error {
	if err := envconfig.RequireSecrets(map[string]string{
		"INF_VCENTER_PASSWORD": c.VCenter.Password,
		"VLAB_IPAM_ADMIN_PW":   c.Appliance.AdminPassword,
		"VLAB_IPAM_KEY":        c.Appliance.LogKey,
		"VLAB_DDNS_KEY":        c.Appliance.DDNSKey,
	}); err != nil {
		return errors.Join(err, ErrInvalidConfig)
	}

	if c.VCenter.User == "" {
		return errors.Join(errors.New("vcenter user must be set"), ErrInvalidConfig)
	}

	if c.Dispatcher.Concurrency < 1 {
		return errors.Join(fmt.Errorf("concurrency must be positive, got %d", c.Dispatcher.Concurrency), ErrInvalidConfig)
	}

	if c.Timings.SentinelMaxAttempts < 1 {
		return errors.Join(
			fmt.Errorf("sentinel max attempts must be positive, got %d", c.Timings.SentinelMaxAttempts),
			ErrInvalidConfig,
		)
	}

	u, err := url.Parse(c.Appliance.PublicURL)
	if err != nil || u.Hostname() == "" {
		return errors.Join(fmt.Errorf("public url %q has no host", c.Appliance.PublicURL), err, ErrInvalidConfig)
	}

	if c.Appliance.ConfigMaster == "" {
		c.Appliance.ConfigMaster = u.Hostname()
	}

	for field, dst := range map[string]struct {
		in  string
		out *time.Duration
	}{
		"bootDelay":        {c.Timings.BootDelay, &c.bootDelay},
		"rebootDelay":      {c.Timings.RebootDelay, &c.rebootDelay},
		"sentinelInterval": {c.Timings.SentinelInterval, &c.sentinelInterval},
	} {
		d, err := time.ParseDuration(dst.in)
		if err != nil {
			return errors.Join(fmt.Errorf("timings.%s %q", field, dst.in), err, ErrInvalidConfig)
		}

		*dst.out = d
	}

	return nil
}
