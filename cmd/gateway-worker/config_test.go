//go:build unit

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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/controller"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/envconfig"
)

func setSecrets(t *testing.T) {
	t.Helper()

	t.Setenv(ConfigPathEnvKey, "")
	t.Setenv("INF_VCENTER_USER", "svc-vlab")
	t.Setenv("INF_VCENTER_PASSWORD", "vcenter-pw")
	t.Setenv("VLAB_IPAM_ADMIN_PW", "admin-pw")
	t.Setenv("VLAB_IPAM_KEY", "log-key")
	t.Setenv("VLAB_DDNS_KEY", "ddns-key")
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "gateway-worker", Name)
	assert.Equal(t, "VLAB_GATEWAY_CONFIG_PATH", ConfigPathEnvKey)
}

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		setSecrets(t)

		config, err := loadConfig(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 443, config.VCenter.Port)
		assert.Equal(t, "vcenter-pw", config.VCenter.Password)
		assert.Equal(t, "vlab", config.VCenter.TopLevelFolder)
		assert.Equal(t, controller.DefaultImageName, config.Images.Name)
		assert.Equal(t, controller.StrategyGuestConfig, config.Images.DefaultStrategy)
		assert.Equal(t, "administrator", config.Appliance.AdminUser)
		assert.Equal(t, "localhost", config.Appliance.ConfigMaster)
		assert.Equal(t, 4, config.Dispatcher.Concurrency)
		assert.Equal(t, time.Minute, config.bootDelay)
		assert.Equal(t, 30*time.Second, config.rebootDelay)
		assert.Equal(t, 5*time.Second, config.sentinelInterval)
	})

	t.Run("File then environment", func(t *testing.T) {
		setSecrets(t)

		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
vcenter:
  host: "vcenter.example.org"
  datacenter: "DC1"
images:
  name: "gateway-sentinel.ova"
  strategies:
    gateway-sentinel.ova: await-sentinel
appliance:
  publicURL: "https://vlab.example.org"
  domain: "example.org"
timings:
  bootDelay: "2m"
  sentinelMaxAttempts: 10
dispatcher:
  concurrency: 2
`), 0o600))
		t.Setenv(ConfigPathEnvKey, path)
		t.Setenv("INF_VCENTER_PORT", "8443")
		t.Setenv("VLAB_GATEWAY_CONCURRENCY", "8")
		t.Setenv("VLAB_CONFIG_MASTER", "salt.example.org")

		config, err := loadConfig(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "vcenter.example.org", config.VCenter.Host)
		assert.Equal(t, 8443, config.VCenter.Port)
		assert.Equal(t, "DC1", config.VCenter.Datacenter)
		assert.Equal(t, map[string]string{"gateway-sentinel.ova": controller.StrategyAwaitSentinel}, config.Images.Strategies)
		assert.Equal(t, "example.org", config.Appliance.Domain)
		assert.Equal(t, "salt.example.org", config.Appliance.ConfigMaster)
		assert.Equal(t, 2*time.Minute, config.bootDelay)
		assert.Equal(t, 10, config.Timings.SentinelMaxAttempts)
		assert.Equal(t, 8, config.Dispatcher.Concurrency)
	})

	t.Run("Secrets from files", func(t *testing.T) {
		setSecrets(t)
		t.Setenv("VLAB_DDNS_KEY", "")

		path := filepath.Join(t.TempDir(), "ddns")
		require.NoError(t, os.WriteFile(path, []byte("mounted-ddns\n"), 0o600))
		t.Setenv("VLAB_DDNS_KEY_FILE", path)

		config, err := loadConfig(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "mounted-ddns", config.Appliance.DDNSKey)
	})

	t.Run("Missing secrets", func(t *testing.T) {
		setSecrets(t)
		t.Setenv("VLAB_IPAM_ADMIN_PW", "")
		t.Setenv("VLAB_IPAM_KEY", "")

		_, err := loadConfig(context.Background())
		assert.ErrorIs(t, err, envconfig.ErrMissingSecret)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.ErrorContains(t, err, "VLAB_IPAM_ADMIN_PW, VLAB_IPAM_KEY")
	})

	for name, env := range map[string]map[string]string{
		"Bad port":         {"INF_VCENTER_PORT": "https"},
		"Zero concurrency": {"VLAB_GATEWAY_CONCURRENCY": "0"},
		"No public host":   {"VLAB_URL": "/relative"},
		"No vcenter user":  {"INF_VCENTER_USER": ""},
	} {
		t.Run(name, func(t *testing.T) {
			setSecrets(t)

			for k, v := range env {
				t.Setenv(k, v)
			}

			_, err := loadConfig(context.Background())
			assert.Error(t, err)
		})
	}
}
