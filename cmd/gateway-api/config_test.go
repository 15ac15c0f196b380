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
)

func writeConfig(t *testing.T, content string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv(ConfigPathEnvKey, path)
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "gateway-api", Name)
	assert.Equal(t, "VLAB_GATEWAY_CONFIG_PATH", ConfigPathEnvKey)
}

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Setenv(ConfigPathEnvKey, "")

		config, err := loadConfig(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "https://localhost", config.PublicURL)
		assert.Equal(t, "nats://127.0.0.1:4222", config.MessageBroker)
		assert.False(t, config.Token.Verify)
		assert.Equal(t, 5000, config.APIServer.Port)
		assert.Equal(t, "/metrics", config.MetricsServer.Path)
		assert.Equal(t, "/readyz", config.ProbesServer.ReadinessPath)
		assert.Equal(t, 24*time.Hour, config.TaskStore.ttl)
	})

	t.Run("File then environment", func(t *testing.T) {
		writeConfig(t, `
publicURL: "https://vlab.example.org"
messageBroker: "nats://broker:4222"
logLevel: "debug"
token:
  verify: true
taskStore:
  inMemory: true
  ttl: "1h"
apiServer:
  port: 9000
  tls:
    enabled: true
    certPath: "/etc/vlab/tls/tls.crt"
    keyPath: "/etc/vlab/tls/tls.key"
probesServer:
  port: 9001
  livenessPath: "/live"
  readinessPath: "/ready"
metricsServer:
  port: 9002
  path: "/prom"
`)
		t.Setenv("VLAB_MESSAGE_BROKER", "nats://override:4222")
		t.Setenv("VLAB_AUTH_TOKEN_KEY", "signing-key")

		config, err := loadConfig(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "https://vlab.example.org", config.PublicURL)
		assert.Equal(t, "nats://override:4222", config.MessageBroker)
		assert.Equal(t, "debug", config.LogLevel)
		assert.True(t, config.Token.Verify)
		assert.Equal(t, "signing-key", config.Token.Key)
		assert.True(t, config.TaskStore.InMemory)
		assert.Equal(t, time.Hour, config.TaskStore.ttl)
		assert.Equal(t, 9000, config.APIServer.Port)
		assert.True(t, config.APIServer.TLS.Enabled)
		assert.Equal(t, "/etc/vlab/tls/tls.key", config.APIServer.TLS.KeyPath)
		assert.Equal(t, "/live", config.ProbesServer.LivenessPath)
		assert.Equal(t, "/prom", config.MetricsServer.Path)
	})

	t.Run("Token key from file", func(t *testing.T) {
		t.Setenv(ConfigPathEnvKey, "")
		t.Setenv("VLAB_VERIFY_TOKEN", "true")

		keyPath := filepath.Join(t.TempDir(), "key")
		require.NoError(t, os.WriteFile(keyPath, []byte("mounted-key\n"), 0o600))
		t.Setenv("VLAB_AUTH_TOKEN_KEY_FILE", keyPath)

		config, err := loadConfig(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "mounted-key", config.Token.Key)
	})

	for name, tc := range map[string]struct {
		yaml string
		env  map[string]string
	}{
		"Verify without key": {
			env: map[string]string{"VLAB_VERIFY_TOKEN": "true"},
		},
		"Public url without scheme": {
			env: map[string]string{"VLAB_URL": "vlab.example.org"},
		},
		"Bad ttl": {
			yaml: "taskStore:\n  ttl: tomorrow\n",
		},
		"Malformed yaml": {
			yaml: "apiServer: [",
		},
	} {
		t.Run(name, func(t *testing.T) {
			if tc.yaml != "" {
				writeConfig(t, tc.yaml)
			} else {
				t.Setenv(ConfigPathEnvKey, "")
			}

			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := loadConfig(context.Background())
			assert.Error(t, err)
		})
	}

	t.Run("Missing file", func(t *testing.T) {
		t.Setenv(ConfigPathEnvKey, filepath.Join(t.TempDir(), "nope.yaml"))

		_, err := loadConfig(context.Background())
		assert.Error(t, err)
	})
}
