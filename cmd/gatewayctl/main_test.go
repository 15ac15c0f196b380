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
	"bytes"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/certutil"
)

type fakeAPI struct {
	t       *testing.T
	polls   atomic.Int32
	pending int32
	body    map[string]string
	method  string
	status  int
	result  string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path != "/api/1/inf/gateway/healthcheck" {
		assert.Equal(f.t, "tok", r.Header.Get("X-Auth"))
	}

	switch {
	case r.URL.Path == "/api/1/inf/gateway/healthcheck":
		_, _ = io.WriteString(w, `{"latency":0.0001,"version":"dev"}`)
	case r.URL.Path == "/api/2/inf/gateway" && r.URL.Query().Get("describe") == "true":
		_, _ = io.WriteString(w, `{"POST":{"type":"object"}}`)
	case r.URL.Path == "/api/2/inf/gateway":
		f.method = r.Method

		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&f.body)
		}

		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"user":"alice","content":{"task-id":"t-1"}}`)
	case r.URL.Path == "/api/2/inf/gateway/task/t-1":
		if f.polls.Add(1) <= f.pending {
			w.WriteHeader(http.StatusAccepted)
			_, _ = io.WriteString(w, `{"user":"alice","content":{"task-id":"t-1","status":"pending"}}`)

			return
		}

		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, f.result)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func run(t *testing.T, api *fakeAPI, args ...string) (string, error) {
	t.Helper()

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	out := new(bytes.Buffer)
	cmd := newRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--url", srv.URL, "--token", "tok", "--interval", "1ms"}, args...))

	err := cmd.Execute()

	return out.String(), err
}

func TestCommands(t *testing.T) {
	t.Run("Create waits for the task", func(t *testing.T) {
		api := &fakeAPI{
			t:       t,
			pending: 2,
			status:  http.StatusOK,
			result:  `{"content":{"defaultGateway":{"state":"poweredOn"}},"error":null,"params":{}}`,
		}

		out, err := run(t, api, "create", "--wan", "frontEnd", "--lan", "alice_lab")
		require.NoError(t, err)

		assert.Equal(t, http.MethodPost, api.method)
		assert.Equal(t, map[string]string{"wan": "frontEnd", "lan": "alice_lab"}, api.body)
		assert.EqualValues(t, 3, api.polls.Load())
		assert.Contains(t, out, `"state": "poweredOn"`)
	})

	t.Run("No wait prints the task id", func(t *testing.T) {
		api := &fakeAPI{t: t}

		out, err := run(t, api, "delete", "--wait=false")
		require.NoError(t, err)

		assert.Equal(t, http.MethodDelete, api.method)
		assert.Equal(t, "t-1\n", out)
		assert.Zero(t, api.polls.Load())
	})

	t.Run("Task failure", func(t *testing.T) {
		api := &fakeAPI{
			t:      t,
			status: http.StatusInternalServerError,
			result: `{"user":"alice","content":{"task-id":"t-1"},"error":"platform unavailable"}`,
		}

		out, err := run(t, api, "task", "t-1")
		assert.ErrorIs(t, err, ErrTaskFailed)
		assert.ErrorContains(t, err, "platform unavailable")
		assert.Contains(t, out, `"error": "platform unavailable"`)
	})

	t.Run("Show describe", func(t *testing.T) {
		out, err := run(t, &fakeAPI{t: t}, "show", "--describe")
		require.NoError(t, err)
		assert.Contains(t, out, `"POST"`)
	})

	t.Run("Healthcheck", func(t *testing.T) {
		out, err := run(t, &fakeAPI{t: t}, "healthcheck")
		require.NoError(t, err)
		assert.Contains(t, out, `"version": "dev"`)
	})

	t.Run("Custom CA", func(t *testing.T) {
		ca, err := certutil.NewCA()
		require.NoError(t, err)

		certPath, keyPath, caPath, err := ca.WriteFiles(t.TempDir(), "127.0.0.1")
		require.NoError(t, err)

		pair, err := tls.LoadX509KeyPair(certPath, keyPath)
		require.NoError(t, err)

		srv := httptest.NewUnstartedServer(&fakeAPI{t: t})
		srv.TLS = &tls.Config{Certificates: []tls.Certificate{pair}, MinVersion: tls.VersionTLS12}
		srv.StartTLS()
		t.Cleanup(srv.Close)

		out := new(bytes.Buffer)
		cmd := newRootCommand()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"--url", srv.URL, "--ca-file", caPath, "healthcheck"})

		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), `"version": "dev"`)
	})

	t.Run("Missing token", func(t *testing.T) {
		t.Setenv("VLAB_TOKEN", "")

		cmd := newRootCommand()
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"show"})

		assert.ErrorIs(t, cmd.Execute(), ErrMissingToken)
	})

	t.Run("Create requires networks", func(t *testing.T) {
		_, err := run(t, &fakeAPI{t: t}, "create", "--wan", "frontEnd")
		assert.Error(t, err)
	})
}
