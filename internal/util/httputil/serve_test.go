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

package httputil_test

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/gracefulshutdown"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/httputil"
	"github.com/alexandremahdhaoui/vlab-gateway/pkg/constants"
)

func freeAddr(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	require.NoError(t, l.Close())

	return addr
}

func TestServe(t *testing.T) {
	t.Run("Serves until cancelled", func(t *testing.T) {
		var (
			mu    sync.Mutex
			codes []int
		)

		gs := gracefulshutdown.NewWithExit("test", func(code int) {
			mu.Lock()
			defer mu.Unlock()

			codes = append(codes, code)
		})

		addr := freeAddr(t)
		srv := &http.Server{ //nolint:exhaustruct
			Addr: addr,
			Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = fmt.Fprint(w, r.Context().Value(constants.ServerNameContextKey))
			}),
			ReadHeaderTimeout: time.Second,
		}

		httputil.Serve(map[string]*http.Server{"api": srv}, gs)
		gs.Ready()

		var resp *http.Response
		require.Eventually(t, func() bool {
			var err error
			resp, err = http.Get("http://" + addr) //nolint:noctx

			return err == nil
		}, 2*time.Second, 10*time.Millisecond)

		defer resp.Body.Close()

		buf := make([]byte, 3)
		_, _ = resp.Body.Read(buf)
		assert.Equal(t, "api", string(buf))

		gs.CancelFunc()()
		gs.Wait()

		assert.Equal(t, []int{0}, codes)

		_, err := http.Get("http://" + addr) //nolint:noctx
		assert.Error(t, err)
	})

	t.Run("Listen failure exits 1", func(t *testing.T) {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer l.Close()

		var (
			mu    sync.Mutex
			codes []int
		)

		gs := gracefulshutdown.NewWithExit("test", func(code int) {
			mu.Lock()
			defer mu.Unlock()

			codes = append(codes, code)
		})

		httputil.Serve(map[string]*http.Server{
			"api": {Addr: l.Addr().String(), ReadHeaderTimeout: time.Second}, //nolint:exhaustruct
		}, gs)
		gs.Ready()
		gs.Wait()

		assert.Equal(t, []int{1}, codes)
	})
}
