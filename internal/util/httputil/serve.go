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

package httputil

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/gracefulshutdown"
	"github.com/alexandremahdhaoui/vlab-gateway/pkg/constants"
)

// Serve runs every server under gs, over TLS when its TLSConfig is set. A server failing to listen shuts the process down with exit code 1.
// Servers are drained once the process context is cancelled.
func Serve(servers map[string]*http.Server, gs *gracefulshutdown.GracefulShutdown) {
	for name, server := range servers {
		ctx := context.WithValue(gs.Context(), constants.ServerNameContextKey, name)

		server.BaseContext = func(_ net.Listener) context.Context {
			return ctx
		}

		gs.Go(name, func(gsCtx context.Context) error {
			errCh := make(chan error, 1)

			go func() {
				slog.InfoContext(ctx, "starting server", "server", name, "addr", server.Addr, "tls", server.TLSConfig != nil)

				if server.TLSConfig != nil {
					// Certificates are carried by TLSConfig.
					errCh <- server.ListenAndServeTLS("", "")
					return
				}

				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}

				return err
			case <-gsCtx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(
				context.WithValue(context.Background(), constants.ServerNameContextKey, name),
				gracefulshutdown.DefaultHookTimeout,
			)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return err
			}

			<-errCh
			slog.InfoContext(shutdownCtx, "✅ gracefully shut down server", "server", name)

			return nil
		})
	}
}
