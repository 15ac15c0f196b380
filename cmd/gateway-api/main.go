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
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/adapter"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/driver/server"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/gracefulshutdown"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/httputil"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/logging"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/tlsutil"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/tracing"
)

const (
	Name = "gateway-api"
)

var (
	Version        = "dev" //nolint:gochecknoglobals // set by ldflags
	CommitSHA      = "n/a" //nolint:gochecknoglobals // set by ldflags
	BuildTimestamp = "n/a" //nolint:gochecknoglobals // set by ldflags
)

// ------------------------------------------------- Main ----------------------------------------------------------- //

func main() {
	_, _ = fmt.Fprintf(
		os.Stdout,
		"Starting %s version %s (%s) %s\n",
		Name,
		Version,
		CommitSHA,
		BuildTimestamp,
	)

	// --------------------------------------------- Graceful Shutdown ---------------------------------------------- //

	gs := gracefulshutdown.New(Name)
	ctx := gs.Context()

	// --------------------------------------------- Config --------------------------------------------------------- //

	config, err := loadConfig(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "loading configuration", "error", err.Error())
		gs.Shutdown(1)
	}

	level, err := logging.ParseLevel(config.LogLevel)
	if err != nil {
		slog.ErrorContext(ctx, "parsing log level", "error", err.Error())
		gs.Shutdown(1)
	}

	_ = logging.Setup(logging.Options{Development: config.Development, Level: level})

	shutdownTracing, err := tracing.Setup(tracing.Options{
		ServiceName:    Name,
		ServiceVersion: Version,
		Stdout:         config.TraceStdout,
	})
	if err != nil {
		slog.ErrorContext(ctx, "setting up tracing", "error", err.Error())
		gs.Shutdown(1)
	}

	gs.OnShutdown("tracing", func(ctx context.Context) error { return shutdownTracing(ctx) })

	// --------------------------------------------- Adapter -------------------------------------------------------- //

	store, err := adapter.NewBadgerTaskStore(adapter.TaskStoreOptions{
		Path:     config.TaskStore.Path,
		InMemory: config.TaskStore.InMemory,
		TTL:      config.TaskStore.ttl,
	})
	if err != nil {
		slog.ErrorContext(ctx, "opening task store", "error", err.Error())
		gs.Shutdown(1)
	}

	gs.OnShutdown("task-store", func(context.Context) error { return store.Close() })

	queue, err := adapter.NewNATSQueue(config.MessageBroker, Name)
	if err != nil {
		slog.ErrorContext(ctx, "connecting to message broker", "error", err.Error())
		gs.Shutdown(1)
	}

	gs.OnShutdown("queue", func(context.Context) error {
		queue.Close()
		return nil
	})

	// --------------------------------------------- App ------------------------------------------------------------ //

	srv := server.New(queue, store, server.Options{
		PublicURL: config.PublicURL,
		Version:   Version,
		Token: server.TokenOptions{
			Verify: config.Token.Verify,
			Key:    []byte(config.Token.Key),
		},
	})

	results, err := queue.SubscribeResults(ctx, srv.ApplyResult)
	if err != nil {
		slog.ErrorContext(ctx, "subscribing to job results", "error", err.Error())
		gs.Shutdown(1)
	}

	gs.OnShutdown("results", func(context.Context) error { return results.Unsubscribe() })

	tlsConfig, err := tlsutil.BuildServerConfig(&config.APIServer.TLS)
	if err != nil {
		slog.ErrorContext(ctx, "building tls config", "error", err.Error())
		gs.Shutdown(1)
	}

	apiServer := &http.Server{ //nolint:exhaustruct
		Addr:              fmt.Sprintf(":%d", config.APIServer.Port),
		Handler:           srv.Handler(),
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: time.Second,
	}

	// --------------------------------------------- Run Server ----------------------------------------------------- //

	ready := new(atomic.Bool)

	httputil.Serve(map[string]*http.Server{
		"api":     apiServer,
		"metrics": setupMetricsServer(config),
		"probes":  setupProbesServer(config, ready),
	}, gs)

	ready.Store(true)
	gs.Ready()

	slog.InfoContext(ctx, "serving", "port", config.APIServer.Port, "verify_token", config.Token.Verify)

	gs.Wait()

	slog.Info("✅ gracefully stopped", "binary", Name)
}
