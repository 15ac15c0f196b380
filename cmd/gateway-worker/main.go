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
	"net"
	"net/http"
	"os"
	"sync/atomic"

	"k8s.io/utils/clock"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/adapter"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/controller"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/types"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/gracefulshutdown"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/httputil"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/logging"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/tracing"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/worker"
)

const (
	Name = "gateway-worker"
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

	logger := logging.Setup(logging.Options{Development: config.Development, Level: level}).WithName(Name)

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

	connector := adapter.NewVSphere(adapter.VSphereConfig{
		Host:           config.VCenter.Host,
		Port:           config.VCenter.Port,
		User:           config.VCenter.User,
		Password:       config.VCenter.Password,
		Insecure:       config.VCenter.Insecure,
		Datacenter:     config.VCenter.Datacenter,
		Datastore:      config.VCenter.Datastore,
		ResourcePool:   config.VCenter.ResourcePool,
		TopLevelFolder: config.VCenter.TopLevelFolder,
	})

	queue, err := adapter.NewNATSQueue(config.MessageBroker, Name)
	if err != nil {
		slog.ErrorContext(ctx, "connecting to message broker", "error", err.Error())
		gs.Shutdown(1)
	}

	gs.OnShutdown("queue", func(context.Context) error {
		queue.Close()
		return nil
	})

	// --------------------------------------------- Controller ----------------------------------------------------- //

	creds := types.Credentials{
		Username: config.Appliance.AdminUser,
		Password: config.Appliance.AdminPassword,
	}

	registry, err := controller.NewStrategyRegistry(
		config.Images.Strategies,
		config.Images.DefaultStrategy,
		controller.NewGuestConfigStrategy(controller.GuestConfigOptions{
			Credentials:  creds,
			Domain:       config.Appliance.Domain,
			PublicURL:    config.Appliance.PublicURL,
			Production:   config.Appliance.Production,
			LogBroker:    config.Appliance.LogBroker,
			LogKey:       config.Appliance.LogKey,
			DDNSKey:      config.Appliance.DDNSKey,
			ConfigMaster: config.Appliance.ConfigMaster,
			BootDelay:    config.bootDelay,
			RebootDelay:  config.rebootDelay,
		}, net.DefaultResolver, clock.RealClock{}),
		controller.NewAwaitSentinelStrategy(controller.AwaitSentinelOptions{
			Credentials:  creds,
			SentinelPath: config.Timings.SentinelPath,
			Interval:     config.sentinelInterval,
			MaxAttempts:  config.Timings.SentinelMaxAttempts,
		}, clock.RealClock{}),
	)
	if err != nil {
		slog.ErrorContext(ctx, "building setup strategy registry", "error", err.Error())
		gs.Shutdown(1)
	}

	jobs := worker.NewJobs(
		controller.NewLocator(connector),
		controller.NewProvisioner(connector, registry, controller.ProvisionerOptions{
			ImageDir:  config.Images.Dir,
			ImageName: config.Images.Name,
		}),
		controller.NewTeardown(connector),
		clock.RealClock{},
	)

	// --------------------------------------------- Dispatcher ----------------------------------------------------- //

	dispatcher := worker.NewDispatcher(queue, jobs, logger, worker.DispatcherOptions{
		Concurrency: int64(config.Dispatcher.Concurrency),
		Group:       config.Dispatcher.Group,
	})

	sub, err := dispatcher.Start(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "starting dispatcher", "error", err.Error())
		gs.Shutdown(1)
	}

	// Hooks run in reverse order: stop consuming, drain running jobs, then close the queue.
	gs.OnShutdown("dispatcher", func(context.Context) error {
		dispatcher.Wait()
		return nil
	})

	gs.OnShutdown("jobs", func(context.Context) error { return sub.Unsubscribe() })

	// --------------------------------------------- Run Server ----------------------------------------------------- //

	ready := new(atomic.Bool)

	httputil.Serve(map[string]*http.Server{
		"metrics": setupMetricsServer(config),
		"probes":  setupProbesServer(config, ready),
	}, gs)

	ready.Store(true)
	gs.Ready()

	slog.InfoContext(ctx, "consuming jobs",
		"group", config.Dispatcher.Group,
		"concurrency", config.Dispatcher.Concurrency,
		"image", config.Images.Name,
	)

	gs.Wait()

	slog.Info("✅ gracefully stopped", "binary", Name)
}
