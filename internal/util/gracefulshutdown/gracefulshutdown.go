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

package gracefulshutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultHookTimeout bounds every shutdown hook.
const DefaultHookTimeout = time.Minute

// Hook releases a resource once the process context is cancelled.
type Hook func(ctx context.Context) error

// GracefulShutdown owns the process context. It is cancelled by SIGTERM, SIGINT or Shutdown.
//
// Shutdown cancels the context, waits for every goroutine started with Go, runs the registered hooks in reverse
// registration order and finally exits.
type GracefulShutdown struct {
	ctx    context.Context
	cancel context.CancelFunc
	name   string

	once      sync.Once
	readyOnce sync.Once
	wg        sync.WaitGroup
	ready     chan struct{}
	done      chan struct{}

	mu    sync.Mutex
	hooks []namedHook

	hookTimeout time.Duration
	exitFunc    func(int)
}

type namedHook struct {
	name string
	fn   Hook
}

// New returns a GracefulShutdown that calls os.Exit.
func New(name string) *GracefulShutdown {
	return NewWithExit(name, os.Exit)
}

// NewWithExit returns a GracefulShutdown calling exitFunc instead of os.Exit.
func NewWithExit(name string, exitFunc func(int)) *GracefulShutdown {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)

	gs := &GracefulShutdown{
		ctx:         ctx,
		cancel:      cancel,
		name:        name,
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
		hookTimeout: DefaultHookTimeout,
		exitFunc:    exitFunc,
	}

	go func() {
		select {
		case <-gs.ready:
			<-ctx.Done()
		case <-ctx.Done():
			slog.Warn("context cancelled before Ready was called", "binary", name)
		}

		gs.Shutdown(0)
	}()

	return gs
}

// Context returns the process context.
func (s *GracefulShutdown) Context() context.Context {
	return s.ctx
}

// CancelFunc returns the function cancelling the process context.
func (s *GracefulShutdown) CancelFunc() context.CancelFunc {
	return s.cancel
}

// WaitGroup returns the group Shutdown waits on before running hooks.
func (s *GracefulShutdown) WaitGroup() *sync.WaitGroup {
	return &s.wg
}

// Go runs fn in a tracked goroutine. A non-nil error from fn shuts the process down with exit code 1.
func (s *GracefulShutdown) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)

	go func() {
		err := fn(s.ctx)
		s.wg.Done()

		if err != nil {
			slog.ErrorContext(s.ctx, "❌ component failed", "component", name, "error", err.Error())
			s.Shutdown(1)
		}
	}()
}

// OnShutdown registers fn to run during Shutdown, after every Go goroutine returned.
func (s *GracefulShutdown) OnShutdown(name string, fn Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hooks = append(s.hooks, namedHook{name: name, fn: fn})
}

// Ready signals that every Go and WaitGroup().Add call was made. Calling it more than once is a no-op.
func (s *GracefulShutdown) Ready() {
	s.readyOnce.Do(func() {
		close(s.ready)
	})
}

// Shutdown stops the process. Only the first call has any effect.
func (s *GracefulShutdown) Shutdown(exitCode int) {
	s.once.Do(func() {
		slog.Info("⌛ gracefully shutting down", "binary", s.name)

		s.cancel()
		s.wg.Wait()

		s.mu.Lock()
		hooks := s.hooks
		s.mu.Unlock()

		for i := len(hooks) - 1; i >= 0; i-- {
			h := hooks[i]

			ctx, cancel := context.WithTimeout(context.Background(), s.hookTimeout)
			if err := h.fn(ctx); err != nil {
				slog.Error("❌ shutdown hook failed", "hook", h.name, "error", err.Error())

				if exitCode == 0 {
					exitCode = 1
				}
			}

			cancel()
		}

		s.exitFunc(exitCode)
		close(s.done)
	})
}

// Wait blocks until Shutdown completes. With os.Exit it never returns.
func (s *GracefulShutdown) Wait() {
	<-s.done
}
