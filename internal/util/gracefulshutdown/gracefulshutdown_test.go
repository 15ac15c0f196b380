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

package gracefulshutdown_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/gracefulshutdown"
)

type exitRecorder struct {
	mu    sync.Mutex
	calls []int
}

func (r *exitRecorder) exit(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, code)
}

func (r *exitRecorder) codes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]int(nil), r.calls...)
}

func TestShutdown(t *testing.T) {
	t.Run("Cancels context and exits once", func(t *testing.T) {
		rec := &exitRecorder{}
		gs := gracefulshutdown.NewWithExit("test", rec.exit)
		require.NoError(t, gs.Context().Err())

		var wg sync.WaitGroup
		for i := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				gs.Shutdown(i % 2)
			}()
		}

		wg.Wait()
		gs.Wait()

		assert.Error(t, gs.Context().Err())
		assert.Len(t, rec.codes(), 1)
	})

	t.Run("Waits for Go goroutines before hooks", func(t *testing.T) {
		rec := &exitRecorder{}
		gs := gracefulshutdown.NewWithExit("test", rec.exit)

		var (
			stopped atomic.Bool
			order   []string
			mu      sync.Mutex
		)

		gs.Go("worker", func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			stopped.Store(true)

			return nil
		})

		for _, name := range []string{"first", "second"} {
			gs.OnShutdown(name, func(context.Context) error {
				assert.True(t, stopped.Load())

				mu.Lock()
				defer mu.Unlock()

				order = append(order, name)

				return nil
			})
		}

		gs.Ready()
		gs.CancelFunc()()
		gs.Wait()

		assert.Equal(t, []string{"second", "first"}, order)
		assert.Equal(t, []int{0}, rec.codes())
	})

	t.Run("Failing component exits 1", func(t *testing.T) {
		rec := &exitRecorder{}
		gs := gracefulshutdown.NewWithExit("test", rec.exit)

		gs.Go("broken", func(context.Context) error {
			return errors.New("boom")
		})

		gs.Ready()
		gs.Wait()

		assert.Equal(t, []int{1}, rec.codes())
	})

	t.Run("Failing hook exits 1", func(t *testing.T) {
		rec := &exitRecorder{}
		gs := gracefulshutdown.NewWithExit("test", rec.exit)

		gs.OnShutdown("close", func(context.Context) error {
			return errors.New("boom")
		})

		gs.Shutdown(0)
		gs.Wait()

		assert.Equal(t, []int{1}, rec.codes())
	})
}
