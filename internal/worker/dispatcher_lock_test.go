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

package worker

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
)

func TestDispatcherLock(t *testing.T) {
	newDispatcher := func() *Dispatcher {
		return NewDispatcher(nil, nil, logr.Discard(), DispatcherOptions{})
	}

	t.Run("same user waits", func(t *testing.T) {
		d := newDispatcher()

		unlock := d.lock("alice")
		assert.Equal(t, 1, d.heldLocks())

		acquired := make(chan func())
		go func() { acquired <- d.lock("alice") }()

		select {
		case <-acquired:
			t.Fatal("second job of the same user must wait")
		case <-time.After(50 * time.Millisecond):
		}

		unlock()

		select {
		case unlock2 := <-acquired:
			assert.Equal(t, 1, d.heldLocks())
			unlock2()
		case <-time.After(time.Second):
			t.Fatal("second job never acquired the lock")
		}

		assert.Equal(t, 0, d.heldLocks())
	})

	t.Run("different users do not wait", func(t *testing.T) {
		d := newDispatcher()

		unlockAlice := d.lock("alice")
		unlockBob := d.lock("bob")
		assert.Equal(t, 2, d.heldLocks())

		unlockAlice()
		assert.Equal(t, 1, d.heldLocks())
		unlockBob()
		assert.Equal(t, 0, d.heldLocks())
	})

	t.Run("entries are dropped once released", func(t *testing.T) {
		d := newDispatcher()

		var wg sync.WaitGroup
		for i := range 100 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				unlock := d.lock(fmt.Sprintf("user-%d", i%10))
				unlock()
			}()
		}

		wg.Wait()
		assert.Equal(t, 0, d.heldLocks())
	})
}
