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

package controller_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/adapter"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/controller"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/types"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/mocks/mockadapter"
)

func TestLocator(t *testing.T) {
	var (
		ctx context.Context

		connector *mockadapter.MockConnector
		session   *mockadapter.MockSession
		locator   controller.Locator
	)

	setup := func(t *testing.T) {
		t.Helper()

		ctx = context.Background()
		connector = mockadapter.NewMockConnector(t)
		session = mockadapter.NewMockSession(t)
		locator = controller.NewLocator(connector)

		connector.On("Connect", mock.Anything).Return(session, nil).Once()
		session.On("Close", mock.Anything).Return(nil).Once()
	}

	t.Run("no folder", func(t *testing.T) {
		setup(t)

		session.On("Folder", mock.Anything, "alice").Return(nil, adapter.ErrFolderNotFound)

		out, err := locator.Find(ctx, "alice")
		assert.NoError(t, err)
		assert.Nil(t, out)
	})

	t.Run("no appliance in folder", func(t *testing.T) {
		setup(t)

		folder := mockadapter.Folder("alice")
		session.On("Folder", mock.Anything, "alice").Return(folder, nil)
		session.On("Children", mock.Anything, folder).Return([]types.VMHandle{
			{Name: "someVM", ID: "vm-1"},
		}, nil)

		out, err := locator.Find(ctx, "alice")
		assert.NoError(t, err)
		assert.Nil(t, out)
	})

	t.Run("first match wins", func(t *testing.T) {
		setup(t)

		folder := mockadapter.Folder("alice")
		expected := &types.Appliance{Name: types.ComponentName, MOID: "vm-2", State: types.PowerOn}

		session.On("Folder", mock.Anything, "alice").Return(folder, nil)
		session.On("Children", mock.Anything, folder).Return([]types.VMHandle{
			{Name: "someVM", ID: "vm-1"},
			{Name: types.ComponentName, ID: "vm-2"},
			{Name: types.ComponentName, ID: "vm-3"},
		}, nil)
		session.On("Info", mock.Anything, types.VMHandle{Name: types.ComponentName, ID: "vm-2"}, false).
			Return(expected, nil).Once()

		out, err := locator.Find(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, expected, out)
	})

	t.Run("platform failure", func(t *testing.T) {
		setup(t)

		session.On("Folder", mock.Anything, "alice").Return(nil, errors.New("boom"))

		_, err := locator.Find(ctx, "alice")
		assert.ErrorIs(t, err, controller.ErrFind)
		assert.Equal(t, types.KindPlatform, types.KindOf(err))
	})

	t.Run("connect failure", func(t *testing.T) {
		ctx = context.Background()
		connector = mockadapter.NewMockConnector(t)
		locator = controller.NewLocator(connector)

		connector.On("Connect", mock.Anything).Return(nil, adapter.ErrConnect)

		_, err := locator.Find(ctx, "alice")
		assert.ErrorIs(t, err, adapter.ErrConnect)
	})
}

func TestTeardown(t *testing.T) {
	var (
		ctx context.Context

		connector *mockadapter.MockConnector
		session   *mockadapter.MockSession
		task      *mockadapter.MockTask
		teardown  controller.Teardown

		calls []string
	)

	vm := types.VMHandle{Name: types.ComponentName, ID: "vm-42"}
	folder := mockadapter.Folder("alice")

	setup := func(t *testing.T) {
		t.Helper()

		ctx = context.Background()
		calls = nil
		connector = mockadapter.NewMockConnector(t)
		session = mockadapter.NewMockSession(t)
		task = mockadapter.NewMockTask(t)
		teardown = controller.NewTeardown(connector)

		record := func(name string) func(mock.Arguments) {
			return func(mock.Arguments) { calls = append(calls, name) }
		}

		connector.On("Connect", mock.Anything).Return(session, nil).Once()
		session.On("Close", mock.Anything).Return(nil).Run(record("close")).Once()
		session.On("Folder", mock.Anything, "alice").Return(folder, nil)
		session.On("Children", mock.Anything, folder).Return([]types.VMHandle{vm}, nil)

		session.On("Power", mock.Anything, vm, types.PowerOff).Return(nil).Run(record("power_off")).Maybe()
		session.On("Destroy", mock.Anything, vm).Return(task, nil).Run(record("destroy")).Maybe()
	}

	t.Run("powers off, destroys and waits", func(t *testing.T) {
		setup(t)

		task.On("Wait", mock.Anything).Return(nil).Run(func(mock.Arguments) {
			calls = append(calls, "wait")
		}).Once()

		require.NoError(t, teardown.Destroy(ctx, "alice"))
		assert.Equal(t, []string{"power_off", "destroy", "wait", "close"}, calls)
	})

	t.Run("destroy task fails", func(t *testing.T) {
		setup(t)

		task.On("Wait", mock.Anything).Return(errors.New("task failed")).Once()

		err := teardown.Destroy(ctx, "alice")
		assert.ErrorIs(t, err, controller.ErrDestroy)
	})

	t.Run("power off fails", func(t *testing.T) {
		ctx = context.Background()
		connector = mockadapter.NewMockConnector(t)
		session = mockadapter.NewMockSession(t)
		teardown = controller.NewTeardown(connector)

		connector.On("Connect", mock.Anything).Return(session, nil).Once()
		session.On("Close", mock.Anything).Return(nil).Once()
		session.On("Folder", mock.Anything, "alice").Return(folder, nil)
		session.On("Children", mock.Anything, folder).Return([]types.VMHandle{vm}, nil)
		session.On("Power", mock.Anything, vm, types.PowerOff).Return(adapter.ErrPower)

		err := teardown.Destroy(ctx, "alice")
		assert.ErrorIs(t, err, adapter.ErrPower)
		session.AssertNotCalled(t, "Destroy", mock.Anything, mock.Anything)
	})

	t.Run("no appliance is a no-op", func(t *testing.T) {
		ctx = context.Background()
		connector = mockadapter.NewMockConnector(t)
		session = mockadapter.NewMockSession(t)
		teardown = controller.NewTeardown(connector)

		connector.On("Connect", mock.Anything).Return(session, nil).Once()
		session.On("Close", mock.Anything).Return(nil).Once()
		session.On("Folder", mock.Anything, "alice").Return(nil, adapter.ErrFolderNotFound)

		assert.NoError(t, teardown.Destroy(ctx, "alice"))
		session.AssertNotCalled(t, "Power", mock.Anything, mock.Anything, mock.Anything)
		session.AssertNotCalled(t, "Destroy", mock.Anything, mock.Anything)
	})
}
