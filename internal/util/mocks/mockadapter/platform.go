// Copyright 2024 Alexandre Mahdhaoui
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mockadapter provides testify mocks of the adapter interfaces.
package mockadapter

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/adapter"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/types"
)

// TestingT is satisfied by *testing.T.
type TestingT interface {
	mock.TestingT
	Cleanup(func())
}

func register(t TestingT, m interface{ AssertExpectations(mock.TestingT) bool }) {
	t.Cleanup(func() { m.AssertExpectations(t) })
}

// err returns the error stored at index i of args, tolerating nil.
func err(args mock.Arguments, i int) error {
	if v := args.Get(i); v != nil {
		return v.(error)
	}

	return nil
}

// --------------------------------------------------- CONNECTOR ---------------------------------------------------- //

type MockConnector struct{ mock.Mock }

var _ adapter.Connector = (*MockConnector)(nil)

func NewMockConnector(t TestingT) *MockConnector {
	m := &MockConnector{}
	m.Test(t)
	register(t, m)

	return m
}

func (m *MockConnector) Connect(ctx context.Context) (adapter.Session, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(adapter.Session), err(args, 1)
	}

	return nil, err(args, 1)
}

// ---------------------------------------------------- SESSION ----------------------------------------------------- //

type MockSession struct{ mock.Mock }

var _ adapter.Session = (*MockSession)(nil)

func NewMockSession(t TestingT) *MockSession {
	m := &MockSession{}
	m.Test(t)
	register(t, m)

	return m
}

func (m *MockSession) Close(ctx context.Context) error {
	return err(m.Called(ctx), 0)
}

func (m *MockSession) Folder(ctx context.Context, name string) (adapter.Folder, error) {
	args := m.Called(ctx, name)
	if v := args.Get(0); v != nil {
		return v.(adapter.Folder), err(args, 1)
	}

	return nil, err(args, 1)
}

func (m *MockSession) Children(ctx context.Context, folder adapter.Folder) ([]types.VMHandle, error) {
	args := m.Called(ctx, folder)
	if v := args.Get(0); v != nil {
		return v.([]types.VMHandle), err(args, 1)
	}

	return nil, err(args, 1)
}

func (m *MockSession) Networks(ctx context.Context) (map[string]types.NetworkRef, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(map[string]types.NetworkRef), err(args, 1)
	}

	return nil, err(args, 1)
}

func (m *MockSession) OpenTemplate(ctx context.Context, path string) (adapter.Template, error) {
	args := m.Called(ctx, path)
	if v := args.Get(0); v != nil {
		return v.(adapter.Template), err(args, 1)
	}

	return nil, err(args, 1)
}

func (m *MockSession) Deploy(
	ctx context.Context,
	tmpl adapter.Template,
	networkMap []types.NetworkMapEntry,
	username, name string,
) (types.VMHandle, error) {
	args := m.Called(ctx, tmpl, networkMap, username, name)

	return args.Get(0).(types.VMHandle), err(args, 1)
}

func (m *MockSession) Info(ctx context.Context, vm types.VMHandle, ensureIP bool) (*types.Appliance, error) {
	args := m.Called(ctx, vm, ensureIP)
	if v := args.Get(0); v != nil {
		return v.(*types.Appliance), err(args, 1)
	}

	return nil, err(args, 1)
}

func (m *MockSession) Power(ctx context.Context, vm types.VMHandle, state types.PowerState) error {
	return err(m.Called(ctx, vm, state), 0)
}

func (m *MockSession) Destroy(ctx context.Context, vm types.VMHandle) (adapter.Task, error) {
	args := m.Called(ctx, vm)
	if v := args.Get(0); v != nil {
		return v.(adapter.Task), err(args, 1)
	}

	return nil, err(args, 1)
}

func (m *MockSession) Reconfigure(ctx context.Context, vm types.VMHandle, annotation string) error {
	return err(m.Called(ctx, vm, annotation), 0)
}

func (m *MockSession) RegenerateNICAddresses(ctx context.Context, vm types.VMHandle) error {
	return err(m.Called(ctx, vm), 0)
}

func (m *MockSession) RebootGuest(ctx context.Context, vm types.VMHandle) error {
	return err(m.Called(ctx, vm), 0)
}

func (m *MockSession) RunCommand(
	ctx context.Context,
	vm types.VMHandle,
	creds types.Credentials,
	cmd types.GuestCommand,
) (types.GuestCommandResult, error) {
	args := m.Called(ctx, vm, creds, cmd)

	return args.Get(0).(types.GuestCommandResult), err(args, 1)
}

// ---------------------------------------------------- HANDLES ----------------------------------------------------- //

// Folder is a static adapter.Folder.
type Folder string

func (f Folder) Name() string { return string(f) }

type MockTemplate struct{ mock.Mock }

var _ adapter.Template = (*MockTemplate)(nil)

func NewMockTemplate(t TestingT) *MockTemplate {
	m := &MockTemplate{}
	m.Test(t)
	register(t, m)

	return m
}

func (m *MockTemplate) Name() string {
	return m.Called().String(0)
}

func (m *MockTemplate) Networks() []string {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.([]string)
	}

	return nil
}

func (m *MockTemplate) Close() error {
	return err(m.Called(), 0)
}

type MockTask struct{ mock.Mock }

var _ adapter.Task = (*MockTask)(nil)

func NewMockTask(t TestingT) *MockTask {
	m := &MockTask{}
	m.Test(t)
	register(t, m)

	return m
}

func (m *MockTask) Wait(ctx context.Context) error {
	return err(m.Called(ctx), 0)
}
