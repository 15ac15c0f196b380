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

// Package mockcontroller provides testify mocks of the controller interfaces.
package mockcontroller

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/controller"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/types"
)

type TestingT interface {
	mock.TestingT
	Cleanup(func())
}

func errAt(args mock.Arguments, i int) error {
	if v := args.Get(i); v != nil {
		return v.(error)
	}

	return nil
}

func applianceAt(args mock.Arguments, i int) *types.Appliance {
	if v := args.Get(i); v != nil {
		return v.(*types.Appliance)
	}

	return nil
}

// ---------------------------------------------------- LOCATOR ----------------------------------------------------- //

type MockLocator struct{ mock.Mock }

var _ controller.Locator = (*MockLocator)(nil)

func NewMockLocator(t TestingT) *MockLocator {
	m := &MockLocator{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockLocator) Find(ctx context.Context, username string) (*types.Appliance, error) {
	args := m.Called(ctx, username)
	return applianceAt(args, 0), errAt(args, 1)
}

// -------------------------------------------------- PROVISIONER --------------------------------------------------- //

type MockProvisioner struct{ mock.Mock }

var _ controller.Provisioner = (*MockProvisioner)(nil)

func NewMockProvisioner(t TestingT) *MockProvisioner {
	m := &MockProvisioner{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockProvisioner) Provision(ctx context.Context, username, wan, lan string) (*types.Appliance, error) {
	args := m.Called(ctx, username, wan, lan)
	return applianceAt(args, 0), errAt(args, 1)
}

// ---------------------------------------------------- TEARDOWN ---------------------------------------------------- //

type MockTeardown struct{ mock.Mock }

var _ controller.Teardown = (*MockTeardown)(nil)

func NewMockTeardown(t TestingT) *MockTeardown {
	m := &MockTeardown{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockTeardown) Destroy(ctx context.Context, username string) error {
	return errAt(m.Called(ctx, username), 0)
}
