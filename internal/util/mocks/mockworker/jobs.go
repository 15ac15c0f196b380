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

// Package mockworker provides testify mocks of the worker interfaces.
package mockworker

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/types"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/worker"
)

type MockJobs struct{ mock.Mock }

var _ worker.Jobs = (*MockJobs)(nil)

func NewMockJobs(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockJobs {
	m := &MockJobs{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockJobs) Show(ctx context.Context, username string) (*types.Envelope, error) {
	return result(m.Called(ctx, username))
}

func (m *MockJobs) Create(ctx context.Context, username, wan, lan string) (*types.Envelope, error) {
	return result(m.Called(ctx, username, wan, lan))
}

func (m *MockJobs) Delete(ctx context.Context, username string) (*types.Envelope, error) {
	return result(m.Called(ctx, username))
}

func result(args mock.Arguments) (*types.Envelope, error) {
	var (
		env *types.Envelope
		err error
	)

	if v := args.Get(0); v != nil {
		env = v.(*types.Envelope)
	}

	if v := args.Get(1); v != nil {
		err = v.(error)
	}

	return env, err
}
