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

package mockadapter

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/adapter"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/types"
)

// ----------------------------------------------------- QUEUE ------------------------------------------------------ //

type MockQueue struct{ mock.Mock }

var _ adapter.Queue = (*MockQueue)(nil)

func NewMockQueue(t TestingT) *MockQueue {
	m := &MockQueue{}
	m.Test(t)
	register(t, m)

	return m
}

func (m *MockQueue) Enqueue(ctx context.Context, req types.JobRequest) error {
	return err(m.Called(ctx, req), 0)
}

func (m *MockQueue) SubscribeJobs(
	ctx context.Context,
	group string,
	handler adapter.JobHandler,
) (adapter.Subscription, error) {
	args := m.Called(ctx, group, handler)
	if v := args.Get(0); v != nil {
		return v.(adapter.Subscription), err(args, 1)
	}

	return nil, err(args, 1)
}

func (m *MockQueue) PublishResult(ctx context.Context, res types.JobResult) error {
	return err(m.Called(ctx, res), 0)
}

func (m *MockQueue) SubscribeResults(ctx context.Context, handler adapter.ResultHandler) (adapter.Subscription, error) {
	args := m.Called(ctx, handler)
	if v := args.Get(0); v != nil {
		return v.(adapter.Subscription), err(args, 1)
	}

	return nil, err(args, 1)
}

func (m *MockQueue) Close() {
	m.Called()
}

// --------------------------------------------------- TASK STORE --------------------------------------------------- //

type MockTaskStore struct{ mock.Mock }

var _ adapter.TaskStore = (*MockTaskStore)(nil)

func NewMockTaskStore(t TestingT) *MockTaskStore {
	m := &MockTaskStore{}
	m.Test(t)
	register(t, m)

	return m
}

func (m *MockTaskStore) Put(ctx context.Context, rec *types.TaskRecord) error {
	return err(m.Called(ctx, rec), 0)
}

func (m *MockTaskStore) Get(ctx context.Context, id string) (*types.TaskRecord, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*types.TaskRecord), err(args, 1)
	}

	return nil, err(args, 1)
}

func (m *MockTaskStore) ApplyResult(ctx context.Context, res types.JobResult) error {
	return err(m.Called(ctx, res), 0)
}

func (m *MockTaskStore) Close() error {
	return err(m.Called(), 0)
}
