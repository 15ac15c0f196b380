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

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/semaphore"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/adapter"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/types"
	"github.com/alexandremahdhaoui/vlab-gateway/pkg/constants"
)

const defaultConcurrency = 4

var ErrStartDispatcher = errors.New("starting dispatcher")

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Concurrency bounds the number of jobs run at the same time.
	Concurrency int64
	// Group is the queue group shared by all workers.
	Group string
}

// Dispatcher consumes jobs from the queue, runs them and publishes their results.
//
// Jobs of the same user run one at a time within a Dispatcher. Two worker processes may still run
// jobs of the same user concurrently.
type Dispatcher struct {
	queue  adapter.Queue
	jobs   Jobs
	logger logr.Logger
	group  string

	sem     *semaphore.Weighted
	locksMu sync.Mutex
	locks   map[string]*userLock
	wg      sync.WaitGroup
}

// userLock serializes the jobs of one user. It is dropped once no job holds or waits for it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewDispatcher returns a new Dispatcher.
func NewDispatcher(queue adapter.Queue, jobs Jobs, logger logr.Logger, opts DispatcherOptions) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	if opts.Group == "" {
		opts.Group = constants.WorkerQueueGroup
	}

	return &Dispatcher{
		queue:  queue,
		jobs:   jobs,
		logger: logger,
		group:  opts.Group,
		sem:    semaphore.NewWeighted(opts.Concurrency),
		locks:  make(map[string]*userLock),
	}
}

// Start subscribes to the jobs subject. Jobs are run until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) (adapter.Subscription, error) {
	sub, err := d.queue.SubscribeJobs(ctx, d.group, func(ctx context.Context, data []byte) {
		// Blocks the delivery of the next job until a slot is free.
		if err := d.sem.Acquire(ctx, 1); err != nil {
			d.logger.Error(err, "dropping job: dispatcher is shutting down")
			return
		}

		d.wg.Add(1)

		go func() {
			defer d.wg.Done()
			defer d.sem.Release(1)

			d.Handle(ctx, data)
		}()
	})
	if err != nil {
		return nil, errors.Join(err, ErrStartDispatcher)
	}

	return sub, nil
}

// Wait blocks until every running job completed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Handle decodes and runs one job, then publishes its result.
//
// In-flight jobs are never cancelled: the job runs detached from ctx's cancellation.
func (d *Dispatcher) Handle(ctx context.Context, data []byte) {
	ctx = context.WithoutCancel(ctx)

	var req types.JobRequest
	if err := json.Unmarshal(data, &req); err != nil {
		d.rejectMalformed(ctx, data, err)
		return
	}

	log := d.logger.WithValues(
		"task_id", req.TaskID,
		"correlation_id", req.CorrelationID,
		"username", req.Username,
		"operation", string(req.Operation),
	)
	ctx = logr.NewContext(ctx, log)

	unlock := d.lock(req.Username)
	env, err := d.run(ctx, req)
	unlock()

	res := types.JobResult{TaskID: req.TaskID, Status: types.TaskSuccess, Result: env}
	if err != nil {
		res = types.JobResult{TaskID: req.TaskID, Status: types.TaskFailure, Failure: err.Error()}
	}

	if err := d.queue.PublishResult(ctx, res); err != nil {
		log.Error(err, "publishing job result")
	}
}

func (d *Dispatcher) run(ctx context.Context, req types.JobRequest) (*types.Envelope, error) {
	switch req.Operation {
	case types.OperationShow:
		return d.jobs.Show(ctx, req.Username)
	case types.OperationCreate:
		return d.jobs.Create(ctx, req.Username, req.WAN, req.LAN)
	case types.OperationDelete:
		return d.jobs.Delete(ctx, req.Username)
	default:
		return nil, errors.Join(fmt.Errorf("operation %q", req.Operation), types.ErrUnknownOperation)
	}
}

// rejectMalformed publishes a failure for a job that cannot be decoded, if its task id can be read.
func (d *Dispatcher) rejectMalformed(ctx context.Context, data []byte, err error) {
	var partial struct {
		TaskID string `json:"task_id"`
	}

	if jsonErr := json.Unmarshal(data, &partial); jsonErr != nil || partial.TaskID == "" {
		d.logger.Error(err, "dropping malformed job")
		return
	}

	log := d.logger.WithValues("task_id", partial.TaskID)
	log.Error(err, "rejecting malformed job")

	if err := d.queue.PublishResult(ctx, types.JobResult{
		TaskID:  partial.TaskID,
		Status:  types.TaskFailure,
		Failure: err.Error(),
	}); err != nil {
		log.Error(err, "publishing job result")
	}
}

func (d *Dispatcher) lock(username string) func() {
	d.locksMu.Lock()

	l, ok := d.locks[username]
	if !ok {
		l = &userLock{}
		d.locks[username] = l
	}

	l.refs++
	d.locksMu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		d.locksMu.Lock()
		defer d.locksMu.Unlock()

		l.refs--
		if l.refs == 0 {
			delete(d.locks, username)
		}
	}
}

// heldLocks returns the number of users with a running or waiting job.
func (d *Dispatcher) heldLocks() int {
	d.locksMu.Lock()
	defer d.locksMu.Unlock()

	return len(d.locks)
}
