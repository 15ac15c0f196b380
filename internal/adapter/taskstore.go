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

package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/types"
)

var (
	ErrTaskNotFound = errors.New("task not found")

	ErrOpenTaskStore = errors.New("opening task store")
	ErrPutTask       = errors.New("writing task")
	ErrGetTask       = errors.New("reading task")
	ErrApplyResult   = errors.New("applying job result")
)

// --------------------------------------------------- INTERFACE ---------------------------------------------------- //

// TaskStore persists the API-side view of enqueued jobs.
type TaskStore interface {
	// Put writes rec, replacing any record with the same ID.
	Put(ctx context.Context, rec *types.TaskRecord) error
	// Get returns the record with the given id, or ErrTaskNotFound.
	Get(ctx context.Context, id string) (*types.TaskRecord, error)
	// ApplyResult moves the record named by res.TaskID to its final status.
	ApplyResult(ctx context.Context, res types.JobResult) error
	// Close releases the underlying database.
	Close() error
}

// TaskStoreOptions configures a badger TaskStore.
type TaskStoreOptions struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps every record in memory.
	InMemory bool
	// TTL expires records this long after their last write. Zero keeps them forever.
	TTL time.Duration
}

// --------------------------------------------------- CONSTRUCTORS ------------------------------------------------- //

// NewBadgerTaskStore opens a badger-backed TaskStore.
func NewBadgerTaskStore(opts TaskStoreOptions) (TaskStore, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(filepath.Clean(opts.Path))
	}

	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Join(err, ErrOpenTaskStore)
	}

	return &badgerTaskStore{db: db, ttl: opts.TTL, now: time.Now}, nil
}

type badgerTaskStore struct {
	db  *badger.DB
	ttl time.Duration
	now func() time.Time
}

func taskKey(id string) []byte {
	return []byte("task:" + id)
}

func (s *badgerTaskStore) Put(_ context.Context, rec *types.TaskRecord) error {
	if err := s.db.Update(func(txn *badger.Txn) error {
		return s.set(txn, rec)
	}); err != nil {
		return errors.Join(err, ErrPutTask)
	}

	return nil
}

func (s *badgerTaskStore) Get(_ context.Context, id string) (*types.TaskRecord, error) {
	var out *types.TaskRecord

	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = get(txn, id)

		return err
	})
	if errors.Is(err, ErrTaskNotFound) {
		return nil, err
	}

	if err != nil {
		return nil, errors.Join(err, ErrGetTask)
	}

	return out, nil
}

func (s *badgerTaskStore) ApplyResult(_ context.Context, res types.JobResult) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := get(txn, res.TaskID)
		if err != nil {
			return err
		}

		rec.Status = res.Status
		rec.Result = res.Result
		rec.Failure = res.Failure
		rec.UpdatedAt = s.now().UTC()

		return s.set(txn, rec)
	})
	if err != nil {
		return errors.Join(err, ErrApplyResult)
	}

	return nil
}

func (s *badgerTaskStore) Close() error {
	return s.db.Close()
}

func (s *badgerTaskStore) set(txn *badger.Txn, rec *types.TaskRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	entry := badger.NewEntry(taskKey(rec.ID), b)
	if s.ttl > 0 {
		entry = entry.WithTTL(s.ttl)
	}

	return txn.SetEntry(entry)
}

func get(txn *badger.Txn, id string) (*types.TaskRecord, error) {
	item, err := txn.Get(taskKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.Join(fmt.Errorf("task %q", id), ErrTaskNotFound)
	}

	if err != nil {
		return nil, err
	}

	out := new(types.TaskRecord)
	if err := item.Value(func(v []byte) error {
		return json.Unmarshal(v, out)
	}); err != nil {
		return nil, err
	}

	return out, nil
}
