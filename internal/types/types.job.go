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

package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrInvalidArgs      = errors.New("invalid job arguments")
)

// Operation is the name of a job.
type Operation string

const (
	OperationShow   Operation = "gateway.show"
	OperationCreate Operation = "gateway.create"
	OperationDelete Operation = "gateway.delete"
)

// ------------------------------------------------------- JOB ------------------------------------------------------ //

// JobRequest is one unit of work sent to the worker. It is never mutated once enqueued.
type JobRequest struct {
	TaskID        string
	Operation     Operation
	Username      string
	WAN           string
	LAN           string
	CorrelationID string
}

// jobMessage is the wire form of a JobRequest: arguments are positional,
// i.e. (username[, wan, lan][, correlation_id]).
type jobMessage struct {
	TaskID    string    `json:"task_id"`
	Operation Operation `json:"operation"`
	Args      []string  `json:"args"`
}

// Args returns the positional arguments of the job.
func (r JobRequest) Args() []string {
	args := []string{r.Username}
	if r.Operation == OperationCreate {
		args = append(args, r.WAN, r.LAN)
	}

	if r.CorrelationID != "" {
		args = append(args, r.CorrelationID)
	}

	return args
}

// MarshalJSON implements json.Marshaler.
func (r JobRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(jobMessage{TaskID: r.TaskID, Operation: r.Operation, Args: r.Args()})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *JobRequest) UnmarshalJSON(b []byte) error {
	var msg jobMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		return err
	}

	var required int

	switch msg.Operation {
	case OperationShow, OperationDelete:
		required = 1
	case OperationCreate:
		required = 3
	default:
		return errors.Join(fmt.Errorf("operation %q", msg.Operation), ErrUnknownOperation)
	}

	if len(msg.Args) != required && len(msg.Args) != required+1 {
		return errors.Join(
			fmt.Errorf("%s takes %d or %d arguments, got %d", msg.Operation, required, required+1, len(msg.Args)),
			ErrInvalidArgs,
		)
	}

	*r = JobRequest{TaskID: msg.TaskID, Operation: msg.Operation, Username: msg.Args[0]}
	if msg.Operation == OperationCreate {
		r.WAN, r.LAN = msg.Args[1], msg.Args[2]
	}

	if len(msg.Args) == required+1 {
		r.CorrelationID = msg.Args[required]
	}

	return nil
}

// ----------------------------------------------------- ENVELOPE --------------------------------------------------- //

// Envelope is the result of a job. Exactly one of Content and Error carries the outcome.
type Envelope struct {
	Content any            `json:"content"`
	Error   *string        `json:"error"`
	Params  map[string]any `json:"params"`
}

// NewEnvelope returns {content: {}, error: null, params: {}}.
func NewEnvelope() *Envelope {
	return &Envelope{
		Content: map[string]any{},
		Error:   nil,
		Params:  map[string]any{},
	}
}

// SetError records msg as the outcome and empties the content.
func (e *Envelope) SetError(msg string) {
	e.Content = map[string]any{}
	e.Error = &msg
}

// ------------------------------------------------------ RESULT ---------------------------------------------------- //

// TaskStatus is the state of a task as seen by the API.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskSuccess TaskStatus = "success"
	TaskFailure TaskStatus = "failure"
)

// JobResult is published by the worker once a job completes.
//
// A failed job carries no envelope: Failure holds the reason the job crashed.
type JobResult struct {
	TaskID  string     `json:"task_id"`
	Status  TaskStatus `json:"status"`
	Result  *Envelope  `json:"result,omitempty"`
	Failure string     `json:"failure,omitempty"`
}

// TaskRecord is the API-side record of an enqueued job.
type TaskRecord struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Operation     Operation  `json:"operation"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	Status        TaskStatus `json:"status"`
	Result        *Envelope  `json:"result,omitempty"`
	Failure       string     `json:"failure,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
