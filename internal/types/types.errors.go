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

import "errors"

// ErrorKind classifies job failures. Only validation kinds are reported back to the caller
// in the result envelope; every other kind fails the task.
type ErrorKind int

const (
	// KindPlatform is any control-plane or connectivity failure.
	KindPlatform ErrorKind = iota
	// KindNetworkNotFound means a caller-supplied network name does not exist on the platform.
	KindNetworkNotFound
	// KindUnexpectedTopology means the template declares a network that is neither "wan" nor "lan".
	KindUnexpectedTopology
	// KindReadinessTimeout means the appliance never signalled it finished its first boot.
	KindReadinessTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetworkNotFound:
		return "NetworkNotFound"
	case KindUnexpectedTopology:
		return "UnexpectedTemplateTopology"
	case KindReadinessTimeout:
		return "GatewayNeverReady"
	default:
		return "PlatformFailure"
	}
}

// Recoverable reports whether failures of this kind are returned in the envelope.
func (k ErrorKind) Recoverable() bool {
	return k == KindNetworkNotFound || k == KindUnexpectedTopology
}

// JobError is a classified job failure. Its message is user-facing and must be kept verbatim.
type JobError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

// NewJobError returns a new JobError.
func NewJobError(kind ErrorKind, msg string, err error) *JobError {
	return &JobError{Kind: kind, Msg: msg, Err: err}
}

func (e *JobError) Error() string {
	return e.Msg
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first JobError found in err's tree, or KindPlatform.
func KindOf(err error) ErrorKind {
	var jerr *JobError
	if errors.As(err, &jerr) {
		return jerr.Kind
	}

	return KindPlatform
}
