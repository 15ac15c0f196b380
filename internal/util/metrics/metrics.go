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

// Package metrics holds the Prometheus collectors shared by the gateway binaries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "vlab"
	subsystem = "gateway"
)

const (
	OutcomeSuccess   = "success"
	OutcomeRecovered = "recovered"
	OutcomeFailure   = "failure"
)

var (
	// JobsTotal counts completed jobs by operation and outcome.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "jobs_total",
		Help:      "Number of jobs run by the worker, by operation and outcome.",
	}, []string{"operation", "outcome"})

	// JobDuration observes how long jobs take.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "job_duration_seconds",
		Help:      "Duration of jobs run by the worker.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"operation"})

	// GuestCommandFailures counts best-effort guest commands that exited non-zero.
	GuestCommandFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "guest_command_failures_total",
		Help:      "Number of guest configuration commands that exited with a non-zero code.",
	}, []string{"step"})

	// TasksEnqueued counts jobs accepted by the API.
	TasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "tasks_enqueued_total",
		Help:      "Number of jobs enqueued by the API.",
	}, []string{"operation"})

	// HTTPRequests counts API requests by status code and method.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "http_requests_total",
		Help:      "Number of HTTP requests served by the API.",
	}, []string{"code", "method"})
)
