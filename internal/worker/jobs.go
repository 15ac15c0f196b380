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

// Package worker runs gateway jobs received from the queue.
package worker

import (
	"context"
	"errors"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/controller"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/types"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/metrics"
)

const tracerName = "github.com/alexandremahdhaoui/vlab-gateway/internal/worker"

// ---------------------------------------------------- INTERFACE --------------------------------------------------- //

// Jobs are the entry points of the gateway operations.
//
// Each returns an envelope when the job ran to completion, including when it failed validation: the validation
// message is then stored verbatim in the envelope's error. Any other failure is returned as an error and
// the envelope is nil.
type Jobs interface {
	Show(ctx context.Context, username string) (*types.Envelope, error)
	Create(ctx context.Context, username, wan, lan string) (*types.Envelope, error)
	Delete(ctx context.Context, username string) (*types.Envelope, error)
}

// --------------------------------------------------- CONSTRUCTORS ------------------------------------------------- //

// NewJobs returns new Jobs.
func NewJobs(
	locator controller.Locator,
	provisioner controller.Provisioner,
	teardown controller.Teardown,
	clk clock.PassiveClock,
) Jobs {
	return &jobs{
		locator:     locator,
		provisioner: provisioner,
		teardown:    teardown,
		clock:       clk,
		tracer:      otel.Tracer(tracerName),
	}
}

// ------------------------------------------------------ JOBS ------------------------------------------------------ //

type jobs struct {
	locator     controller.Locator
	provisioner controller.Provisioner
	teardown    controller.Teardown

	clock  clock.PassiveClock
	tracer trace.Tracer
}

func (j *jobs) Show(ctx context.Context, username string) (*types.Envelope, error) {
	return j.run(ctx, types.OperationShow, username, func(ctx context.Context) (any, error) {
		info, err := j.locator.Find(ctx, username)
		if err != nil || info == nil {
			return map[string]any{}, err
		}

		return info, nil
	})
}

func (j *jobs) Create(ctx context.Context, username, wan, lan string) (*types.Envelope, error) {
	return j.run(ctx, types.OperationCreate, username, func(ctx context.Context) (any, error) {
		return j.provisioner.Provision(ctx, username, wan, lan)
	})
}

func (j *jobs) Delete(ctx context.Context, username string) (*types.Envelope, error) {
	return j.run(ctx, types.OperationDelete, username, func(ctx context.Context) (any, error) {
		return nil, j.teardown.Destroy(ctx, username)
	})
}

func (j *jobs) run(
	ctx context.Context,
	op types.Operation,
	username string,
	fn func(ctx context.Context) (any, error),
) (*types.Envelope, error) {
	ctx, span := j.tracer.Start(ctx, string(op), trace.WithAttributes(attribute.String("username", username)))
	defer span.End()

	log := logr.FromContextOrDiscard(ctx)
	start := j.clock.Now()

	log.Info("task starting")

	env := types.NewEnvelope()
	content, err := fn(ctx)

	outcome := metrics.OutcomeSuccess

	switch {
	case err == nil:
		env.Content = content
	case types.KindOf(err).Recoverable():
		var jerr *types.JobError

		_ = errors.As(err, &jerr)
		env.SetError(jerr.Msg)

		outcome = metrics.OutcomeRecovered
		span.SetAttributes(attribute.String("error.kind", jerr.Kind.String()))
		log.Info("task failed validation", "error_kind", jerr.Kind.String(), "reason", jerr.Msg)
	default:
		outcome = metrics.OutcomeFailure
		span.RecordError(err)
		span.SetStatus(codes.Error, types.KindOf(err).String())
		log.Error(err, "task failed", "error_kind", types.KindOf(err).String())
	}

	elapsed := j.clock.Since(start)
	metrics.JobsTotal.WithLabelValues(string(op), outcome).Inc()
	metrics.JobDuration.WithLabelValues(string(op)).Observe(elapsed.Seconds())

	log.Info("task complete", "outcome", outcome, "duration", elapsed.String())

	if outcome == metrics.OutcomeFailure {
		return nil, err
	}

	return env, nil
}
