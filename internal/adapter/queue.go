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
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/types"
	"github.com/alexandremahdhaoui/vlab-gateway/pkg/constants"
)

var (
	ErrQueueConnect  = errors.New("connecting to message broker")
	ErrQueueClosed   = errors.New("message broker connection is closed")
	ErrPublishJob    = errors.New("publishing job")
	ErrPublishResult = errors.New("publishing job result")
	ErrSubscribe     = errors.New("subscribing to subject")
	errDecodeResult  = errors.New("decoding job result")
)

const reconnectWaitTime = 2 * time.Second

// --------------------------------------------------- INTERFACE ---------------------------------------------------- //

// JobHandler receives the raw payload of a job message.
type JobHandler func(ctx context.Context, data []byte)

// ResultHandler receives a decoded job result.
type ResultHandler func(ctx context.Context, res types.JobResult)

// Subscription is an active subscription. *nats.Subscription implements it.
type Subscription interface {
	Unsubscribe() error
}

// Queue transports jobs from the API to the workers and results back.
type Queue interface {
	// Enqueue publishes req on the jobs subject.
	Enqueue(ctx context.Context, req types.JobRequest) error
	// SubscribeJobs delivers jobs to handler. Each job is delivered to one member of group.
	SubscribeJobs(ctx context.Context, group string, handler JobHandler) (Subscription, error)

	// PublishResult publishes res on the results subject.
	PublishResult(ctx context.Context, res types.JobResult) error
	// SubscribeResults delivers every job result to handler.
	SubscribeResults(ctx context.Context, handler ResultHandler) (Subscription, error)

	// Close drains pending messages and closes the connection.
	Close()
}

// --------------------------------------------------- CONSTRUCTORS ------------------------------------------------- //

// NewNATSQueue connects to the NATS server at url.
func NewNATSQueue(url, name string) (Queue, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWaitTime),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errors.Join(err, ErrQueueConnect)
	}

	return &natsQueue{nc: nc}, nil
}

type natsQueue struct {
	nc *nats.Conn
}

func (q *natsQueue) Enqueue(ctx context.Context, req types.JobRequest) error {
	if err := q.publish(ctx, constants.SubjectJobs, req); err != nil {
		return errors.Join(err, ErrPublishJob)
	}

	return nil
}

func (q *natsQueue) SubscribeJobs(ctx context.Context, group string, handler JobHandler) (Subscription, error) {
	sub, err := q.nc.QueueSubscribe(constants.SubjectJobs, group, func(msg *nats.Msg) {
		handler(extract(ctx, msg), msg.Data)
	})
	if err != nil {
		return nil, errors.Join(err, ErrSubscribe)
	}

	return sub, nil
}

func (q *natsQueue) PublishResult(ctx context.Context, res types.JobResult) error {
	if err := q.publish(ctx, constants.SubjectResults, res); err != nil {
		return errors.Join(err, ErrPublishResult)
	}

	return nil
}

func (q *natsQueue) SubscribeResults(ctx context.Context, handler ResultHandler) (Subscription, error) {
	sub, err := q.nc.Subscribe(constants.SubjectResults, func(msg *nats.Msg) {
		msgCtx := extract(ctx, msg)

		var res types.JobResult
		if err := json.Unmarshal(msg.Data, &res); err != nil {
			slog.ErrorContext(msgCtx, "dropping_result", "error", errors.Join(err, errDecodeResult))
			return
		}

		handler(msgCtx, res)
	})
	if err != nil {
		return nil, errors.Join(err, ErrSubscribe)
	}

	return sub, nil
}

func (q *natsQueue) Close() {
	if q.nc == nil {
		return
	}

	if err := q.nc.Drain(); err != nil {
		slog.Warn("nats_drain_failed", "error", err)
	}

	q.nc.Close()
}

func (q *natsQueue) publish(ctx context.Context, subject string, v any) error {
	if q.nc == nil || q.nc.IsClosed() {
		return ErrQueueClosed
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(subject)
	msg.Data = b
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(http.Header(msg.Header)))

	return q.nc.PublishMsg(msg)
}

// extract returns ctx enriched with the trace context carried by msg's headers.
func extract(ctx context.Context, msg *nats.Msg) context.Context {
	if msg.Header == nil {
		return ctx
	}

	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(http.Header(msg.Header)))
}
