/*
Copyright 2024 Alexandre Mahdhaoui

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/adapter"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/types"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/metrics"
	"github.com/alexandremahdhaoui/vlab-gateway/pkg/constants"
)

const maxBodyBytes = 1 << 20

var (
	ErrEnqueue   = errors.New("enqueuing job")
	ErrGetTask   = errors.New("getting task")
	ErrReadBody  = errors.New("reading request body")
	ErrBadSchema = errors.New("request body does not match schema")
)

// Options configures a Server.
type Options struct {
	// PublicURL is the public base URL of the API, used to build Link headers.
	PublicURL string
	// Version is reported by the healthcheck.
	Version string
	// Token configures the authentication of the gateway routes.
	Token TokenOptions
}

// Server is the HTTP front end of the gateway. It enqueues jobs and reports on their status.
type Server struct {
	queue adapter.Queue
	store adapter.TaskStore
	opts  Options
	now   func() time.Time
}

// New returns a new Server.
func New(queue adapter.Queue, store adapter.TaskStore, opts Options) *Server {
	opts.PublicURL = strings.TrimSuffix(opts.PublicURL, "/")

	return &Server{queue: queue, store: store, opts: opts, now: time.Now}
}

// Handler returns the routes of the API.
func (s *Server) Handler() http.Handler {
	auth := TokenMiddleware(s.opts.Token)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/1/inf/gateway/healthcheck", s.healthcheck)

	mux.Handle("GET /api/{version}/inf/gateway", auth(s.versioned(s.show)))
	mux.Handle("POST /api/{version}/inf/gateway", auth(s.versioned(s.create)))
	mux.Handle("DELETE /api/{version}/inf/gateway", auth(s.versioned(s.delete)))
	mux.Handle("GET /api/{version}/inf/gateway/task/{id}", auth(s.versioned(s.task)))

	return promhttp.InstrumentHandlerCounter(
		metrics.HTTPRequests,
		ClientIPMiddleware(RequestIDMiddleware(mux)),
	)
}

// ApplyResult records a job result in the task store. It is meant to be subscribed to the results subject.
func (s *Server) ApplyResult(ctx context.Context, res types.JobResult) {
	if err := s.store.ApplyResult(ctx, res); err != nil {
		slog.ErrorContext(ctx, "applying_result_failed", "task_id", res.TaskID, "error", err)
		return
	}

	slog.InfoContext(ctx, "task_completed", "task_id", res.TaskID, "status", string(res.Status))
}

// ---------------------------------------------------- HANDLERS ---------------------------------------------------- //

type taskResponse struct {
	User    string         `json:"user"`
	Content map[string]any `json:"content"`
	Error   *string        `json:"error,omitempty"`
}

func (s *Server) healthcheck(w http.ResponseWriter, _ *http.Request) {
	start := s.now()
	writeJSON(w, http.StatusOK, map[string]any{
		"latency": s.now().Sub(start).Seconds(),
		"version": s.opts.Version,
	})
}

func (s *Server) show(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("describe") == "true" {
		writeJSON(w, http.StatusOK, describe())
		return
	}

	s.enqueue(w, r, types.JobRequest{Operation: types.OperationShow})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.Join(err, ErrReadBody).Error())
		return
	}

	violations, err := validate(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.Join(err, ErrReadBody).Error())
		return
	}

	if len(violations) > 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: %s", ErrBadSchema, strings.Join(violations, "; ")))
		return
	}

	var in struct {
		WAN string `json:"wan"`
		LAN string `json:"lan"`
	}

	if err := json.Unmarshal(body, &in); err != nil {
		writeError(w, http.StatusBadRequest, errors.Join(err, ErrReadBody).Error())
		return
	}

	s.enqueue(w, r, types.JobRequest{Operation: types.OperationCreate, WAN: in.WAN, LAN: in.LAN})
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	s.enqueue(w, r, types.JobRequest{Operation: types.OperationDelete})
}

func (s *Server) task(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := GetUsername(ctx)

	rec, err := s.store.Get(ctx, r.PathValue("id"))
	if errors.Is(err, adapter.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "no such task")
		return
	}

	if err != nil {
		slog.ErrorContext(ctx, "get_task_failed", "error", errors.Join(err, ErrGetTask))
		writeError(w, http.StatusInternalServerError, ErrGetTask.Error())

		return
	}

	if rec.Username != username {
		writeError(w, http.StatusForbidden, "task belongs to another user")
		return
	}

	switch rec.Status {
	case types.TaskSuccess:
		writeJSON(w, http.StatusOK, rec.Result)
	case types.TaskFailure:
		failure := rec.Failure
		writeJSON(w, http.StatusInternalServerError, taskResponse{
			User:    username,
			Content: map[string]any{"task-id": rec.ID},
			Error:   &failure,
		})
	default:
		writeJSON(w, http.StatusAccepted, taskResponse{
			User:    username,
			Content: map[string]any{"task-id": rec.ID, "status": string(rec.Status)},
		})
	}
}

// enqueue records a pending task for req and sends req to the workers.
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, req types.JobRequest) {
	ctx := r.Context()
	version := r.PathValue("version")

	req.TaskID = uuid.NewString()
	req.Username = GetUsername(ctx)

	if version == "2" {
		req.CorrelationID = GetRequestID(ctx)
	}

	now := s.now().UTC()
	rec := &types.TaskRecord{
		ID:            req.TaskID,
		Username:      req.Username,
		Operation:     req.Operation,
		CorrelationID: req.CorrelationID,
		Status:        types.TaskPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.Put(ctx, rec); err != nil {
		slog.ErrorContext(ctx, "enqueue_failed", "error", errors.Join(err, ErrEnqueue))
		writeError(w, http.StatusInternalServerError, ErrEnqueue.Error())

		return
	}

	if err := s.queue.Enqueue(ctx, req); err != nil {
		slog.ErrorContext(ctx, "enqueue_failed", "task_id", req.TaskID, "error", errors.Join(err, ErrEnqueue))

		if err := s.store.ApplyResult(ctx, types.JobResult{
			TaskID:  req.TaskID,
			Status:  types.TaskFailure,
			Failure: ErrEnqueue.Error(),
		}); err != nil {
			slog.ErrorContext(ctx, "applying_result_failed", "task_id", req.TaskID, "error", err)
		}

		writeError(w, http.StatusInternalServerError, ErrEnqueue.Error())

		return
	}

	metrics.TasksEnqueued.WithLabelValues(string(req.Operation)).Inc()
	slog.InfoContext(ctx, "task_enqueued",
		"task_id", req.TaskID,
		"operation", string(req.Operation),
		"username", req.Username,
		"correlation_id", req.CorrelationID,
		"client_ip", GetClientIP(ctx),
	)

	if version == "2" {
		w.Header().Set(constants.HeaderLink,
			fmt.Sprintf("<%s/api/2/inf/gateway/task/%s>; rel=status", s.opts.PublicURL, req.TaskID))
	}

	writeJSON(w, http.StatusAccepted, taskResponse{
		User:    req.Username,
		Content: map[string]any{"task-id": req.TaskID},
	})
}

// ----------------------------------------------------- HELPERS ---------------------------------------------------- //

// versioned answers 404 to API versions other than 1 and 2.
func (s *Server) versioned(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("version") {
		case "1", "2":
			next(w, r)
		default:
			writeError(w, http.StatusNotFound, "unsupported API version")
		}
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writing_response_failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
