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

package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/alexandremahdhaoui/vlab-gateway/pkg/constants"
)

var (
	ErrRequest      = errors.New("sending request")
	ErrResponse     = errors.New("unexpected response")
	ErrTaskFailed   = errors.New("task failed")
	ErrTaskTimedOut = errors.New("timed out waiting for task")
)

// response is a decoded API response.
type response struct {
	Code int
	Body map[string]any
	Raw  []byte
}

type client struct {
	baseURL    string
	token      string
	apiVersion string
	http       *http.Client
}

func newClient(baseURL, token, apiVersion string, timeout time.Duration, tlsConfig *tls.Config) *client {
	httpClient := &http.Client{Timeout: timeout} //nolint:exhaustruct

	if tlsConfig != nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		httpClient.Transport = transport
	}

	return &client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		apiVersion: apiVersion,
		http:       httpClient,
	}
}

func (c *client) gatewayPath(suffix string) string {
	return fmt.Sprintf("/api/%s/inf/gateway%s", c.apiVersion, suffix)
}

func (c *client) do(ctx context.Context, method, path string, body any) (*response, error) {
	var reader io.Reader

	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Join(err, ErrRequest)
		}

		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Join(err, ErrRequest)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.token != "" {
		req.Header.Set(constants.HeaderAuthToken, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Join(err, ErrRequest)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Join(err, ErrResponse)
	}

	out := &response{Code: resp.StatusCode, Raw: raw}

	if len(bytes.TrimSpace(raw)) > 0 {
		// Successful jobs may carry a null or non-object body.
		_ = json.Unmarshal(raw, &out.Body)
	}

	return out, nil
}

// enqueue sends a job and returns the id of its task.
func (c *client) enqueue(ctx context.Context, method string, body any) (string, error) {
	resp, err := c.do(ctx, method, c.gatewayPath(""), body)
	if err != nil {
		return "", err
	}

	if resp.Code != http.StatusAccepted {
		return "", errors.Join(fmt.Errorf("%d: %s", resp.Code, strings.TrimSpace(string(resp.Raw))), ErrResponse)
	}

	content, _ := resp.Body["content"].(map[string]any)

	id, _ := content["task-id"].(string)
	if id == "" {
		return "", errors.Join(errors.New("no task id in response"), ErrResponse)
	}

	return id, nil
}

// task reads a task once. done is false while the task is pending.
func (c *client) task(ctx context.Context, id string) (*response, bool, error) {
	resp, err := c.do(ctx, http.MethodGet, c.gatewayPath("/task/"+id), nil)
	if err != nil {
		return nil, false, err
	}

	switch resp.Code {
	case http.StatusAccepted:
		return resp, false, nil
	case http.StatusOK:
		return resp, true, nil
	case http.StatusInternalServerError:
		msg, _ := resp.Body["error"].(string)
		return resp, true, errors.Join(fmt.Errorf("task %s: %s", id, msg), ErrTaskFailed)
	default:
		return resp, true, errors.Join(fmt.Errorf("%d: %s", resp.Code, strings.TrimSpace(string(resp.Raw))), ErrResponse)
	}
}

// await polls the task every interval until it completes or timeout elapses.
func (c *client) await(ctx context.Context, id string, interval, timeout time.Duration) (*response, error) {
	var (
		out     *response
		lastErr error
	)

	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		resp, done, err := c.task(ctx, id)
		out, lastErr = resp, err

		return done, nil
	})
	if wait.Interrupted(err) {
		return nil, errors.Join(fmt.Errorf("task %s", id), ErrTaskTimedOut)
	}

	if err != nil {
		return nil, err
	}

	return out, lastErr
}
