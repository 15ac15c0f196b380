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

package constants

type contextKey string

const (
	// ServerNameContextKey holds the name of the http.Server serving a request.
	ServerNameContextKey contextKey = "server_name"
	// UsernameContextKey holds the username read from the request's auth token.
	UsernameContextKey contextKey = "username"
	// RequestIDContextKey holds the correlation id of a request.
	RequestIDContextKey contextKey = "request_id"
)

// ------------------------------------------------------ QUEUE ----------------------------------------------------- //

const (
	// SubjectJobs carries JobRequests from the API to the workers.
	SubjectJobs = "vlab.gateway.jobs"
	// SubjectResults carries JobResults from the workers back to the API.
	SubjectResults = "vlab.gateway.results"
	// WorkerQueueGroup load-balances jobs across worker processes.
	WorkerQueueGroup = "gateway-workers"
)

// ------------------------------------------------------- HTTP ----------------------------------------------------- //

const (
	HeaderAuthToken = "X-Auth"
	HeaderRequestID = "X-REQUEST-ID"
	HeaderLink      = "Link"
)
