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
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/alexandremahdhaoui/vlab-gateway/pkg/constants"
)

var (
	ErrMissingToken     = errors.New("missing auth token")
	ErrInvalidToken     = errors.New("invalid auth token")
	ErrMissingUsername  = errors.New("auth token has no username")
	ErrUnsupportedToken = errors.New("unsupported auth token version")
)

type contextKey string

// ClientIPContextKey holds the client IP address of a request.
const ClientIPContextKey contextKey = "client_ip"

// ---------------------------------------------------- CLIENT IP --------------------------------------------------- //

// ClientIPMiddleware stores the client IP of the request in its context.
// X-Forwarded-For takes precedence over X-Real-IP, which takes precedence over RemoteAddr.
func ClientIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ClientIPContextKey, clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}

// GetClientIP returns the client IP stored by ClientIPMiddleware.
func GetClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ClientIPContextKey).(string)
	return ip
}

// ---------------------------------------------------- REQUEST ID -------------------------------------------------- //

// RequestIDMiddleware stores the X-REQUEST-ID of the request in its context, generating one when the
// header is absent. The id is echoed in the response headers.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(constants.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(constants.HeaderRequestID, id)

		ctx := context.WithValue(r.Context(), constants.RequestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the id stored by RequestIDMiddleware.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(constants.RequestIDContextKey).(string)
	return id
}

// ------------------------------------------------------ TOKEN ----------------------------------------------------- //

// TokenOptions configures the auth token middleware.
type TokenOptions struct {
	// Verify enables the verification of the token signature.
	Verify bool
	// Key is the HS256 key tokens are signed with. Required when Verify is set.
	Key []byte
}

// TokenMiddleware authenticates requests with the JWT of the X-Auth header and stores its username claim in
// the request context. Requests without a valid token get a 401.
func TokenMiddleware(opts TokenOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, err := parseToken(r.Header.Get(constants.HeaderAuthToken), opts)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), constants.UsernameContextKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUsername returns the username stored by TokenMiddleware.
func GetUsername(ctx context.Context) string {
	username, _ := ctx.Value(constants.UsernameContextKey).(string)
	return username
}

func parseToken(raw string, opts TokenOptions) (string, error) {
	if raw == "" {
		return "", ErrMissingToken
	}

	claims := jwt.MapClaims{}

	var err error
	if opts.Verify {
		_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return opts.Key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	} else {
		_, _, err = jwt.NewParser().ParseUnverified(raw, claims)
	}

	if err != nil {
		return "", errors.Join(err, ErrInvalidToken)
	}

	if v, ok := claims["version"]; ok {
		if version, ok := v.(float64); !ok || (version != 1 && version != 2) {
			return "", ErrUnsupportedToken
		}
	}

	username, _ := claims["username"].(string)
	if username == "" {
		return "", ErrMissingUsername
	}

	return username, nil
}
