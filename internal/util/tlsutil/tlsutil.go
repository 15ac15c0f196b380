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

// Package tlsutil builds the TLS configurations of the API server and its clients.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

var (
	ErrCertNotFound      = errors.New("certificate file not found")
	ErrKeyNotFound       = errors.New("key file not found")
	ErrCANotFound        = errors.New("CA file not found")
	ErrInvalidClientAuth = errors.New("invalid clientAuth value")
	ErrLoadCert          = errors.New("loading certificate")
	ErrLoadCA            = errors.New("loading CA file")
	ErrParseCA           = errors.New("parsing CA certificate")
)

// Config holds the TLS configuration of a server.
type Config struct {
	// Enabled enables TLS for the server.
	Enabled bool `json:"enabled"`
	// ClientAuth is one of "none", "request" or "require".
	ClientAuth string `json:"clientAuth"`
	// CertPath is the path to the server certificate file.
	CertPath string `json:"certPath"`
	// KeyPath is the path to the server private key file.
	KeyPath string `json:"keyPath"`
	// CAPath is the CA bundle client certificates are verified against.
	CAPath string `json:"caPath"`
}

// BuildServerConfig builds the tls.Config of a server. It returns nil, nil when TLS is disabled.
func BuildServerConfig(config *Config) (*tls.Config, error) {
	if config == nil || !config.Enabled {
		return nil, nil
	}

	if _, err := os.Stat(config.CertPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrCertNotFound, config.CertPath)
	}

	if _, err := os.Stat(config.KeyPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, config.KeyPath)
	}

	clientAuth, err := parseClientAuth(config.ClientAuth)
	if err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(config.CertPath, config.KeyPath)
	if err != nil {
		return nil, errors.Join(err, ErrLoadCert)
	}

	out := &tls.Config{ //nolint:exhaustruct
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		ClientAuth:   clientAuth,
	}

	if clientAuth != tls.NoClientCert {
		pool, err := LoadCAPool(config.CAPath)
		if err != nil {
			return nil, err
		}

		out.ClientCAs = pool
	}

	return out, nil
}

// BuildClientConfig returns a client tls.Config trusting the CA bundle at caPath.
// It returns nil, nil when caPath is empty, letting the system roots apply.
func BuildClientConfig(caPath string) (*tls.Config, error) {
	if caPath == "" {
		return nil, nil
	}

	pool, err := LoadCAPool(caPath)
	if err != nil {
		return nil, err
	}

	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil //nolint:exhaustruct
}

// LoadCAPool reads the PEM bundle at path.
func LoadCAPool(path string) (*x509.CertPool, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrCANotFound, path)
	}

	if err != nil {
		return nil, errors.Join(err, ErrLoadCA)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(b) {
		return nil, ErrParseCA
	}

	return pool, nil
}

func parseClientAuth(clientAuth string) (tls.ClientAuthType, error) {
	switch clientAuth {
	case "", "none":
		return tls.NoClientCert, nil
	case "request":
		return tls.RequestClientCert, nil
	case "require":
		return tls.RequireAndVerifyClientCert, nil
	default:
		return 0, fmt.Errorf("%w: %q (valid values: none, request, require)", ErrInvalidClientAuth, clientAuth)
	}
}
