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

// Package certutil issues short-lived certificates for tests.
package certutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

var (
	ErrGenerateKey = errors.New("generating private key")
	ErrSignCert    = errors.New("signing certificate")
	ErrWriteFiles  = errors.New("writing certificate files")
)

const validity = 2 * time.Hour

// CA is a throwaway certificate authority.
type CA struct {
	key  *ecdsa.PrivateKey
	cert *x509.Certificate
	pool *x509.CertPool
}

// NewCA creates a self-signed CA.
func NewCA() (*CA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Join(err, ErrGenerateKey)
	}

	tmpl := template(pkix.Name{CommonName: "vlab-gateway test CA"})
	tmpl.IsCA = true
	tmpl.BasicConstraintsValid = true
	tmpl.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign | x509.KeyUsageCRLSign

	cert, err := sign(tmpl, tmpl, key, key)
	if err != nil {
		return nil, err
	}

	pool := x509.NewCertPool()
	pool.AddCert(cert)

	return &CA{key: key, cert: cert, pool: pool}, nil
}

// Pool returns a pool holding the CA certificate.
func (ca *CA) Pool() *x509.CertPool {
	return ca.pool
}

// Cert returns the CA certificate in PEM format.
func (ca *CA) Cert() []byte {
	return certToPEM(ca.cert)
}

// NewCertifiedKeyPEM issues a key pair valid for hosts, which may be DNS names or IP addresses.
func (ca *CA) NewCertifiedKeyPEM(hosts ...string) (keyPEM, certPEM []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, errors.Join(err, ErrGenerateKey)
	}

	tmpl := template(pkix.Name{CommonName: "vlab-gateway test"})
	tmpl.KeyUsage = x509.KeyUsageDigitalSignature
	tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth}

	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}

	cert, err := sign(tmpl, ca.cert, key, ca.key)
	if err != nil {
		return nil, nil, err
	}

	kb, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, errors.Join(err, ErrGenerateKey)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: kb}), certToPEM(cert), nil
}

// WriteFiles issues a key pair for hosts and writes it to dir as tls.crt and tls.key, along with ca.crt.
// It returns the three paths.
func (ca *CA) WriteFiles(dir string, hosts ...string) (certPath, keyPath, caPath string, err error) {
	keyPEM, certPEM, err := ca.NewCertifiedKeyPEM(hosts...)
	if err != nil {
		return "", "", "", err
	}

	certPath = filepath.Join(dir, "tls.crt")
	keyPath = filepath.Join(dir, "tls.key")
	caPath = filepath.Join(dir, "ca.crt")

	for path, content := range map[string][]byte{certPath: certPEM, keyPath: keyPEM, caPath: ca.Cert()} {
		if err := os.WriteFile(path, content, 0o600); err != nil {
			return "", "", "", errors.Join(err, ErrWriteFiles)
		}
	}

	return certPath, keyPath, caPath, nil
}

func template(subject pkix.Name) *x509.Certificate {
	serial, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))

	return &x509.Certificate{ //nolint:exhaustruct
		Subject:      subject,
		SerialNumber: serial,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(validity),
	}
}

func sign(tmpl, parent *x509.Certificate, key, parentKey *ecdsa.PrivateKey) (*x509.Certificate, error) {
	raw, err := x509.CreateCertificate(rand.Reader, tmpl, parent, key.Public(), parentKey)
	if err != nil {
		return nil, errors.Join(err, ErrSignCert)
	}

	cert, err := x509.ParseCertificate(raw)
	if err != nil {
		return nil, errors.Join(err, ErrSignCert)
	}

	return cert, nil
}

func certToPEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}
