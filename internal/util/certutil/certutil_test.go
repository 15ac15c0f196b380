//go:build unit

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

package certutil_test

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/certutil"
)

func TestCA(t *testing.T) {
	ca, err := certutil.NewCA()
	require.NoError(t, err)

	block, _ := pem.Decode(ca.Cert())
	require.NotNil(t, block)

	caCert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.True(t, caCert.IsCA)

	t.Run("Issued certificates verify against the CA", func(t *testing.T) {
		keyPEM, certPEM, err := ca.NewCertifiedKeyPEM("gateway.vlab.local", "127.0.0.1")
		require.NoError(t, err)

		pair, err := tls.X509KeyPair(certPEM, keyPEM)
		require.NoError(t, err)

		leaf, err := x509.ParseCertificate(pair.Certificate[0])
		require.NoError(t, err)

		assert.Equal(t, []string{"gateway.vlab.local"}, leaf.DNSNames)
		require.Len(t, leaf.IPAddresses, 1)
		assert.Equal(t, "127.0.0.1", leaf.IPAddresses[0].String())

		_, err = leaf.Verify(x509.VerifyOptions{
			Roots:     ca.Pool(),
			DNSName:   "gateway.vlab.local",
			KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		})
		assert.NoError(t, err)
	})

	t.Run("WriteFiles", func(t *testing.T) {
		certPath, keyPath, caPath, err := ca.WriteFiles(t.TempDir(), "localhost")
		require.NoError(t, err)

		_, err = tls.LoadX509KeyPair(certPath, keyPath)
		assert.NoError(t, err)

		b, err := os.ReadFile(caPath)
		require.NoError(t, err)
		assert.Equal(t, ca.Cert(), b)
	})
}
