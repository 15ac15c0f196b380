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

package adapter_test

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/adapter"
)

const testDescriptor = `<?xml version="1.0" encoding="UTF-8"?>
<Envelope xmlns="http://schemas.dmtf.org/ovf/envelope/1" xmlns:ovf="http://schemas.dmtf.org/ovf/envelope/1">
  <References>
    <File ovf:href="disk1.vmdk" ovf:id="file1"/>
  </References>
  <NetworkSection>
    <Info>The list of logical networks</Info>
    <Network ovf:name="WAN">
      <Description>upstream</Description>
    </Network>
    <Network ovf:name="lan">
      <Description>user network</Description>
    </Network>
  </NetworkSection>
</Envelope>
`

func writeOVA(t *testing.T, entries map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gateway.ova")

	f, err := os.Create(path)
	require.NoError(t, err)

	w := tar.NewWriter(f)
	for name, content := range entries {
		require.NoError(t, w.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}))
		_, err := w.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	return path
}

func TestOVA(t *testing.T) {
	t.Run("OpenOVA", func(t *testing.T) {
		path := writeOVA(t, map[string]string{
			"gateway.ovf": testDescriptor,
			"disk1.vmdk":  "disk-bytes",
		})

		ova, err := adapter.OpenOVA(path)
		require.NoError(t, err)
		defer func() { _ = ova.Close() }()

		assert.Equal(t, "gateway.ova", ova.Name())
		assert.Equal(t, []string{"WAN", "lan"}, ova.Networks())
		assert.Equal(t, testDescriptor, ova.Descriptor())

		t.Run("Entry", func(t *testing.T) {
			r, size, err := ova.Entry("disk1.vmdk")
			require.NoError(t, err)
			assert.Equal(t, int64(len("disk-bytes")), size)

			b, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, "disk-bytes", string(b))

			// Entries can be read more than once.
			_, _, err = ova.Entry("disk1.vmdk")
			assert.NoError(t, err)
		})

		t.Run("Entry not found", func(t *testing.T) {
			_, _, err := ova.Entry("disk2.vmdk")
			assert.Error(t, err)
		})
	})

	t.Run("no descriptor", func(t *testing.T) {
		path := writeOVA(t, map[string]string{"disk1.vmdk": "disk-bytes"})

		_, err := adapter.OpenOVA(path)
		assert.ErrorIs(t, err, adapter.ErrOpenTemplate)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := adapter.OpenOVA(filepath.Join(t.TempDir(), "nope.ova"))
		assert.ErrorIs(t, err, adapter.ErrOpenTemplate)
	})
}
