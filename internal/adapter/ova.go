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
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmware/govmomi/ovf"
)

var (
	errNoDescriptor   = errors.New("no .ovf descriptor found in archive")
	errEntryNotFound  = errors.New("entry not found in archive")
	errReadDescriptor = errors.New("reading ovf descriptor")
)

// OVA is an opened OVA archive: a tar file holding an OVF descriptor and its disks.
type OVA struct {
	path       string
	file       *os.File
	descriptor []byte
	envelope   *ovf.Envelope
}

var _ Template = (*OVA)(nil)

// OpenOVA opens the OVA at path and parses its descriptor.
func OpenOVA(path string) (*OVA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(err, ErrOpenTemplate)
	}

	o := &OVA{path: path, file: f}
	if err := o.readDescriptor(); err != nil {
		_ = f.Close()
		return nil, errors.Join(err, ErrOpenTemplate)
	}

	return o, nil
}

// Name returns the file name of the archive.
func (o *OVA) Name() string {
	return filepath.Base(o.path)
}

// Networks returns the network names declared in the descriptor's NetworkSection.
func (o *OVA) Networks() []string {
	if o.envelope == nil || o.envelope.Network == nil {
		return nil
	}

	out := make([]string, 0, len(o.envelope.Network.Networks))
	for _, n := range o.envelope.Network.Networks {
		out = append(out, n.Name)
	}

	return out
}

// Descriptor returns the raw OVF descriptor.
func (o *OVA) Descriptor() string {
	return string(o.descriptor)
}

// Entry returns a reader positioned on the archive member called name, along with its size.
// The reader is only valid until the next call to Entry.
func (o *OVA) Entry(name string) (io.Reader, int64, error) {
	if _, err := o.file.Seek(0, io.SeekStart); err != nil {
		return nil, 0, err
	}

	r := tar.NewReader(o.file)
	for {
		h, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil, 0, errors.Join(fmt.Errorf("entry %q", name), errEntryNotFound)
		}
		if err != nil {
			return nil, 0, err
		}

		if h.Name == name {
			return r, h.Size, nil
		}
	}
}

// Close closes the archive.
func (o *OVA) Close() error {
	return o.file.Close()
}

func (o *OVA) readDescriptor() error {
	r := tar.NewReader(o.file)
	for {
		h, err := r.Next()
		if errors.Is(err, io.EOF) {
			return errNoDescriptor
		}
		if err != nil {
			return errors.Join(err, errReadDescriptor)
		}

		if !strings.HasSuffix(strings.ToLower(h.Name), ".ovf") {
			continue
		}

		b, err := io.ReadAll(r)
		if err != nil {
			return errors.Join(err, errReadDescriptor)
		}

		env, err := ovf.Unmarshal(bytes.NewReader(b))
		if err != nil {
			return errors.Join(err, errReadDescriptor)
		}

		o.descriptor = b
		o.envelope = env

		return nil
	}
}
