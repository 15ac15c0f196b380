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
	"errors"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/types"
)

var (
	ErrFolderNotFound = errors.New("folder not found")

	ErrConnect         = errors.New("connecting to control plane")
	ErrListChildren    = errors.New("listing folder children")
	ErrListNetworks    = errors.New("listing networks")
	ErrDeploy          = errors.New("deploying template")
	ErrReadInfo        = errors.New("reading vm info")
	ErrPower           = errors.New("changing vm power state")
	ErrDestroy         = errors.New("destroying vm")
	ErrReconfigure     = errors.New("reconfiguring vm")
	ErrGuestCommand    = errors.New("running guest command")
	ErrRebootGuest     = errors.New("rebooting guest")
	ErrUpdateNICs      = errors.New("updating network interfaces")
	ErrOpenTemplate    = errors.New("opening template")
	ErrTemplateInvalid = errors.New("template is invalid")
)

// --------------------------------------------------- INTERFACE ---------------------------------------------------- //

// Connector opens scoped sessions against the virtualization control plane.
type Connector interface {
	// Connect opens a new session. The caller must Close it.
	Connect(ctx context.Context) (Session, error)
}

// Session is the capability set the gateway needs from the control plane.
type Session interface {
	// Close logs out and releases the session.
	Close(ctx context.Context) error

	// Folder returns the handle of the folder named name under the top-level folder.
	// It returns ErrFolderNotFound if no such folder exists.
	Folder(ctx context.Context, name string) (Folder, error)
	// Children lists the VMs directly contained in folder.
	Children(ctx context.Context, folder Folder) ([]types.VMHandle, error)
	// Networks returns the known-networks table, keyed by network name.
	Networks(ctx context.Context) (map[string]types.NetworkRef, error)

	// OpenTemplate opens the template image at path. The caller must Close it.
	OpenTemplate(ctx context.Context, path string) (Template, error)
	// Deploy creates a VM from the template into the folder named username.
	Deploy(
		ctx context.Context,
		tmpl Template,
		networkMap []types.NetworkMapEntry,
		username, name string,
	) (types.VMHandle, error)

	// Info reads the VM. If ensureIP is set, it blocks until the guest reports an IP address.
	Info(ctx context.Context, vm types.VMHandle, ensureIP bool) (*types.Appliance, error)
	// Power changes the power state of the VM and waits for the change to complete.
	Power(ctx context.Context, vm types.VMHandle, state types.PowerState) error
	// Destroy starts unregistering and deleting the VM.
	Destroy(ctx context.Context, vm types.VMHandle) (Task, error)
	// Reconfigure writes annotation onto the VM.
	Reconfigure(ctx context.Context, vm types.VMHandle, annotation string) error
	// RegenerateNICAddresses makes the platform assign fresh hardware addresses to every NIC.
	RegenerateNICAddresses(ctx context.Context, vm types.VMHandle) error
	// RebootGuest asks the guest OS to restart.
	RebootGuest(ctx context.Context, vm types.VMHandle) error
	// RunCommand runs cmd inside the guest OS.
	RunCommand(
		ctx context.Context,
		vm types.VMHandle,
		creds types.Credentials,
		cmd types.GuestCommand,
	) (types.GuestCommandResult, error)
}

// Folder is an opaque folder handle returned by Session.Folder.
type Folder interface {
	Name() string
}

// Template is an opened appliance image.
type Template interface {
	// Name is the image identity, e.g. the file name of an OVA.
	Name() string
	// Networks lists the logical networks the template declares.
	Networks() []string
	// Close releases the underlying file.
	Close() error
}

// Task is an asynchronous platform operation.
type Task interface {
	// Wait blocks until the task completes and returns its error, if any.
	Wait(ctx context.Context) error
}
