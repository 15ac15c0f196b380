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

package types

// ComponentName is the reserved name of the gateway appliance inside a user's folder.
const ComponentName = "defaultGateway"

// PowerState is the power state of an appliance.
type PowerState string

const (
	PowerOn      PowerState = "poweredOn"
	PowerOff     PowerState = "poweredOff"
	PowerSuspend PowerState = "suspended"
)

// ---------------------------------------------------- VM HANDLE --------------------------------------------------- //

// VMHandle identifies a virtual machine on the control plane.
type VMHandle struct {
	// Name is the inventory name of the VM.
	Name string
	// ID is the managed object reference value (e.g. "vm-42").
	ID string
}

// ---------------------------------------------------- APPLIANCE --------------------------------------------------- //

// Appliance is the information read back from the control plane about a gateway VM.
type Appliance struct {
	// Name is the inventory name of the VM.
	Name string `json:"name"`
	// MOID is the managed object reference value.
	MOID string `json:"moid"`
	// State is the power state.
	State PowerState `json:"state"`
	// IPs lists the guest IP addresses reported by the guest tools.
	IPs []string `json:"ips"`
	// Networks lists the port groups the NICs are attached to.
	Networks []string `json:"networks"`
	// Meta is the decoded annotation blob.
	Meta Metadata `json:"meta"`
}

// Metadata is the stamp written onto the VM annotation once the appliance has been configured.
type Metadata struct {
	Component  string  `json:"component"`
	Created    float64 `json:"created"`
	Version    string  `json:"version"`
	Configured bool    `json:"configured"`
	Generation int     `json:"generation"`
}

// ----------------------------------------------------- NETWORK ---------------------------------------------------- //

// NetworkRef is a platform network handle.
type NetworkRef struct {
	// Name is the inventory name of the network (e.g. a port group name).
	Name string
	// ID is the managed object reference value of the network.
	ID string
	// Type is the managed object type ("Network", "DistributedVirtualPortgroup", ...).
	Type string
}

// NetworkMapEntry pairs a network label declared by a template with the platform network it is attached to.
type NetworkMapEntry struct {
	// Label is the network name as declared in the template.
	Label string
	// Network is the resolved platform network.
	Network NetworkRef
}

// ------------------------------------------------------ GUEST ----------------------------------------------------- //

// Credentials authenticate guest operations.
type Credentials struct {
	Username string
	Password string
}

// GuestCommand is a program executed inside the guest OS through the guest tools.
type GuestCommand struct {
	// Path is the absolute path of the program.
	Path string
	// Args is the argument string passed verbatim to the program.
	Args string
	// OneShot returns as soon as the program is started, without waiting for its exit code.
	OneShot bool
}

// GuestCommandResult is the outcome of a GuestCommand.
type GuestCommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}
