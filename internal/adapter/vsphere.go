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
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/find"
	"github.com/vmware/govmomi/guest"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/ovf"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/soap"
	vimtypes "github.com/vmware/govmomi/vim25/types"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/types"
)

var (
	errImportSpec         = errors.New("creating import spec")
	errUploadDisk         = errors.New("uploading disk")
	errNotAnOVA           = errors.New("template is not an OVA")
	errUnsupportedState   = errors.New("unsupported power state")
	errProcessDisappeared = errors.New("guest process disappeared")
)

const guestProcessPollInterval = time.Second

// VSphereConfig configures the connection to vCenter.
type VSphereConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	// Insecure skips TLS verification of the vCenter certificate.
	Insecure bool

	// Datacenter is the datacenter name. The default datacenter is used when empty.
	Datacenter string
	// Datastore receives the disks of deployed appliances.
	Datastore string
	// ResourcePool is the pool deployed appliances run in.
	ResourcePool string
	// TopLevelFolder is the folder holding per-user folders, relative to the datacenter's VM folder.
	TopLevelFolder string
}

// --------------------------------------------------- CONSTRUCTORS ------------------------------------------------- //

// NewVSphere returns a Connector backed by govmomi.
func NewVSphere(cfg VSphereConfig) Connector {
	return &vsphere{cfg: cfg}
}

type vsphere struct {
	cfg VSphereConfig
}

func (v *vsphere) Connect(ctx context.Context) (Session, error) {
	u := &url.URL{
		Scheme: "https",
		Host:   net.JoinHostPort(v.cfg.Host, strconv.Itoa(v.cfg.Port)),
		Path:   "/sdk",
		User:   url.UserPassword(v.cfg.User, v.cfg.Password),
	}

	c, err := govmomi.NewClient(ctx, u, v.cfg.Insecure)
	if err != nil {
		return nil, errors.Join(err, ErrConnect)
	}

	f := find.NewFinder(c.Client, true)

	dc, err := f.DatacenterOrDefault(ctx, v.cfg.Datacenter)
	if err != nil {
		_ = c.Logout(ctx)
		return nil, errors.Join(err, ErrConnect)
	}

	f.SetDatacenter(dc)

	return &vsphereSession{client: c, finder: f, cfg: v.cfg}, nil
}

// ----------------------------------------------------- SESSION ---------------------------------------------------- //

type vsphereSession struct {
	client *govmomi.Client
	finder *find.Finder
	cfg    VSphereConfig
}

type vsphereFolder struct {
	*object.Folder
	name string
}

func (f vsphereFolder) Name() string { return f.name }

func (s *vsphereSession) Close(ctx context.Context) error {
	return s.client.Logout(ctx)
}

func (s *vsphereSession) Folder(ctx context.Context, name string) (Folder, error) {
	p := path.Join("vm", strings.TrimPrefix(s.cfg.TopLevelFolder, "/"), name)

	folder, err := s.finder.Folder(ctx, p)
	if err != nil {
		var notFound *find.NotFoundError
		if errors.As(err, &notFound) {
			return nil, errors.Join(fmt.Errorf("folder %q", p), ErrFolderNotFound)
		}

		return nil, err
	}

	return vsphereFolder{Folder: folder, name: name}, nil
}

func (s *vsphereSession) Children(ctx context.Context, folder Folder) ([]types.VMHandle, error) {
	f, ok := folder.(vsphereFolder)
	if !ok {
		return nil, errors.Join(fmt.Errorf("unexpected folder type %T", folder), ErrListChildren)
	}

	children, err := f.Children(ctx)
	if err != nil {
		return nil, errors.Join(err, ErrListChildren)
	}

	out := make([]types.VMHandle, 0, len(children))
	for _, child := range children {
		vm, ok := child.(*object.VirtualMachine)
		if !ok {
			continue
		}

		name, err := vm.ObjectName(ctx)
		if err != nil {
			return nil, errors.Join(err, ErrListChildren)
		}

		out = append(out, types.VMHandle{Name: name, ID: vm.Reference().Value})
	}

	return out, nil
}

func (s *vsphereSession) Networks(ctx context.Context) (map[string]types.NetworkRef, error) {
	networks, err := s.finder.NetworkList(ctx, "*")
	if err != nil {
		return nil, errors.Join(err, ErrListNetworks)
	}

	out := make(map[string]types.NetworkRef, len(networks))
	for _, n := range networks {
		ref := n.Reference()
		name := path.Base(n.GetInventoryPath())
		out[name] = types.NetworkRef{Name: name, ID: ref.Value, Type: ref.Type}
	}

	return out, nil
}

func (s *vsphereSession) OpenTemplate(_ context.Context, p string) (Template, error) {
	return OpenOVA(p)
}

func (s *vsphereSession) Deploy(
	ctx context.Context,
	tmpl Template,
	networkMap []types.NetworkMapEntry,
	username, name string,
) (types.VMHandle, error) {
	ova, ok := tmpl.(*OVA)
	if !ok {
		return types.VMHandle{}, errors.Join(errNotAnOVA, ErrDeploy)
	}

	folder, err := s.Folder(ctx, username)
	if err != nil {
		return types.VMHandle{}, errors.Join(err, ErrDeploy)
	}

	ds, err := s.finder.DatastoreOrDefault(ctx, s.cfg.Datastore)
	if err != nil {
		return types.VMHandle{}, errors.Join(err, ErrDeploy)
	}

	pool, err := s.finder.ResourcePoolOrDefault(ctx, s.cfg.ResourcePool)
	if err != nil {
		return types.VMHandle{}, errors.Join(err, ErrDeploy)
	}

	mappings := make([]vimtypes.OvfNetworkMapping, 0, len(networkMap))
	for _, entry := range networkMap {
		mappings = append(mappings, vimtypes.OvfNetworkMapping{
			Name: entry.Label,
			Network: vimtypes.ManagedObjectReference{
				Type:  entry.Network.Type,
				Value: entry.Network.ID,
			},
		})
	}

	spec, err := ovf.NewManager(s.client.Client).CreateImportSpec(
		ctx,
		ova.Descriptor(),
		pool,
		ds,
		vimtypes.OvfCreateImportSpecParams{
			EntityName:       name,
			NetworkMapping:   mappings,
			DiskProvisioning: string(vimtypes.OvfCreateImportSpecParamsDiskProvisioningTypeThin),
		},
	)
	if err != nil {
		return types.VMHandle{}, errors.Join(err, errImportSpec, ErrDeploy)
	}

	if len(spec.Error) > 0 {
		return types.VMHandle{}, errors.Join(
			errors.New(spec.Error[0].LocalizedMessage),
			errImportSpec,
			ErrDeploy,
		)
	}

	lease, err := pool.ImportVApp(ctx, spec.ImportSpec, folder.(vsphereFolder).Folder, nil)
	if err != nil {
		return types.VMHandle{}, errors.Join(err, ErrDeploy)
	}

	info, err := lease.Wait(ctx, spec.FileItem)
	if err != nil {
		return types.VMHandle{}, errors.Join(err, ErrDeploy)
	}

	updater := lease.StartUpdater(ctx, info)
	defer updater.Done()

	for _, item := range info.Items {
		r, size, err := ova.Entry(item.Path)
		if err != nil {
			_ = lease.Abort(ctx, nil)
			return types.VMHandle{}, errors.Join(err, errUploadDisk, ErrDeploy)
		}

		if err := lease.Upload(ctx, item, r, soap.Upload{ContentLength: size}); err != nil {
			_ = lease.Abort(ctx, nil)
			return types.VMHandle{}, errors.Join(err, errUploadDisk, ErrDeploy)
		}
	}

	if err := lease.Complete(ctx); err != nil {
		return types.VMHandle{}, errors.Join(err, ErrDeploy)
	}

	vm := types.VMHandle{Name: name, ID: info.Entity.Value}
	if err := s.Power(ctx, vm, types.PowerOn); err != nil {
		return types.VMHandle{}, errors.Join(err, ErrDeploy)
	}

	return vm, nil
}

func (s *vsphereSession) Info(ctx context.Context, h types.VMHandle, ensureIP bool) (*types.Appliance, error) {
	vm := s.vm(h)

	if ensureIP {
		if _, err := vm.WaitForIP(ctx); err != nil {
			return nil, errors.Join(err, ErrReadInfo)
		}
	}

	var mvm mo.VirtualMachine
	if err := vm.Properties(
		ctx,
		vm.Reference(),
		[]string{"name", "summary", "config.annotation", "guest.net"},
		&mvm,
	); err != nil {
		return nil, errors.Join(err, ErrReadInfo)
	}

	out := &types.Appliance{
		Name:     mvm.Name,
		MOID:     h.ID,
		State:    types.PowerState(mvm.Summary.Runtime.PowerState),
		IPs:      []string{},
		Networks: []string{},
	}

	if mvm.Guest != nil {
		for _, nic := range mvm.Guest.Net {
			out.Networks = append(out.Networks, nic.Network)
			out.IPs = append(out.IPs, nic.IpAddress...)
		}
	}

	if mvm.Config != nil && mvm.Config.Annotation != "" {
		// VMs annotated by something else than the gateway keep an empty Meta.
		_ = json.Unmarshal([]byte(mvm.Config.Annotation), &out.Meta)
	}

	return out, nil
}

func (s *vsphereSession) Power(ctx context.Context, h types.VMHandle, state types.PowerState) error {
	vm := s.vm(h)

	current, err := vm.PowerState(ctx)
	if err != nil {
		return errors.Join(err, ErrPower)
	}

	if types.PowerState(current) == state {
		return nil
	}

	var task *object.Task

	switch state {
	case types.PowerOn:
		task, err = vm.PowerOn(ctx)
	case types.PowerOff:
		task, err = vm.PowerOff(ctx)
	case types.PowerSuspend:
		task, err = vm.Suspend(ctx)
	default:
		return errors.Join(fmt.Errorf("state %q", state), errUnsupportedState, ErrPower)
	}

	if err != nil {
		return errors.Join(err, ErrPower)
	}

	if err := task.Wait(ctx); err != nil {
		return errors.Join(err, ErrPower)
	}

	return nil
}

func (s *vsphereSession) Destroy(ctx context.Context, h types.VMHandle) (Task, error) {
	task, err := s.vm(h).Destroy(ctx)
	if err != nil {
		return nil, errors.Join(err, ErrDestroy)
	}

	return task, nil
}

func (s *vsphereSession) Reconfigure(ctx context.Context, h types.VMHandle, annotation string) error {
	task, err := s.vm(h).Reconfigure(ctx, vimtypes.VirtualMachineConfigSpec{Annotation: annotation})
	if err != nil {
		return errors.Join(err, ErrReconfigure)
	}

	if err := task.Wait(ctx); err != nil {
		return errors.Join(err, ErrReconfigure)
	}

	return nil
}

func (s *vsphereSession) RegenerateNICAddresses(ctx context.Context, h types.VMHandle) error {
	vm := s.vm(h)

	devices, err := vm.Device(ctx)
	if err != nil {
		return errors.Join(err, ErrUpdateNICs)
	}

	for _, dev := range devices.SelectByType((*vimtypes.VirtualEthernetCard)(nil)) {
		card := dev.(vimtypes.BaseVirtualEthernetCard).GetVirtualEthernetCard()
		card.MacAddress = ""
		card.AddressType = string(vimtypes.VirtualEthernetCardMacTypeGenerated)

		if err := vm.EditDevice(ctx, dev); err != nil {
			return errors.Join(err, ErrUpdateNICs)
		}
	}

	return nil
}

func (s *vsphereSession) RebootGuest(ctx context.Context, h types.VMHandle) error {
	if err := s.vm(h).RebootGuest(ctx); err != nil {
		return errors.Join(err, ErrRebootGuest)
	}

	return nil
}

func (s *vsphereSession) RunCommand(
	ctx context.Context,
	h types.VMHandle,
	creds types.Credentials,
	cmd types.GuestCommand,
) (types.GuestCommandResult, error) {
	vm := s.vm(h)

	pm, err := guest.NewOperationsManager(s.client.Client, vm.Reference()).ProcessManager(ctx)
	if err != nil {
		return types.GuestCommandResult{}, errors.Join(err, ErrGuestCommand)
	}

	auth := &vimtypes.NamePasswordAuthentication{Username: creds.Username, Password: creds.Password}

	pid, err := pm.StartProgram(ctx, auth, &vimtypes.GuestProgramSpec{
		ProgramPath: cmd.Path,
		Arguments:   cmd.Args,
	})
	if err != nil {
		return types.GuestCommandResult{}, errors.Join(err, ErrGuestCommand)
	}

	if cmd.OneShot {
		return types.GuestCommandResult{}, nil
	}

	ticker := time.NewTicker(guestProcessPollInterval)
	defer ticker.Stop()

	for {
		procs, err := pm.ListProcesses(ctx, auth, []int64{pid})
		if err != nil {
			return types.GuestCommandResult{}, errors.Join(err, ErrGuestCommand)
		}

		if len(procs) == 0 {
			return types.GuestCommandResult{}, errors.Join(
				fmt.Errorf("pid %d", pid),
				errProcessDisappeared,
				ErrGuestCommand,
			)
		}

		if procs[0].EndTime != nil {
			return types.GuestCommandResult{ExitCode: int(procs[0].ExitCode)}, nil
		}

		select {
		case <-ctx.Done():
			return types.GuestCommandResult{}, errors.Join(ctx.Err(), ErrGuestCommand)
		case <-ticker.C:
		}
	}
}

func (s *vsphereSession) vm(h types.VMHandle) *object.VirtualMachine {
	return object.NewVirtualMachine(s.client.Client, vimtypes.ManagedObjectReference{
		Type:  "VirtualMachine",
		Value: h.ID,
	})
}
