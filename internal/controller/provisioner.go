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

package controller

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/adapter"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/types"
)

// DefaultImageName is the template image deployed when none is configured.
const DefaultImageName = "defaultgateway-IPAM.ova"

var ErrProvision = errors.New("provisioning appliance")

// ---------------------------------------------------- INTERFACE --------------------------------------------------- //

// Provisioner deploys and configures the appliance of a user.
type Provisioner interface {
	// Provision deploys the appliance of username with its WAN and LAN interfaces attached to the
	// platform networks named wan and lan. It returns the appliance as read once setup completed.
	Provision(ctx context.Context, username, wan, lan string) (*types.Appliance, error)
}

// ProvisionerOptions configures a Provisioner.
type ProvisionerOptions struct {
	// ImageDir is the directory holding template images.
	ImageDir string
	// ImageName is the file name of the template image inside ImageDir.
	ImageName string
}

// --------------------------------------------------- CONSTRUCTORS ------------------------------------------------- //

// NewProvisioner returns a new Provisioner.
func NewProvisioner(connector adapter.Connector, registry *StrategyRegistry, opts ProvisionerOptions) Provisioner {
	if opts.ImageName == "" {
		opts.ImageName = DefaultImageName
	}

	return &provisioner{connector: connector, registry: registry, opts: opts}
}

// --------------------------------------------------- PROVISIONER -------------------------------------------------- //

type provisioner struct {
	connector adapter.Connector
	registry  *StrategyRegistry
	opts      ProvisionerOptions
}

func (p *provisioner) Provision(ctx context.Context, username, wan, lan string) (*types.Appliance, error) {
	strategy := p.registry.ForImage(p.opts.ImageName)
	log := logr.FromContextOrDiscard(ctx).WithValues("image", p.opts.ImageName, "strategy", strategy.Name())

	session, err := p.connector.Connect(ctx)
	if err != nil {
		return nil, errors.Join(err, ErrProvision)
	}
	defer closeSession(ctx, session)

	vm, err := p.deploy(ctx, session, username, wan, lan)
	if err != nil {
		return nil, errors.Join(err, ErrProvision)
	}

	log.Info("appliance deployed", "moid", vm.ID)

	if err := strategy.Setup(ctx, session, vm, username); err != nil {
		return nil, errors.Join(err, ErrProvision)
	}

	log.Info("appliance configured", "moid", vm.ID)

	info, err := session.Info(ctx, vm, false)
	if err != nil {
		return nil, errors.Join(err, ErrProvision)
	}

	return info, nil
}

// deploy opens the template, resolves the network map and deploys the appliance. The template is
// closed before deploy returns.
func (p *provisioner) deploy(
	ctx context.Context,
	session adapter.Session,
	username, wan, lan string,
) (types.VMHandle, error) {
	log := logr.FromContextOrDiscard(ctx)

	tmpl, err := session.OpenTemplate(ctx, filepath.Join(p.opts.ImageDir, p.opts.ImageName))
	if err != nil {
		return types.VMHandle{}, err
	}

	defer func() {
		if err := tmpl.Close(); err != nil {
			log.Error(err, "closing template", "template", tmpl.Name())
		}
	}()

	table, err := session.Networks(ctx)
	if err != nil {
		return types.VMHandle{}, err
	}

	networkMap, err := ResolveNetworkMap(tmpl.Networks(), wan, lan, table)
	if err != nil {
		return types.VMHandle{}, err
	}

	log.V(1).Info("resolved network map", "entries", len(networkMap))

	return session.Deploy(ctx, tmpl, networkMap, username, types.ComponentName)
}
