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

	"github.com/go-logr/logr"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/adapter"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/types"
)

var ErrDestroy = errors.New("destroying appliance")

// ---------------------------------------------------- INTERFACE --------------------------------------------------- //

// Teardown removes the appliance of a user.
type Teardown interface {
	// Destroy powers off and deletes the appliance of username, and returns once the deletion completed.
	// It is a no-op if the user has no appliance.
	Destroy(ctx context.Context, username string) error
}

// --------------------------------------------------- CONSTRUCTORS ------------------------------------------------- //

// NewTeardown returns a new Teardown.
func NewTeardown(connector adapter.Connector) Teardown {
	return &teardown{connector: connector}
}

// ---------------------------------------------------- TEARDOWN ---------------------------------------------------- //

type teardown struct {
	connector adapter.Connector
}

func (t *teardown) Destroy(ctx context.Context, username string) error {
	log := logr.FromContextOrDiscard(ctx)

	session, err := t.connector.Connect(ctx)
	if err != nil {
		return errors.Join(err, ErrDestroy)
	}
	defer closeSession(ctx, session)

	vm, err := findIn(ctx, session, username)
	if err != nil {
		return errors.Join(err, ErrDestroy)
	}

	if vm == nil {
		log.V(1).Info("no appliance to destroy")
		return nil
	}

	log.V(1).Info("powering off appliance", "moid", vm.ID)

	if err := session.Power(ctx, *vm, types.PowerOff); err != nil {
		return errors.Join(err, ErrDestroy)
	}

	task, err := session.Destroy(ctx, *vm)
	if err != nil {
		return errors.Join(err, ErrDestroy)
	}

	log.V(1).Info("waiting for appliance to be destroyed", "moid", vm.ID)

	if err := task.Wait(ctx); err != nil {
		return errors.Join(err, ErrDestroy)
	}

	return nil
}
