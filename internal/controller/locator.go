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

var ErrFind = errors.New("finding appliance")

// ---------------------------------------------------- INTERFACE --------------------------------------------------- //

// Locator finds the appliance of a user.
type Locator interface {
	// Find returns the appliance of username, or nil if the user has no folder or no appliance.
	Find(ctx context.Context, username string) (*types.Appliance, error)
}

// --------------------------------------------------- CONSTRUCTORS ------------------------------------------------- //

// NewLocator returns a new Locator.
func NewLocator(connector adapter.Connector) Locator {
	return &locator{connector: connector}
}

// ----------------------------------------------------- LOCATOR ---------------------------------------------------- //

type locator struct {
	connector adapter.Connector
}

func (l *locator) Find(ctx context.Context, username string) (*types.Appliance, error) {
	session, err := l.connector.Connect(ctx)
	if err != nil {
		return nil, errors.Join(err, ErrFind)
	}
	defer closeSession(ctx, session)

	vm, err := findIn(ctx, session, username)
	if err != nil {
		return nil, errors.Join(err, ErrFind)
	}

	if vm == nil {
		return nil, nil
	}

	info, err := session.Info(ctx, *vm, false)
	if err != nil {
		return nil, errors.Join(err, ErrFind)
	}

	return info, nil
}

// findIn scans the direct children of the folder of username. The first VM named types.ComponentName wins.
func findIn(ctx context.Context, session adapter.Session, username string) (*types.VMHandle, error) {
	folder, err := session.Folder(ctx, username)
	if errors.Is(err, adapter.ErrFolderNotFound) {
		logr.FromContextOrDiscard(ctx).V(1).Info("user has no folder")
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	children, err := session.Children(ctx, folder)
	if err != nil {
		return nil, err
	}

	for _, child := range children {
		if child.Name == types.ComponentName {
			return &child, nil
		}
	}

	return nil, nil
}

func closeSession(ctx context.Context, session adapter.Session) {
	if err := session.Close(ctx); err != nil {
		logr.FromContextOrDiscard(ctx).Error(err, "closing control plane session")
	}
}
