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
	"fmt"
	"strings"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/types"
)

const (
	labelWAN = "wan"
	labelLAN = "lan"
)

// ResolveNetworkMap maps every network declared by a template onto the platform network named by
// the caller. Labels are matched case-insensitively against "wan" and "lan".
//
// It returns a *types.JobError of kind KindUnexpectedTopology when a label is neither "wan" nor
// "lan", and of kind KindNetworkNotFound when the network a label maps to is not in table.
// It never returns a partial map.
func ResolveNetworkMap(
	templateNetworks []string,
	wan, lan string,
	table map[string]types.NetworkRef,
) ([]types.NetworkMapEntry, error) {
	for _, label := range templateNetworks {
		switch strings.ToLower(label) {
		case labelWAN, labelLAN:
		default:
			return nil, types.NewJobError(
				types.KindUnexpectedTopology,
				fmt.Sprintf("Unexpected network found defined in OVA: %s", label),
				nil,
			)
		}
	}

	out := make([]types.NetworkMapEntry, 0, len(templateNetworks))

	for _, label := range templateNetworks {
		side, name := "WAN", wan
		if strings.ToLower(label) == labelLAN {
			side, name = "LAN", lan
		}

		ref, ok := table[name]
		if !ok {
			return nil, types.NewJobError(
				types.KindNetworkNotFound,
				fmt.Sprintf("No such network for %s: %s", side, name),
				nil,
			)
		}

		out = append(out, types.NetworkMapEntry{Label: label, Network: ref})
	}

	return out, nil
}
