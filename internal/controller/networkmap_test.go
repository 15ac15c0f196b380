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

package controller_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/controller"
	"github.com/alexandremahdhaoui/vlab-gateway/internal/types"
)

func TestResolveNetworkMap(t *testing.T) {
	h1 := types.NetworkRef{Name: "someWAN", ID: "network-1", Type: "Network"}
	h2 := types.NetworkRef{Name: "someLAN", ID: "network-2", Type: "Network"}
	table := map[string]types.NetworkRef{"someWAN": h1, "someLAN": h2}

	t.Run("maps every label", func(t *testing.T) {
		for _, tc := range []struct {
			name     string
			networks []string
			expected []types.NetworkMapEntry
		}{
			{
				name:     "lower case",
				networks: []string{"wan", "lan"},
				expected: []types.NetworkMapEntry{{Label: "wan", Network: h1}, {Label: "lan", Network: h2}},
			},
			{
				name:     "mixed case",
				networks: []string{"LAN", "Wan"},
				expected: []types.NetworkMapEntry{{Label: "LAN", Network: h2}, {Label: "Wan", Network: h1}},
			},
			{
				name:     "repeated label",
				networks: []string{"wan", "wan"},
				expected: []types.NetworkMapEntry{{Label: "wan", Network: h1}, {Label: "wan", Network: h1}},
			},
			{
				name:     "no networks",
				networks: []string{},
				expected: []types.NetworkMapEntry{},
			},
		} {
			t.Run(tc.name, func(t *testing.T) {
				out, err := controller.ResolveNetworkMap(tc.networks, "someWAN", "someLAN", table)
				require.NoError(t, err)
				assert.Len(t, out, len(tc.networks))
				assert.Equal(t, tc.expected, out)
			})
		}
	})

	t.Run("unexpected topology", func(t *testing.T) {
		for _, networks := range [][]string{
			{"mgmt"},
			{"wan", "lan", "mgmt"},
			{"wan", "dmz", "lan"},
		} {
			out, err := controller.ResolveNetworkMap(networks, "someWAN", "someLAN", table)
			assert.Nil(t, out)
			assert.Equal(t, types.KindUnexpectedTopology, types.KindOf(err))
			assert.Contains(t, err.Error(), "Unexpected network found defined in OVA: ")
		}

		// The topology error wins even when a network name is unknown.
		_, err := controller.ResolveNetworkMap([]string{"wan", "mgmt"}, "nope", "someLAN", table)
		assert.Equal(t, types.KindUnexpectedTopology, types.KindOf(err))
		assert.EqualError(t, err, "Unexpected network found defined in OVA: mgmt")
	})

	t.Run("network not found", func(t *testing.T) {
		out, err := controller.ResolveNetworkMap([]string{"wan", "lan"}, "someWAN", "someLANN", table)
		assert.Nil(t, out)
		assert.Equal(t, types.KindNetworkNotFound, types.KindOf(err))
		assert.EqualError(t, err, "No such network for LAN: someLANN")

		out, err = controller.ResolveNetworkMap([]string{"wan", "lan"}, "otherWAN", "someLAN", table)
		assert.Nil(t, out)
		assert.Equal(t, types.KindNetworkNotFound, types.KindOf(err))
		assert.EqualError(t, err, "No such network for WAN: otherWAN")
	})
}
