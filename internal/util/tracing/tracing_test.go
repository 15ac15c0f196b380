//go:build unit

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

package tracing_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/alexandremahdhaoui/vlab-gateway/internal/util/tracing"
)

func TestSetup(t *testing.T) {
	t.Run("Propagation only", func(t *testing.T) {
		shutdown, err := tracing.Setup(tracing.Options{ServiceName: "test"})
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))

		assert.ElementsMatch(t, []string{"traceparent", "tracestate", "baggage"}, otel.GetTextMapPropagator().Fields())
	})

	t.Run("Stdout exporter", func(t *testing.T) {
		buf := new(bytes.Buffer)

		shutdown, err := tracing.Setup(tracing.Options{
			ServiceName:    "test",
			ServiceVersion: "v0.0.0",
			Stdout:         true,
			Writer:         buf,
		})
		require.NoError(t, err)

		_, span := otel.Tracer("test").Start(context.Background(), "create")
		span.End()

		require.NoError(t, shutdown(context.Background()))
		assert.Contains(t, buf.String(), `"Name":"create"`)
		assert.Contains(t, buf.String(), "v0.0.0")
	})
}
