package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracer(t *testing.T) {
	tp, err := InitTracer(context.Background(), "uploads", "localhost:4318")
	require.NoError(t, err)
	assert.Same(t, tp, otel.GetTracerProvider())

	// nothing was exported, so shutdown does not need the collector
	require.NoError(t, tp.Shutdown(context.Background()))
}
