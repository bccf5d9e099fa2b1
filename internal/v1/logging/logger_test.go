package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_Idempotent(t *testing.T) {
	require.NoError(t, Initialize(true))
	first := GetLogger()

	// Subsequent calls are absorbed by the once guard.
	require.NoError(t, Initialize(false))
	assert.Same(t, first, GetLogger())
}

func TestGetLogger_FallbackBeforeInit(t *testing.T) {
	assert.NotNil(t, GetLogger())
}

func TestAppendContextFields(t *testing.T) {
	ctx := context.WithValue(context.Background(), CorrelationIDKey, "corr-1")
	ctx = context.WithValue(ctx, ConnectionIDKey, "conn-2")
	ctx = context.WithValue(ctx, RoomIDKey, "ROOM42")

	fields := appendContextFields(ctx, nil)

	keys := make(map[string]string, len(fields))
	for _, f := range fields {
		keys[f.Key] = f.String
	}
	assert.Equal(t, "corr-1", keys["correlation_id"])
	assert.Equal(t, "conn-2", keys["connection_id"])
	assert.Equal(t, "ROOM42", keys["room_id"])
	assert.Equal(t, "xiangqi-server", keys["service"])
}

func TestAppendContextFields_NilContext(t *testing.T) {
	//nolint:staticcheck // exercising the nil guard directly
	fields := appendContextFields(nil, nil)
	assert.Empty(t, fields)
}

func TestAppendContextFields_MissingValues(t *testing.T) {
	fields := appendContextFields(context.Background(), nil)

	require.Len(t, fields, 1)
	assert.Equal(t, "service", fields[0].Key)
}
