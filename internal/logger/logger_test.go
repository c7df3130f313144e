package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	log := New("not-a-level")
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())

	log = New("debug")
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())
}

func TestFromContext_AttachesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithLogger(context.Background(), base)
	ctx = WithCorrelationID(ctx, "req-42")

	log := FromContext(ctx)
	log.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-42", line["correlation_id"])
	assert.Equal(t, "hello", line["message"])
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
	assert.Empty(t, CorrelationIDFromContext(context.Background()))
}

func TestNewCorrelationID_IsUUID(t *testing.T) {
	_, err := uuid.Parse(NewCorrelationID())
	assert.NoError(t, err)
}
