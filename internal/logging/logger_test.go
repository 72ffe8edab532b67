package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_ProductionIsJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, false)

	log.Debug("hidden")
	log.Info("composed", zap.Int("types", 12))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "composed", entry["msg"])
	assert.Equal(t, float64(12), entry["types"])
}

func TestNew_DebugIncludesDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, true)

	log.Debug("tenant context built")
	assert.Contains(t, buf.String(), "tenant context built")
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	l := zap.NewExample()
	ctx := NewContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}
