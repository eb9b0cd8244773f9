package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsRenderAsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	l.Info("fincast started",
		Bool("tracing", true),
		Any("symbols", []string{"AAPL", "MSFT"}),
		Int("workers", 2))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &line))
	assert.Equal(t, "fincast started", line["message"])
	assert.Equal(t, true, line["tracing"])
	assert.Equal(t, []interface{}{"AAPL", "MSFT"}, line["symbols"])
	assert.Equal(t, float64(2), line["workers"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	assert.Error(t, err)
}
