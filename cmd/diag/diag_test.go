package diag

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtbridge/internal/diagnostics"
)

func TestPrintSnapshot(t *testing.T) {
	t.Parallel()

	snap := diagnostics.Snapshot{
		Time:       time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		OS:         "linux",
		Arch:       "arm64",
		Goroutines: 7,
		Warnings:   []string{"load average unavailable"},
	}

	var text bytes.Buffer
	require.NoError(t, printSnapshot(&text, &snap, false))
	assert.Contains(t, text.String(), "Platform: linux/arm64")
	assert.Contains(t, text.String(), "Warning: load average unavailable")

	var js bytes.Buffer
	require.NoError(t, printSnapshot(&js, &snap, true))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, "arm64", decoded["arch"])
	assert.InDelta(t, 7, decoded["goroutines"], 0)
}
