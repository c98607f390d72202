package recorder

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtbridge/internal/testutil"
)

type countingCounter struct{ n atomic.Int64 }

func (c *countingCounter) Inc() { c.n.Add(1) }

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Path:        filepath.Join(t.TempDir(), "nested", "input.wav"),
		SampleRate:  48000,
		Channels:    2,
		BitDepth:    16,
		BlockFrames: 4,
		QueueBlocks: 8,
	}
}

func readWAV(t *testing.T, path string) (*wav.Decoder, []int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	return dec, buf.Data
}

func TestRecorderWritesBlocks(t *testing.T) {
	cfg := testConfig(t)
	w, err := New(cfg, testutil.DiscardLogger(), nil)
	require.NoError(t, err)

	w.Observe([]float32{0, 0.5, -0.5, 1, 2, -2, 0.25, -0.25}, 2, 4)
	w.Observe([]float32{0.1, -0.1}, 2, 1)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "close is idempotent")

	assert.Equal(t, uint64(5), w.Frames())
	assert.Zero(t, w.Dropped())

	dec, data := readWAV(t, cfg.Path)
	assert.Equal(t, uint32(48000), dec.SampleRate)
	assert.Equal(t, uint16(2), dec.NumChans)
	assert.Equal(t, uint16(16), dec.BitDepth)

	assert.Equal(t, []int{0, 16383, -16383, 32767, 32767, -32767, 8191, -8191, 3276, -3276}, data,
		"samples are scaled and clamped to full scale")
}

func TestRecorderDropsMisfitBlocks(t *testing.T) {
	drops := &countingCounter{}
	w, err := New(testConfig(t), testutil.DiscardLogger(), drops)
	require.NoError(t, err)

	w.Observe(make([]float32, 4), 1, 4)   // wrong channel count
	w.Observe(make([]float32, 10), 2, 5) // larger than a block
	w.Observe(make([]float32, 2), 2, 4)  // short buffer
	require.NoError(t, w.Close())

	assert.Equal(t, uint64(3), w.Dropped())
	assert.Equal(t, int64(3), drops.n.Load())
	assert.Zero(t, w.Frames())
}

func TestRecorderDropsWhenWriterBehind(t *testing.T) {
	cfg := testConfig(t)
	cfg.QueueBlocks = 1
	w, err := New(cfg, testutil.DiscardLogger(), nil)
	require.NoError(t, err)

	// Hold the only block as if the writer were still busy with it.
	b := <-w.free
	w.Observe(make([]float32, 8), 2, 4)
	assert.Equal(t, uint64(1), w.Dropped())
	w.free <- b

	w.Observe(make([]float32, 8), 2, 4)
	require.NoError(t, w.Close())
	assert.Equal(t, uint64(1), w.Dropped())
	assert.Equal(t, uint64(4), w.Frames())
}

func TestRecorderObserveAfterClose(t *testing.T) {
	w, err := New(testConfig(t), testutil.DiscardLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.NotPanics(t, func() { w.Observe(make([]float32, 8), 2, 4) })
	assert.Zero(t, w.Dropped())
}

func TestRecorderInvalidConfig(t *testing.T) {
	mutations := map[string]func(c *Config){
		"empty path":     func(c *Config) { c.Path = "" },
		"bit depth":      func(c *Config) { c.BitDepth = 12 },
		"no channels":    func(c *Config) { c.Channels = 0 },
		"no queue":       func(c *Config) { c.QueueBlocks = 0 },
		"no block size":  func(c *Config) { c.BlockFrames = 0 },
		"no sample rate": func(c *Config) { c.SampleRate = 0 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			mutate(&cfg)
			_, err := New(cfg, testutil.DiscardLogger(), nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
