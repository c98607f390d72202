package bsa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtbridge/internal/errors"
	"github.com/tphakala/rtbridge/internal/host"
)

// collect runs cycles on a simulated engine wired through an adapter whose
// handler copies input to output, and returns every output sample.
func collect(t *testing.T, hostFrames, userFrames, channels, cycles int) ([]float32, *Adapter) {
	t.Helper()

	var got []float32
	sim, err := host.NewSimulated(host.SimulatedConfig{
		Layout: host.Layout{SampleRate: 48000, BufferFrames: hostFrames, InputChannels: channels, OutputChannels: channels},
		Source: host.RampSource(),
		Sink: func(_ uint64, _, _ int, buf []float32) {
			got = append(got, buf...)
		},
	})
	require.NoError(t, err)

	var blockSizes []int
	a, err := New(sim, Config{
		HostFrames:     hostFrames,
		UserFrames:     userFrames,
		InputChannels:  channels,
		OutputChannels: channels,
	}, HandlerFunc(func(_, frames, _ int, in []float32, _ int, out []float32) {
		blockSizes = append(blockSizes, frames)
		copy(out, in)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Release() })

	for range cycles {
		require.NoError(t, sim.Step())
	}
	for _, n := range blockSizes {
		require.Equal(t, userFrames, n, "handler always sees user-sized blocks")
	}
	return got, a
}

func TestAdapterReblocking(t *testing.T) {
	tests := []struct {
		name            string
		hostFrames      int
		userFrames      int
		channels        int
		expectedLatency int
	}{
		{"equal sizes pass through", 128, 128, 2, 0},
		{"host larger than user", 256, 128, 2, 128},
		{"host smaller than user", 64, 256, 2, 256},
		{"non multiple sizes", 100, 64, 1, 64},
		{"odd sizes", 37, 53, 3, 53},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const cycles = 40
			got, a := collect(t, tt.hostFrames, tt.userFrames, tt.channels, cycles)

			assert.Equal(t, tt.expectedLatency, a.Latency())
			require.Len(t, got, cycles*tt.hostFrames*tt.channels)

			delay := tt.expectedLatency * tt.channels
			for i := range delay {
				require.InDelta(t, 0, got[i], 0, "priming block is silence at %d", i)
			}
			for i := delay; i < len(got); i++ {
				require.InDelta(t, float32(i-delay), got[i], 0, "sample %d", i)
			}

			totalFrames := cycles * tt.hostFrames
			assert.Equal(t, uint64(totalFrames/tt.userFrames), a.Blocks())
			assert.Zero(t, a.Mismatches())
		})
	}
}

func TestAdapterInputOnly(t *testing.T) {
	sim, err := host.NewSimulated(host.SimulatedConfig{
		Layout: host.Layout{SampleRate: 48000, BufferFrames: 96, InputChannels: 2},
		Source: host.RampSource(),
	})
	require.NoError(t, err)

	var received []float32
	a, err := New(sim, Config{HostFrames: 96, UserFrames: 64, InputChannels: 2}, HandlerFunc(
		func(_, frames, inCh int, in []float32, outCh int, out []float32) {
			assert.Equal(t, 0, outCh)
			assert.Empty(t, out)
			received = append(received, in[:frames*inCh]...)
		}))
	require.NoError(t, err)
	defer a.Release()

	for range 4 {
		require.NoError(t, sim.Step())
	}
	// 384 frames in, six blocks of 64
	require.Len(t, received, 6*64*2)
	for i, v := range received {
		require.InDelta(t, float32(i), v, 0)
	}
}

func TestAdapterOutputOnly(t *testing.T) {
	var out []float32
	sim, err := host.NewSimulated(host.SimulatedConfig{
		Layout: host.Layout{SampleRate: 48000, BufferFrames: 32, OutputChannels: 1},
		Sink:   func(_ uint64, _, _ int, buf []float32) { out = append(out, buf...) },
	})
	require.NoError(t, err)

	a, err := New(sim, Config{HostFrames: 32, UserFrames: 48, OutputChannels: 1}, HandlerFunc(
		func(_, _, inCh int, _ []float32, _ int, o []float32) {
			assert.Equal(t, 0, inCh)
			for i := range o {
				o[i] = 1
			}
		}))
	require.NoError(t, err)
	defer a.Release()

	for range 6 {
		require.NoError(t, sim.Step())
	}
	require.Len(t, out, 192)
	for i := range 48 {
		assert.InDelta(t, 0, out[i], 0)
	}
	for i := 48; i < len(out); i++ {
		assert.InDelta(t, 1, out[i], 0)
	}
}

func TestAdapterRejectsBadConfig(t *testing.T) {
	sim, err := host.NewSimulated(host.SimulatedConfig{
		Layout: host.Layout{SampleRate: 48000, BufferFrames: 256, InputChannels: 2, OutputChannels: 2},
	})
	require.NoError(t, err)
	h := HandlerFunc(func(int, int, int, []float32, int, []float32) {})

	bad := []Config{
		{HostFrames: 0, UserFrames: 128, InputChannels: 2, OutputChannels: 2},
		{HostFrames: 256, UserFrames: -1, InputChannels: 2, OutputChannels: 2},
		{HostFrames: 256, UserFrames: 128},
		{HostFrames: 512, UserFrames: 128, InputChannels: 2, OutputChannels: 2},
		{HostFrames: 256, UserFrames: 128, InputChannels: 1, OutputChannels: 2},
	}
	for _, cfg := range bad {
		_, err := New(sim, cfg, h)
		require.Error(t, err, "%+v", cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	}

	_, err = New(sim, Config{HostFrames: 256, UserFrames: 128, InputChannels: 2, OutputChannels: 2}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAdapterAttachConflict(t *testing.T) {
	sim, err := host.NewSimulated(host.SimulatedConfig{
		Layout: host.Layout{SampleRate: 48000, BufferFrames: 64, InputChannels: 1, OutputChannels: 1},
	})
	require.NoError(t, err)
	cfg := Config{HostFrames: 64, UserFrames: 64, InputChannels: 1, OutputChannels: 1}
	h := HandlerFunc(func(int, int, int, []float32, int, []float32) {})

	first, err := New(sim, cfg, h)
	require.NoError(t, err)

	_, err = New(sim, cfg, h)
	require.Error(t, err)
	assert.ErrorIs(t, err, host.ErrAlreadyAttached)

	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	second, err := New(sim, cfg, h)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestAdapterSilencesMismatchedCallbacks(t *testing.T) {
	sim, err := host.NewSimulated(host.SimulatedConfig{
		Layout: host.Layout{SampleRate: 48000, BufferFrames: 64, InputChannels: 1, OutputChannels: 1},
	})
	require.NoError(t, err)

	called := 0
	a, err := New(sim, Config{HostFrames: 64, UserFrames: 32, InputChannels: 1, OutputChannels: 1},
		HandlerFunc(func(int, int, int, []float32, int, []float32) { called++ }))
	require.NoError(t, err)
	defer a.Release()

	in := make([]float32, 128)
	out := make([]float32, 128)
	for i := range out {
		out[i] = 9
	}

	a.process(48000, 128, 1, in, 1, out) // more frames than the host maximum
	a.process(48000, 64, 2, in, 1, out)  // wrong channel count

	assert.Equal(t, uint64(2), a.Mismatches())
	assert.Zero(t, called)
	for _, v := range out {
		require.InDelta(t, 0, v, 0)
	}
}
