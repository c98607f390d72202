package bridge

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtbridge/internal/errors"
	"github.com/tphakala/rtbridge/internal/host"
	"github.com/tphakala/rtbridge/internal/observability/metrics"
	"github.com/tphakala/rtbridge/internal/rendezvous"
	"github.com/tphakala/rtbridge/internal/testutil"
)

const testSampleRate = 48000

func newSimulated(t *testing.T, frames, inCh, outCh int, src host.Source, sink host.Sink) *host.Simulated {
	t.Helper()
	sim, err := host.NewSimulated(host.SimulatedConfig{
		Layout: host.Layout{
			SampleRate:     testSampleRate,
			BufferFrames:   frames,
			InputChannels:  inCh,
			OutputChannels: outCh,
		},
		Source: src,
		Sink:   sink,
	})
	require.NoError(t, err)
	return sim
}

func configFor(sim *host.Simulated, userFrames int) rendezvous.Config {
	l := sim.Layout()
	return rendezvous.Config{
		HostBufferFrames: l.BufferFrames,
		UserBufferFrames: userFrames,
		InputChannels:    l.InputChannels,
		OutputChannels:   l.OutputChannels,
	}
}

func quiet() rendezvous.Option {
	return rendezvous.WithLogger(testutil.DiscardLogger())
}

func TestRegistryHandles(t *testing.T) {
	rec := metrics.NewTestRecorder()
	reg := NewRegistry(rec)
	sim := newSimulated(t, 64, 2, 2, nil, nil)

	h, err := reg.Configure(sim, configFor(sim, 64), quiet())
	require.NoError(t, err)
	assert.NotZero(t, h, "handle 0 is never issued")
	assert.Equal(t, 1, reg.Count())

	c, err := reg.Context(h)
	require.NoError(t, err)
	assert.Equal(t, rendezvous.StateActive, c.State())

	require.NoError(t, reg.SignalShutdown(h))
	require.NoError(t, reg.SignalShutdown(h), "shutdown is idempotent")
	ok, err := reg.ReadInput(context.Background(), h, make([]float32, 128))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, reg.WriteOutput(h, make([]float32, 128)), "post-shutdown write is a no-op")

	require.NoError(t, reg.Release(h))
	assert.Zero(t, reg.Count())

	err = reg.Release(h)
	require.ErrorIs(t, err, ErrInvalidHandle)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))

	assert.Equal(t, 1, rec.OperationCount(metrics.OpConfigure, metrics.StatusSuccess))
	assert.Equal(t, 1, rec.OperationCount(metrics.OpRelease, metrics.StatusSuccess))
	assert.Equal(t, 1, rec.OperationCount(metrics.OpRelease, metrics.StatusError))
	assert.Equal(t, 1, rec.OperationCount(metrics.OpReadInput, metrics.StatusShutdown))
	assert.Equal(t, 1, rec.OperationCount(metrics.OpWriteOutput, metrics.StatusShutdown))
	assert.Equal(t, 2, rec.OperationCount(metrics.OpSignalShutdown, metrics.StatusSuccess))
	assert.Len(t, rec.Durations(metrics.OpConfigure), 1)
}

func TestRegistryInvalidHandles(t *testing.T) {
	reg := NewRegistry(nil)
	buf := make([]float32, 4)

	_, err := reg.ReadInput(context.Background(), 0, buf)
	require.ErrorIs(t, err, ErrInvalidHandle)
	require.ErrorIs(t, reg.WriteOutput(42, buf), ErrInvalidHandle)
	require.ErrorIs(t, reg.SignalShutdown(7), ErrInvalidHandle)
	_, err = reg.Borrow(context.Background(), 1, func(rendezvous.Window) {})
	require.ErrorIs(t, err, ErrInvalidHandle)
	_, err = reg.Context(0)
	require.ErrorIs(t, err, ErrInvalidHandle)
}

func TestRegistryConfigureFailure(t *testing.T) {
	rec := metrics.NewTestRecorder()
	reg := NewRegistry(rec)
	sim := newSimulated(t, 64, 2, 2, nil, nil)

	cfg := configFor(sim, 64)
	cfg.InputChannels = 1 // does not match the engine layout
	_, err := reg.Configure(sim, cfg, quiet())
	require.ErrorIs(t, err, rendezvous.ErrAdapterConstruction)
	assert.Zero(t, reg.Count())
	assert.Equal(t, 1, rec.OperationCount(metrics.OpConfigure, metrics.StatusError))

	// The module is still free for a valid configuration.
	h, err := reg.Configure(sim, configFor(sim, 64), quiet())
	require.NoError(t, err)
	require.NoError(t, reg.Release(h))
}

func TestRegistryHandlesAreDistinct(t *testing.T) {
	reg := NewRegistry(nil)
	a := newSimulated(t, 32, 1, 1, nil, nil)
	b := newSimulated(t, 32, 1, 1, nil, nil)

	ha, err := reg.Configure(a, configFor(a, 32), quiet())
	require.NoError(t, err)
	hb, err := reg.Configure(b, configFor(b, 16), quiet())
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
	assert.Equal(t, 2, reg.Count())

	require.NoError(t, reg.Close())
	assert.Zero(t, reg.Count())
	_, err = reg.Context(ha)
	require.ErrorIs(t, err, ErrInvalidHandle)
}

func TestRegistryActiveContextsGauge(t *testing.T) {
	promReg := prometheus.NewRegistry()
	m, err := metrics.NewBridgeMetrics(promReg)
	require.NoError(t, err)
	reg := NewRegistry(m)
	sim := newSimulated(t, 64, 2, 2, nil, nil)

	gauge := func() float64 {
		families, err := promReg.Gather()
		require.NoError(t, err)
		for _, f := range families {
			if f.GetName() == "rtbridge_active_contexts" {
				return f.GetMetric()[0].GetGauge().GetValue()
			}
		}
		return -1
	}

	h, err := reg.Configure(sim, configFor(sim, 64), quiet())
	require.NoError(t, err)
	assert.InDelta(t, 1, gauge(), 0)

	require.NoError(t, reg.Release(h))
	assert.InDelta(t, 0, gauge(), 0)

	n, err := promtestutil.GatherAndCount(promReg, "rtbridge_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "configure and release series")
}

func TestRegistryBorrow(t *testing.T) {
	rec := metrics.NewTestRecorder()
	reg := NewRegistry(rec)
	var got []float32
	sim := newSimulated(t, 4, 1, 1, host.RampSource(), func(_ uint64, _, _ int, buf []float32) {
		got = append(got, buf...)
	})
	h, err := reg.Configure(sim, configFor(sim, 4), quiet())
	require.NoError(t, err)
	defer func() { require.NoError(t, reg.Release(h)) }()

	consumer := testutil.Go(func() {
		ok, err := reg.Borrow(context.Background(), h, func(w rendezvous.Window) {
			for i, v := range w.In {
				w.Out[i] = v * 10
			}
		})
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	require.NoError(t, sim.Step())
	testutil.WaitForChannel(t, consumer, testutil.DefaultTestTimeout, "borrow did not return")
	assert.Equal(t, []float32{0, 10, 20, 30}, got)
	assert.Equal(t, 1, rec.OperationCount(metrics.OpBorrow, metrics.StatusSuccess))
	require.NoError(t, reg.SignalShutdown(h))
}
