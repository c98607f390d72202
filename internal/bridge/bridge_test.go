package bridge

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtbridge/internal/dsp"
	"github.com/tphakala/rtbridge/internal/errors"
	"github.com/tphakala/rtbridge/internal/host"
	"github.com/tphakala/rtbridge/internal/observability/metrics"
	"github.com/tphakala/rtbridge/internal/recorder"
	"github.com/tphakala/rtbridge/internal/rendezvous"
	"github.com/tphakala/rtbridge/internal/testutil"
)

// failingEngine refuses to connect.
type failingEngine struct {
	*host.Simulated
}

func (failingEngine) Connect() error { return errors.NewStd("device busy") }

func newBridge(t *testing.T, engine host.Engine, userFrames int, opts ...Option) *Bridge {
	t.Helper()
	opts = append([]Option{WithLogger(testutil.DiscardLogger())}, opts...)
	b, err := New(engine, Config{UserBufferFrames: userFrames}, opts...)
	require.NoError(t, err)
	return b
}

func TestBridgeRunsAndCloses(t *testing.T) {
	var nonSilent atomic.Int64
	sim := newSimulated(t, 96, 2, 2, host.SineSource(440, 0.5, testSampleRate), func(_ uint64, _, _ int, buf []float32) {
		for _, v := range buf {
			if v != 0 {
				nonSilent.Add(1)
				return
			}
		}
	})
	reg := NewRegistry(nil)
	meter := dsp.NewLevelMeter()
	obs := &captureObserver{}
	b := newBridge(t, sim, 64, WithRegistry(reg), WithProcessor(dsp.NewGain(0.5)), WithObservers(meter, obs))
	assert.Equal(t, 1, reg.Count())
	assert.NotEmpty(t, b.ID())

	require.NoError(t, b.Start(context.Background()))
	require.ErrorIs(t, b.Start(context.Background()), ErrAlreadyStarted)

	require.Eventually(t, func() bool { return b.Status().Cycles >= 20 },
		testutil.DefaultTestTimeout, time.Millisecond)
	status := b.Status()
	assert.Equal(t, rendezvous.StateActive.String(), status.State)
	assert.Equal(t, 64, status.LatencyFrames)
	assert.Equal(t, 96, status.HostBufferFrames)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "close is idempotent")

	assert.False(t, sim.Connected())
	assert.Zero(t, reg.Count())
	assert.Equal(t, rendezvous.StateReleased.String(), b.Status().State)
	assert.Positive(t, nonSilent.Load())
	assert.Positive(t, meter.Blocks())
	assert.Less(t, meter.Current().Peak, -5.0)
	assert.Equal(t, 1, obs.closed, "closable observers are closed")
	testutil.WaitForChannel(t, b.Done(), testutil.ShortTestTimeout, "done not closed")
	assert.NoError(t, b.Err())

	require.ErrorIs(t, b.Start(context.Background()), ErrClosed)
}

func TestBridgeStopsWhenContextEnds(t *testing.T) {
	sim := newSimulated(t, 32, 1, 1, nil, nil)
	b := newBridge(t, sim, 32)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, b.Start(ctx))
	require.Eventually(t, func() bool { return b.Status().Cycles > 0 },
		testutil.DefaultTestTimeout, time.Millisecond)

	cancel()
	testutil.WaitForChannel(t, b.Done(), testutil.DefaultTestTimeout, "bridge did not stop")
	assert.NoError(t, b.Err())

	// The engine keeps running on a terminated context and only gets
	// silence until Close disconnects it.
	assert.True(t, sim.Connected())
	require.NoError(t, b.Close())
	assert.False(t, sim.Connected())
}

func TestBridgeCloseWithoutStart(t *testing.T) {
	sim := newSimulated(t, 32, 1, 1, nil, nil)
	reg := NewRegistry(nil)
	b := newBridge(t, sim, 16, WithRegistry(reg))

	require.NoError(t, b.Close())
	assert.Zero(t, reg.Count())
	require.ErrorIs(t, sim.Connect(), host.ErrClosed, "engine is closed")
}

func TestBridgeConnectFailure(t *testing.T) {
	sim := newSimulated(t, 32, 1, 1, nil, nil)
	reg := NewRegistry(nil)
	b := newBridge(t, failingEngine{sim}, 32, WithRegistry(reg))

	err := b.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAudioDevice))
	testutil.WaitForChannel(t, b.Done(), testutil.ShortTestTimeout, "consumer not stopped")

	require.NoError(t, b.Close())
	assert.Zero(t, reg.Count())
}

func TestBridgeConfigureFailure(t *testing.T) {
	sim := newSimulated(t, 32, 1, 1, nil, nil)
	_, err := New(sim, Config{UserBufferFrames: 0}, WithLogger(testutil.DiscardLogger()))
	require.ErrorIs(t, err, rendezvous.ErrInvalidConfig)
}

func TestBridgeMetrics(t *testing.T) {
	promReg := prometheus.NewRegistry()
	m, err := metrics.NewBridgeMetrics(promReg)
	require.NoError(t, err)

	sim := newSimulated(t, 64, 1, 1, nil, nil)
	b := newBridge(t, sim, 64, WithMetrics(m))
	require.NoError(t, b.Start(context.Background()))
	require.Eventually(t, func() bool { return b.Status().Cycles >= 10 },
		testutil.DefaultTestTimeout, time.Millisecond)

	series := func(name, label string) float64 {
		families, err := promReg.Gather()
		require.NoError(t, err)
		for _, f := range families {
			if f.GetName() != name {
				continue
			}
			for _, mt := range f.GetMetric() {
				for _, l := range mt.GetLabel() {
					if l.GetName() == "bridge_id" && l.GetValue() == b.ID() {
						if label == "" {
							return float64(mt.GetHistogram().GetSampleCount())
						}
						for _, l2 := range mt.GetLabel() {
							if l2.GetValue() == label {
								return mt.GetCounter().GetValue()
							}
						}
					}
				}
			}
		}
		return 0
	}

	assert.GreaterOrEqual(t, series("rtbridge_cycles_total", metrics.OutcomeCompleted), 10.0)
	assert.GreaterOrEqual(t, series("rtbridge_process_duration_seconds", ""), 10.0)

	require.NoError(t, b.Close())
	assert.Zero(t, series("rtbridge_cycles_total", metrics.OutcomeCompleted), "series are forgotten on close")
}

func TestBridgeRecordsInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	sim := newSimulated(t, 32, 1, 1, host.SineSource(1000, 0.5, testSampleRate), nil)
	w, err := recorder.New(recorder.Config{
		Path:        path,
		SampleRate:  testSampleRate,
		Channels:    1,
		BitDepth:    16,
		BlockFrames: 16,
		QueueBlocks: 1024,
	}, testutil.DiscardLogger(), nil)
	require.NoError(t, err)

	b := newBridge(t, sim, 16, WithObservers(w))
	require.NoError(t, b.Start(context.Background()))
	require.Eventually(t, func() bool { return b.Status().Cycles >= 8 },
		testutil.DefaultTestTimeout, time.Millisecond)
	require.NoError(t, b.Close(), "close also finalises the recording")

	f, err := os.Open(path) //nolint:gosec // test file in t.TempDir
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Equal(t, int(w.Frames()), len(buf.Data))
	assert.GreaterOrEqual(t, len(buf.Data), 8*16)
}

func TestLevelReporter(t *testing.T) {
	promReg := prometheus.NewRegistry()
	m, err := metrics.NewBridgeMetrics(promReg)
	require.NoError(t, err)

	meter := dsp.NewLevelMeter()
	r := &levelReporter{meter: meter, interval: time.Second, collectors: m.Bridge("lvl"), log: testutil.DiscardLogger()}

	gauge := func(kind string) float64 {
		families, err := promReg.Gather()
		require.NoError(t, err)
		for _, f := range families {
			if f.GetName() != "rtbridge_input_level_dbfs" {
				continue
			}
			for _, mt := range f.GetMetric() {
				for _, l := range mt.GetLabel() {
					if l.GetName() == "kind" && l.GetValue() == kind {
						return mt.GetGauge().GetValue()
					}
				}
			}
		}
		return 1
	}

	r.report()
	assert.Zero(t, gauge(metrics.LevelRMS), "nothing reported before the first block")

	block := []float32{0.5, -0.5, 0.5, -0.5}
	meter.Observe(block, 1, 4)
	r.report()
	assert.InDelta(t, -6.02, gauge(metrics.LevelRMS), 0.01)
	assert.InDelta(t, -6.02, gauge(metrics.LevelPeak), 0.01)

	peak, _ := meter.TakeHold()
	assert.Equal(t, dsp.MinDBFS, peak, "report takes the held peak")
}

func TestBridgeLevelMeterOption(t *testing.T) {
	sim := newSimulated(t, 32, 1, 1, host.SineSource(440, 0.5, testSampleRate), nil)
	meter := dsp.NewLevelMeter()
	b := newBridge(t, sim, 32, WithLevelMeter(meter, 5*time.Millisecond))
	require.NotNil(t, b.levels)

	require.NoError(t, b.Start(context.Background()))
	require.Eventually(t, func() bool { return meter.Blocks() > 0 },
		testutil.DefaultTestTimeout, time.Millisecond)
	require.NoError(t, b.Close())
}
