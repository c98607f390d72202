package host

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtbridge/internal/errors"
)

func testLayout() Layout {
	return Layout{SampleRate: 48000, BufferFrames: 64, InputChannels: 2, OutputChannels: 2}
}

func TestLayoutValidate(t *testing.T) {
	assert.NoError(t, testLayout().Validate())

	bad := []Layout{
		{SampleRate: 0, BufferFrames: 64, InputChannels: 1},
		{SampleRate: 48000, BufferFrames: 0, InputChannels: 1},
		{SampleRate: 48000, BufferFrames: 64},
		{SampleRate: 48000, BufferFrames: 64, InputChannels: -1, OutputChannels: 2},
	}
	for _, l := range bad {
		err := l.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidLayout)
	}
}

func TestSimulatedStepPassThrough(t *testing.T) {
	var seen []float32
	sim, err := NewSimulated(SimulatedConfig{
		Layout: testLayout(),
		Source: RampSource(),
		Sink: func(_ uint64, _, _ int, buf []float32) {
			seen = append(seen[:0], buf...)
		},
	})
	require.NoError(t, err)

	require.NoError(t, sim.Attach(func(sr, frames, inCh int, in []float32, outCh int, out []float32) {
		assert.Equal(t, 48000, sr)
		assert.Equal(t, 64, frames)
		assert.Equal(t, 2, inCh)
		assert.Equal(t, 2, outCh)
		copy(out, in)
	}))

	require.NoError(t, sim.Step())
	require.Len(t, seen, 128)
	assert.InDelta(t, 0, seen[0], 0)
	assert.InDelta(t, 127, seen[127], 0)

	require.NoError(t, sim.Step())
	assert.InDelta(t, 128, seen[0], 0)
	assert.Equal(t, uint64(2), sim.Cycles())
}

func TestSimulatedSilenceWithoutProcessFunc(t *testing.T) {
	var peak float32
	sim, err := NewSimulated(SimulatedConfig{
		Layout: testLayout(),
		Source: SineSource(1000, 0.5, 48000),
		Sink: func(_ uint64, _, _ int, buf []float32) {
			for _, v := range buf {
				peak = max(peak, v)
			}
		},
	})
	require.NoError(t, err)

	require.NoError(t, sim.Step())
	assert.InDelta(t, 0, peak, 0)
}

func TestSimulatedAttachTwice(t *testing.T) {
	sim, err := NewSimulated(SimulatedConfig{Layout: testLayout()})
	require.NoError(t, err)

	noop := func(int, int, int, []float32, int, []float32) {}
	require.NoError(t, sim.Attach(noop))
	err = sim.Attach(noop)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyAttached)

	sim.Detach()
	assert.NoError(t, sim.Attach(noop))
}

func TestSimulatedConnectLifecycle(t *testing.T) {
	sim, err := NewSimulated(SimulatedConfig{Layout: testLayout()})
	require.NoError(t, err)

	var calls atomic.Int64
	require.NoError(t, sim.Attach(func(int, int, int, []float32, int, []float32) { calls.Add(1) }))

	require.NoError(t, sim.Connect())
	assert.True(t, sim.Connected())
	assert.ErrorIs(t, sim.Connect(), ErrAlreadyConnected)
	assert.ErrorIs(t, sim.Step(), ErrAlreadyConnected)

	require.Eventually(t, func() bool { return calls.Load() > 10 }, time.Second, time.Millisecond)

	require.NoError(t, sim.Disconnect())
	assert.False(t, sim.Connected())
	stopped := calls.Load()
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load(), "no cycles after Disconnect returns")

	assert.ErrorIs(t, sim.Disconnect(), ErrNotConnected)
	require.NoError(t, sim.Close())
	assert.True(t, errors.Is(sim.Connect(), ErrClosed))
}

func TestSimulatedDisconnectWaitsForInFlightCycle(t *testing.T) {
	sim, err := NewSimulated(SimulatedConfig{Layout: testLayout()})
	require.NoError(t, err)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, sim.Attach(func(int, int, int, []float32, int, []float32) {
		select {
		case entered <- struct{}{}:
			<-release
			finished.Store(true)
		default:
		}
	}))

	require.NoError(t, sim.Connect())
	<-entered

	disconnected := make(chan struct{})
	go func() {
		assert.NoError(t, sim.Disconnect())
		close(disconnected)
	}()

	select {
	case <-disconnected:
		t.Fatal("Disconnect returned while a cycle was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-disconnected
	assert.True(t, finished.Load())
}

func TestSimulatedPaced(t *testing.T) {
	sim, err := NewSimulated(SimulatedConfig{
		Layout: Layout{SampleRate: 48000, BufferFrames: 480, InputChannels: 1, OutputChannels: 1},
		Paced:  true,
	})
	require.NoError(t, err)

	require.NoError(t, sim.Connect())
	time.Sleep(55 * time.Millisecond)
	require.NoError(t, sim.Close())

	// 10ms periods: roughly five cycles, never hundreds
	assert.Less(t, sim.Cycles(), uint64(20))
	assert.Positive(t, sim.Cycles())
}

func TestSineSourceAmplitude(t *testing.T) {
	src := SineSource(1000, 0.25, 48000)
	buf := make([]float32, 480*2)
	src(0, 480, 2, buf)

	var peak float32
	for i := 0; i < len(buf); i += 2 {
		assert.InDelta(t, buf[i], buf[i+1], 0, "channels carry the same signal")
		peak = max(peak, buf[i])
	}
	assert.InDelta(t, 0.25, peak, 0.01)
}
