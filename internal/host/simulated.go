package host

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/rtbridge/internal/errors"
)

// Source fills buf (frames*channels interleaved samples) with input for a cycle.
type Source func(cycle uint64, frames, channels int, buf []float32)

// Sink observes the output produced in a cycle. buf is only valid during the call.
type Sink func(cycle uint64, frames, channels int, buf []float32)

// SimulatedConfig configures a Simulated engine.
type SimulatedConfig struct {
	Layout Layout
	// Paced runs one cycle per buffer period of wall clock time. When false
	// cycles run back to back.
	Paced  bool
	Source Source // nil produces silence
	Sink   Sink   // nil discards output
}

// Simulated is an Engine whose real-time thread is a goroutine locked to its
// OS thread. It is deterministic enough for tests and needs no audio hardware.
type Simulated struct {
	cfg  SimulatedConfig
	slot slot
	in   []float32
	out  []float32

	mu        sync.Mutex
	stop      chan struct{}
	done      chan struct{}
	closed    bool
	connected atomic.Bool
	cycles    atomic.Uint64
}

// NewSimulated creates a simulated engine. Buffers are allocated once here.
func NewSimulated(cfg SimulatedConfig) (*Simulated, error) {
	if err := cfg.Layout.Validate(); err != nil {
		return nil, err
	}
	return &Simulated{
		cfg: cfg,
		in:  make([]float32, cfg.Layout.BufferFrames*cfg.Layout.InputChannels),
		out: make([]float32, cfg.Layout.BufferFrames*cfg.Layout.OutputChannels),
	}, nil
}

// Layout returns the engine's buffer layout.
func (s *Simulated) Layout() Layout { return s.cfg.Layout }

// Attach registers the process function.
func (s *Simulated) Attach(fn ProcessFunc) error { return s.slot.attach(fn) }

// Detach removes the process function once no cycle is running.
func (s *Simulated) Detach() { s.slot.detach() }

// Cycles returns the number of completed cycles.
func (s *Simulated) Cycles() uint64 { return s.cycles.Load() }

// Connected reports whether the driver goroutine is running.
func (s *Simulated) Connected() bool { return s.connected.Load() }

// Connect starts the driver goroutine.
func (s *Simulated) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return errors.New(ErrClosed).Component(ComponentHost).Category(errors.CategoryState).Build()
	case s.connected.Load():
		return errors.New(ErrAlreadyConnected).Component(ComponentHost).Category(errors.CategoryState).Build()
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.connected.Store(true)
	go s.drive(s.stop, s.done)
	return nil
}

// Disconnect stops the driver and waits for the in-flight cycle to return.
func (s *Simulated) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected.Load() {
		return errors.New(ErrNotConnected).Component(ComponentHost).Category(errors.CategoryState).Build()
	}
	close(s.stop)
	<-s.done
	s.connected.Store(false)
	return nil
}

// Close disconnects if needed. Further Connect calls fail.
func (s *Simulated) Close() error {
	if s.connected.Load() {
		if err := s.Disconnect(); err != nil && !errors.Is(err, ErrNotConnected) {
			return err
		}
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Step runs one cycle synchronously on the calling goroutine. It must not
// be used while the engine is connected.
func (s *Simulated) Step() error {
	if s.connected.Load() {
		return errors.New(ErrAlreadyConnected).
			Component(ComponentHost).
			Category(errors.CategoryState).
			Context("operation", "step").
			Build()
	}
	s.cycle()
	return nil
}

func (s *Simulated) drive(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var tick <-chan time.Time
	if s.cfg.Paced {
		period := time.Duration(s.cfg.Layout.BufferFrames) * time.Second / time.Duration(s.cfg.Layout.SampleRate)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-stop:
				return
			case <-tick:
			}
		} else {
			select {
			case <-stop:
				return
			default:
			}
		}
		s.cycle()
	}
}

func (s *Simulated) cycle() {
	n := s.cycles.Load()
	l := &s.cfg.Layout

	if s.cfg.Source != nil {
		s.cfg.Source(n, l.BufferFrames, l.InputChannels, s.in)
	} else {
		clear(s.in)
	}
	clear(s.out)

	s.slot.invoke(l, l.BufferFrames, s.in, s.out)

	if s.cfg.Sink != nil {
		s.cfg.Sink(n, l.BufferFrames, l.OutputChannels, s.out)
	}
	s.cycles.Add(1)
}

// SineSource returns a Source generating the same sine wave on every channel.
func SineSource(frequency, amplitude float64, sampleRate int) Source {
	var phase float64
	step := 2 * math.Pi * frequency / float64(sampleRate)
	return func(_ uint64, frames, channels int, buf []float32) {
		for f := range frames {
			v := float32(amplitude * math.Sin(phase))
			for c := range channels {
				buf[f*channels+c] = v
			}
			phase += step
			if phase >= 2*math.Pi {
				phase -= 2 * math.Pi
			}
		}
	}
}

// RampSource returns a Source whose samples count up from zero across cycles,
// so every sample value identifies its position in the stream.
func RampSource() Source {
	var next float32
	return func(_ uint64, frames, channels int, buf []float32) {
		for i := range frames * channels {
			buf[i] = next
			next++
		}
	}
}
