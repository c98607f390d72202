// Package host abstracts the real-time audio engine that drives the bridge.
//
// An Engine owns a real-time thread and calls the single attached
// ProcessFunc once per hardware period with interleaved float32 buffers.
// Two engines are provided: Malgo opens a duplex miniaudio device and
// Simulated drives cycles from a goroutine for tests and the simulate command.
package host

import (
	"sync"

	"github.com/tphakala/rtbridge/internal/errors"
)

// ComponentHost identifies host errors
const ComponentHost = "host"

// Sentinel errors
var (
	ErrAlreadyAttached  = errors.NewStd("process function already attached")
	ErrAlreadyConnected = errors.NewStd("engine already connected")
	ErrNotConnected     = errors.NewStd("engine not connected")
	ErrClosed           = errors.NewStd("engine closed")
	ErrInvalidLayout    = errors.NewStd("invalid buffer layout")
)

// Layout describes the buffers an engine hands to its process function.
type Layout struct {
	SampleRate     int
	BufferFrames   int // frames per callback
	InputChannels  int
	OutputChannels int
}

// Validate checks that the layout describes a usable stream.
func (l Layout) Validate() error {
	switch {
	case l.SampleRate <= 0, l.BufferFrames <= 0,
		l.InputChannels < 0, l.OutputChannels < 0,
		l.InputChannels == 0 && l.OutputChannels == 0:
		return errors.New(ErrInvalidLayout).
			Component(ComponentHost).
			Category(errors.CategoryValidation).
			Context("sample_rate", l.SampleRate).
			Context("buffer_frames", l.BufferFrames).
			Context("input_channels", l.InputChannels).
			Context("output_channels", l.OutputChannels).
			Build()
	}
	return nil
}

// ProcessFunc is invoked on the engine's real-time thread. in holds
// frames*inCh interleaved samples, out holds frames*outCh and must be filled.
// Both slices are only valid for the duration of the call.
type ProcessFunc func(sampleRate, frames, inCh int, in []float32, outCh int, out []float32)

// Module is the part of an engine a buffer adapter registers with.
type Module interface {
	Layout() Layout
	// Attach registers fn. Only one function may be attached at a time.
	Attach(fn ProcessFunc) error
	// Detach removes the attached function and blocks until no invocation
	// is in flight. No invocation starts after it returns.
	Detach()
}

// Engine is a Module with a connection lifecycle.
type Engine interface {
	Module
	// Connect starts real-time callbacks.
	Connect() error
	// Disconnect stops callbacks and returns once the last one has finished.
	Disconnect() error
	// Close releases engine resources, disconnecting first if needed.
	Close() error
}

// slot holds the attached process function. The real-time side takes the
// read lock for the duration of one invocation.
type slot struct {
	mu sync.RWMutex
	fn ProcessFunc
}

func (s *slot) attach(fn ProcessFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fn != nil {
		return errors.New(ErrAlreadyAttached).
			Component(ComponentHost).
			Category(errors.CategoryConflict).
			Build()
	}
	s.fn = fn
	return nil
}

func (s *slot) detach() {
	s.mu.Lock()
	s.fn = nil
	s.mu.Unlock()
}

// invoke runs the attached function or writes silence when none is attached.
func (s *slot) invoke(l *Layout, frames int, in, out []float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fn == nil {
		clear(out)
		return
	}
	s.fn(l.SampleRate, frames, l.InputChannels, in, l.OutputChannels, out)
}
