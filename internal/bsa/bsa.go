// Package bsa implements the buffer size adapter: it sits between a host
// module that calls back with host-sized buffers and a handler that wants
// fixed user-sized blocks.
//
// When the sizes are equal the handler sees the host buffers directly.
// Otherwise input is accumulated in a FIFO, every complete user block is
// handed to the handler, and output is served from a second FIFO that is
// primed with one user block of silence. The priming makes the output FIFO
// hold enough frames for every host read, at a latency of UserFrames.
package bsa

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/rtbridge/internal/errors"
	"github.com/tphakala/rtbridge/internal/host"
)

// ComponentBSA identifies adapter errors
const ComponentBSA = "bsa"

const sampleBytes = int(unsafe.Sizeof(float32(0)))

// ErrInvalidConfig is returned by New for unusable sizes or a layout mismatch.
var ErrInvalidConfig = errors.NewStd("invalid buffer adapter configuration")

// Config sizes the adapter.
type Config struct {
	HostFrames     int // maximum frames per host callback
	UserFrames     int // frames per handler block
	InputChannels  int
	OutputChannels int
}

// Handler receives user-sized blocks on the host's real-time thread.
type Handler interface {
	ProcessCycle(sampleRate, frames, inCh int, in []float32, outCh int, out []float32)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(sampleRate, frames, inCh int, in []float32, outCh int, out []float32)

// ProcessCycle calls f.
func (f HandlerFunc) ProcessCycle(sampleRate, frames, inCh int, in []float32, outCh int, out []float32) {
	f(sampleRate, frames, inCh, in, outCh, out)
}

// Adapter reblocks host buffers into user blocks.
type Adapter struct {
	cfg         Config
	module      host.Module
	handler     Handler
	passThrough bool

	// reblocking state, touched only on the real-time thread
	inRing   *ringbuffer.RingBuffer
	outRing  *ringbuffer.RingBuffer
	inFrames int
	userIn   []float32
	userOut  []float32
	userInB  []byte
	userOutB []byte

	blocks     atomic.Uint64
	mismatches atomic.Uint64
	release    sync.Once
}

// New validates cfg against the module layout, allocates every buffer and
// attaches the adapter to the module. The handler may be called as soon as
// New returns if the module is already connected.
func New(module host.Module, cfg Config, handler Handler) (*Adapter, error) {
	if module == nil || handler == nil {
		return nil, invalid(cfg, "module and handler are required").Build()
	}
	if cfg.HostFrames <= 0 || cfg.UserFrames <= 0 {
		return nil, invalid(cfg, "buffer sizes must be positive").Build()
	}
	if cfg.InputChannels < 0 || cfg.OutputChannels < 0 || cfg.InputChannels+cfg.OutputChannels == 0 {
		return nil, invalid(cfg, "at least one channel is required").Build()
	}
	layout := module.Layout()
	if layout.BufferFrames != cfg.HostFrames ||
		layout.InputChannels != cfg.InputChannels ||
		layout.OutputChannels != cfg.OutputChannels {
		return nil, invalid(cfg, "configuration does not match host layout").
			Context("host_buffer_frames", layout.BufferFrames).
			Context("host_input_channels", layout.InputChannels).
			Context("host_output_channels", layout.OutputChannels).
			Build()
	}

	a := &Adapter{
		cfg:         cfg,
		module:      module,
		handler:     handler,
		passThrough: cfg.HostFrames == cfg.UserFrames,
	}
	if !a.passThrough {
		a.allocate()
	}

	if err := module.Attach(a.process); err != nil {
		return nil, errors.New(err).
			Component(ComponentBSA).
			Category(errors.CategoryConfiguration).
			Context("operation", "attach").
			Build()
	}
	return a, nil
}

func invalid(cfg Config, reason string) *errors.ErrorBuilder {
	return errors.New(ErrInvalidConfig).
		Component(ComponentBSA).
		Category(errors.CategoryConfiguration).
		Context("reason", reason).
		Context("host_frames", cfg.HostFrames).
		Context("user_frames", cfg.UserFrames).
		Context("input_channels", cfg.InputChannels).
		Context("output_channels", cfg.OutputChannels)
}

func (a *Adapter) allocate() {
	h, u := a.cfg.HostFrames, a.cfg.UserFrames
	inCh, outCh := a.cfg.InputChannels, a.cfg.OutputChannels

	// The input FIFO holds at most U-1 leftover frames plus one host buffer.
	a.inRing = ringbuffer.New(max((u+h)*inCh*sampleBytes, sampleBytes))
	// The output FIFO holds the priming block, at most U-1 frames of
	// remainder and the blocks produced from one host buffer.
	a.outRing = ringbuffer.New(max((2*u+h)*outCh*sampleBytes, sampleBytes))

	a.userIn = make([]float32, u*inCh)
	a.userOut = make([]float32, u*outCh)
	a.userInB = asBytes(a.userIn)
	a.userOutB = asBytes(a.userOut)

	if outCh > 0 {
		clear(a.userOut)
		_, _ = a.outRing.Write(a.userOutB)
	}
}

// Release detaches the adapter from its module. Once it returns the handler
// is never called again. Safe to call more than once.
func (a *Adapter) Release() error {
	a.release.Do(a.module.Detach)
	return nil
}

// Config returns the adapter configuration.
func (a *Adapter) Config() Config { return a.cfg }

// Latency is the delay in frames between host input and host output.
func (a *Adapter) Latency() int {
	if a.passThrough {
		return 0
	}
	return a.cfg.UserFrames
}

// Blocks returns how many user blocks the handler has processed.
func (a *Adapter) Blocks() uint64 { return a.blocks.Load() }

// Mismatches counts host callbacks rejected for an unexpected shape. Their
// output was silence.
func (a *Adapter) Mismatches() uint64 { return a.mismatches.Load() }

// process is the host.ProcessFunc. It runs on the real-time thread.
func (a *Adapter) process(sampleRate, frames, inCh int, in []float32, outCh int, out []float32) {
	cfg := &a.cfg
	if inCh != cfg.InputChannels || outCh != cfg.OutputChannels ||
		frames <= 0 || frames > cfg.HostFrames ||
		len(in) < frames*inCh || len(out) < frames*outCh {
		clear(out)
		a.mismatches.Add(1)
		return
	}
	in = in[:frames*inCh]
	out = out[:frames*outCh]

	if a.passThrough {
		if frames != cfg.UserFrames {
			clear(out)
			a.mismatches.Add(1)
			return
		}
		a.handler.ProcessCycle(sampleRate, frames, inCh, in, outCh, out)
		a.blocks.Add(1)
		return
	}

	if inCh > 0 {
		_, _ = a.inRing.Write(asBytes(in))
	}
	a.inFrames += frames

	for a.inFrames >= cfg.UserFrames {
		if inCh > 0 {
			_, _ = a.inRing.Read(a.userInB)
		}
		clear(a.userOut)
		a.handler.ProcessCycle(sampleRate, cfg.UserFrames, inCh, a.userIn, outCh, a.userOut)
		a.blocks.Add(1)
		a.inFrames -= cfg.UserFrames
		if outCh > 0 {
			_, _ = a.outRing.Write(a.userOutB)
		}
	}

	if outCh > 0 {
		_, _ = a.outRing.Read(asBytes(out))
	}
}

// asBytes views a float32 slice as bytes without copying.
func asBytes(f []float32) []byte {
	if len(f) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&f[0])), len(f)*sampleBytes)
}
