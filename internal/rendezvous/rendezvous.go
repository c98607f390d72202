// Package rendezvous hands audio buffers between a real-time host thread and
// a managed consumer goroutine in strict lock-step.
//
// Every host cycle the real-time side publishes its buffers as a Window,
// posts the wake signal and blocks on the ready signal. The consumer waits
// for wake, copies input out of the window, copies output into it and posts
// ready. The window is valid only between those two posts.
//
// SignalShutdown lets both sides stop: a blocked consumer returns, a blocked
// real-time cycle returns with silence once any in-progress copy has
// finished, and later cycles return immediately. Release tears the context
// down after the host has stopped calling it.
//
// A Context serves exactly one consumer goroutine. SignalShutdown may be
// called from anywhere.
package rendezvous

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/rtbridge/internal/bsa"
	"github.com/tphakala/rtbridge/internal/errors"
	"github.com/tphakala/rtbridge/internal/host"
	"github.com/tphakala/rtbridge/internal/logger"
)

// State is the lifecycle state of a Context.
type State int32

const (
	StateUnconfigured State = iota
	StateActive
	StateTerminating
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateActive:
		return "active"
	case StateTerminating:
		return "terminating"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Config sizes a rendezvous.
type Config struct {
	HostBufferFrames int // frames per host callback
	UserBufferFrames int // frames per managed-side cycle
	InputChannels    int
	OutputChannels   int
}

func (cfg Config) validate() error {
	if cfg.HostBufferFrames > 0 && cfg.UserBufferFrames > 0 &&
		cfg.InputChannels >= 0 && cfg.OutputChannels >= 0 &&
		cfg.InputChannels+cfg.OutputChannels > 0 {
		return nil
	}
	return errors.New(ErrInvalidConfig).
		Component(ComponentRendezvous).
		Category(errors.CategoryValidation).
		Context("host_buffer_frames", cfg.HostBufferFrames).
		Context("user_buffer_frames", cfg.UserBufferFrames).
		Context("input_channels", cfg.InputChannels).
		Context("output_channels", cfg.OutputChannels).
		Build()
}

// Window is the borrowed view of one cycle's buffers. In and Out alias
// memory owned by the host or the adapter and must not be retained after
// the cycle is handed back.
type Window struct {
	SampleRate     int
	Frames         int
	InputChannels  int
	OutputChannels int
	In             []float32
	Out            []float32
}

// Adapter is the buffer adapter owned by a Context.
type Adapter interface {
	Release() error
}

// AdapterFactory creates the adapter and registers h as its cycle handler.
type AdapterFactory func(module host.Module, cfg bsa.Config, h bsa.Handler) (Adapter, error)

// DefaultAdapterFactory builds a bsa.Adapter.
func DefaultAdapterFactory(module host.Module, cfg bsa.Config, h bsa.Handler) (Adapter, error) {
	a, err := bsa.New(module, cfg, h)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CycleObserver is told how each real-time cycle ended. Methods are called
// on the real-time thread and must not block, allocate or log.
type CycleObserver interface {
	CycleCompleted(wait time.Duration)
	CycleAborted()
	CycleSkipped()
}

type noopObserver struct{}

func (noopObserver) CycleCompleted(time.Duration) {}
func (noopObserver) CycleAborted()                {}
func (noopObserver) CycleSkipped()                {}

type options struct {
	factory  AdapterFactory
	log      logger.Logger
	observer CycleObserver
}

// Option customises Configure.
type Option func(*options)

// WithAdapterFactory replaces the buffer adapter constructor.
func WithAdapterFactory(f AdapterFactory) Option {
	return func(o *options) { o.factory = f }
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithObserver sets the real-time cycle observer.
func WithObserver(obs CycleObserver) Option {
	return func(o *options) { o.observer = obs }
}

// live counts contexts that have been configured and not yet released.
var live atomic.Int64

// Live returns the number of configured, unreleased contexts in the process.
func Live() int64 { return live.Load() }

// Context is one configured rendezvous between a host module and a consumer.
type Context struct {
	id      string
	cfg     Config
	log     logger.Logger
	obs     CycleObserver
	adapter Adapter

	wake  *Semaphore
	ready *Semaphore

	// done is closed by SignalShutdown after terminated is set.
	done         chan struct{}
	shutdownOnce sync.Once
	terminated   atomic.Bool
	state        atomic.Int32

	// window is written by the real-time side before wake is posted and
	// read by the consumer after wake is received.
	window Window
	// armed is set while the consumer holds the current cycle.
	armed atomic.Bool
	// inWindow counts consumer accesses to window in progress.
	inWindow atomic.Int32

	cycles    atomic.Uint64
	releaseMu sync.Mutex
}

// Configure creates a context, builds its buffer adapter on module and
// registers the context as the adapter's cycle handler. On failure nothing
// is left attached and the returned context is nil.
func Configure(cfg Config, module host.Module, opts ...Option) (*Context, error) {
	o := options{factory: DefaultAdapterFactory, observer: noopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Global().Module(ComponentRendezvous)
	}
	if o.observer == nil {
		o.observer = noopObserver{}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Context{
		id:    uuid.NewString(),
		cfg:   cfg,
		obs:   o.observer,
		wake:  NewSemaphore(),
		ready: NewSemaphore(),
		done:  make(chan struct{}),
	}
	c.log = o.log.With(logger.String("context_id", c.id))
	c.state.Store(int32(StateUnconfigured))

	start := time.Now()
	adapter, err := o.factory(module, bsa.Config{
		HostFrames:     cfg.HostBufferFrames,
		UserFrames:     cfg.UserBufferFrames,
		InputChannels:  cfg.InputChannels,
		OutputChannels: cfg.OutputChannels,
	}, c)
	if err == nil && adapter == nil {
		err = errors.NewStd("adapter factory returned nil")
	}
	if err != nil {
		c.log.Warn("buffer adapter construction failed", logger.Error(err))
		return nil, errors.New(fmt.Errorf("%w: %w", ErrAdapterConstruction, err)).
			Component(ComponentRendezvous).
			Category(errors.CategoryConfiguration).
			Context("host_buffer_frames", cfg.HostBufferFrames).
			Context("user_buffer_frames", cfg.UserBufferFrames).
			Timing("create_adapter", time.Since(start)).
			Build()
	}

	c.adapter = adapter
	c.state.Store(int32(StateActive))
	live.Add(1)

	c.log.Debug("rendezvous configured",
		logger.Int("host_buffer_frames", cfg.HostBufferFrames),
		logger.Int("user_buffer_frames", cfg.UserBufferFrames),
		logger.Int("input_channels", cfg.InputChannels),
		logger.Int("output_channels", cfg.OutputChannels))
	return c, nil
}

// ID returns the context's unique identifier.
func (c *Context) ID() string { return c.id }

// Config returns the configuration the context was created with.
func (c *Context) Config() Config { return c.cfg }

// State returns the current lifecycle state.
func (c *Context) State() State { return State(c.state.Load()) }

// Terminated reports whether SignalShutdown has been called.
func (c *Context) Terminated() bool { return c.terminated.Load() }

// Done is closed once SignalShutdown has been called.
func (c *Context) Done() <-chan struct{} { return c.done }

// Cycles returns the number of cycles completed by the consumer.
func (c *Context) Cycles() uint64 { return c.cycles.Load() }
