// Package bridge connects a real-time engine to a managed consumer through
// a rendezvous context.
//
// The Registry is the handle-based boundary for configuring and driving
// contexts. A Bridge owns one engine, one context and the Consumer
// goroutine, and tears them down in the only safe order: shutdown is
// signalled before the engine is disconnected, and the context is released
// only after the engine has stopped and the consumer has returned.
package bridge

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/rtbridge/internal/dsp"
	"github.com/tphakala/rtbridge/internal/errors"
	"github.com/tphakala/rtbridge/internal/host"
	"github.com/tphakala/rtbridge/internal/logger"
	"github.com/tphakala/rtbridge/internal/observability/metrics"
	"github.com/tphakala/rtbridge/internal/rendezvous"
)

// Config describes the managed side of a bridge. Host buffer size and
// sample rate come from the engine layout.
type Config struct {
	UserBufferFrames int
	ReadTimeout      time.Duration
}

// Status is a point-in-time view of a bridge, served on /healthz.
type Status struct {
	ID               string    `json:"id"`
	State            string    `json:"state"`
	SampleRate       int       `json:"sample_rate"`
	HostBufferFrames int       `json:"host_buffer_frames"`
	UserBufferFrames int       `json:"user_buffer_frames"`
	InputChannels    int       `json:"input_channels"`
	OutputChannels   int       `json:"output_channels"`
	LatencyFrames    int       `json:"latency_frames"`
	Cycles           uint64    `json:"cycles"`
	ProcessFailures  uint64    `json:"process_failures"`
	ReadTimeouts     uint64    `json:"read_timeouts"`
	LastActive       time.Time `json:"last_active,omitzero"`
}

type options struct {
	processor dsp.Processor
	observers []Observer
	metrics   *metrics.BridgeMetrics
	registry  *Registry
	log       logger.Logger

	meter         *dsp.LevelMeter
	levelInterval time.Duration
}

// Option customises New.
type Option func(*options)

// WithProcessor sets the processing applied to each block.
func WithProcessor(p dsp.Processor) Option {
	return func(o *options) { o.processor = p }
}

// WithObservers adds input observers. Observers implementing io.Closer are
// closed by Close once the consumer has returned.
func WithObservers(obs ...Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs...) }
}

// WithMetrics reports cycles, processing time and operations to m.
func WithMetrics(m *metrics.BridgeMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLevelMeter observes input with meter and, when interval is positive,
// logs the level and publishes it to metrics every interval.
func WithLevelMeter(meter *dsp.LevelMeter, interval time.Duration) Option {
	return func(o *options) {
		o.meter = meter
		o.levelInterval = interval
		o.observers = append(o.observers, meter)
	}
}

// WithRegistry configures the context in reg instead of a private registry.
func WithRegistry(reg *Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithLogger sets the bridge logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// Bridge runs one engine through one rendezvous context.
type Bridge struct {
	id       string
	engine   host.Engine
	reg      *Registry
	handle   Handle
	ctx      *rendezvous.Context
	consumer *Consumer
	closers  []io.Closer
	metrics  *metrics.BridgeMetrics
	levels   *levelReporter
	log      logger.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	stopped chan struct{}
	runErr  error

	closeOnce sync.Once
	closeErr  error
}

// New configures a rendezvous on engine and prepares the consumer. Nothing
// runs until Start.
func New(engine host.Engine, cfg Config, opts ...Option) (*Bridge, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = GetLogger()
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if o.metrics != nil {
		recorder = o.metrics
	}
	if o.registry == nil {
		o.registry = NewRegistry(recorder)
	}

	layout := engine.Layout()
	rcfg := rendezvous.Config{
		HostBufferFrames: layout.BufferFrames,
		UserBufferFrames: cfg.UserBufferFrames,
		InputChannels:    layout.InputChannels,
		OutputChannels:   layout.OutputChannels,
	}

	// The context ID is only known after Configure, so cycle metrics are
	// bound through a forwarding observer.
	fwd := &forwardObserver{}
	h, err := o.registry.Configure(engine, rcfg,
		rendezvous.WithLogger(o.log.Module(rendezvous.ComponentRendezvous)),
		rendezvous.WithObserver(fwd))
	if err != nil {
		return nil, err
	}
	rctx, err := o.registry.Context(h)
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		id:      rctx.ID(),
		engine:  engine,
		reg:     o.registry,
		handle:  h,
		ctx:     rctx,
		metrics: o.metrics,
		log:     o.log.With(logger.String("bridge_id", rctx.ID())),
		stopped: make(chan struct{}),
	}

	var timing ProcessObserver
	var collectors *metrics.BridgeCollectors
	if o.metrics != nil {
		collectors = o.metrics.Bridge(b.id)
		fwd.set(collectors)
		timing = collectors
	}
	if o.meter != nil && o.levelInterval > 0 {
		b.levels = &levelReporter{meter: o.meter, interval: o.levelInterval, collectors: collectors, log: b.log}
	}

	for _, obs := range o.observers {
		if c, ok := obs.(io.Closer); ok {
			b.closers = append(b.closers, c)
		}
	}

	b.consumer = NewConsumer(o.registry, h, ConsumerConfig{
		Frames:         cfg.UserBufferFrames,
		InputChannels:  layout.InputChannels,
		OutputChannels: layout.OutputChannels,
		ReadTimeout:    cfg.ReadTimeout,
	}, o.processor, o.observers, timing, recorder, b.log)

	b.log.Info("bridge configured",
		logger.Int("sample_rate", layout.SampleRate),
		logger.Int("host_buffer_frames", layout.BufferFrames),
		logger.Int("user_buffer_frames", cfg.UserBufferFrames),
		logger.Int("latency_frames", b.latency()))
	return b, nil
}

// ID returns the bridge identifier, the ID of its rendezvous context.
func (b *Bridge) ID() string { return b.id }

// Handle returns the registry handle of the bridge's context.
func (b *Bridge) Handle() Handle { return b.handle }

// Start launches the consumer and connects the engine. The bridge stops
// when ctx ends, when the consumer fails or when Close is called.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.closed:
		return errors.New(ErrClosed).Component(ComponentBridge).Category(errors.CategoryState).Build()
	case b.started:
		return errors.New(ErrAlreadyStarted).Component(ComponentBridge).Category(errors.CategoryState).Build()
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		// A consumer that has returned stops the rest of the group.
		defer cancel()
		err := b.consumer.Run(gctx)
		if err != nil && gctx.Err() != nil {
			// Cancelled from outside; not a consumer fault.
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		// Releases a real-time cycle blocked on the consumer.
		b.ctx.SignalShutdown()
		return nil
	})
	if b.levels != nil {
		g.Go(func() error {
			b.levels.run(gctx)
			return nil
		})
	}

	b.cancel = cancel
	b.started = true
	go func() {
		b.runErr = g.Wait()
		close(b.stopped)
	}()

	if err := b.engine.Connect(); err != nil {
		cancel()
		<-b.stopped
		b.started = false
		b.closed = true
		return errors.New(err).
			Component(ComponentBridge).
			Category(errors.CategoryAudioDevice).
			Priority(errors.PriorityHigh).
			Context("bridge_id", b.id).
			Context("operation", "connect_engine").
			Build()
	}

	b.log.Info("bridge started")
	return nil
}

// Done is closed once the consumer has returned, either because the bridge
// was shut down or because it failed. Err then reports the failure.
func (b *Bridge) Done() <-chan struct{} { return b.stopped }

// Err returns the consumer error once Done is closed.
func (b *Bridge) Err() error {
	select {
	case <-b.stopped:
		return b.runErr
	default:
		return nil
	}
}

// Close stops the bridge: it signals shutdown, disconnects the engine,
// waits for the consumer, closes observers, releases the context and
// closes the engine. It is idempotent and returns the first call's result.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.close()
	})
	return b.closeErr
}

func (b *Bridge) close() error {
	start := time.Now()
	b.mu.Lock()
	started := b.started
	b.closed = true
	b.mu.Unlock()

	var errs []error

	// A cycle blocked on ready returns silence once shutdown is signalled,
	// so disconnecting cannot hang on it.
	if err := b.reg.SignalShutdown(b.handle); err != nil {
		errs = append(errs, err)
	}

	if started {
		if err := b.engine.Disconnect(); err != nil && !errors.Is(err, host.ErrNotConnected) {
			errs = append(errs, err)
		}
		b.cancel()
		<-b.stopped
		if b.runErr != nil {
			errs = append(errs, b.runErr)
		}
	}

	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := b.reg.Release(b.handle); err != nil {
		errs = append(errs, err)
	}
	if err := b.engine.Close(); err != nil {
		errs = append(errs, err)
	}
	if b.metrics != nil {
		b.metrics.Forget(b.id)
	}

	b.log.Info("bridge closed",
		logger.Uint64("cycles", b.consumer.Blocks()),
		logger.Duration("duration", time.Since(start)))

	if err := errors.Join(errs...); err != nil {
		return errors.New(err).
			Component(ComponentBridge).
			Category(errors.CategoryResource).
			Context("bridge_id", b.id).
			Context("operation", "close").
			Build()
	}
	return nil
}

// Status returns a snapshot of the bridge.
func (b *Bridge) Status() Status {
	layout := b.engine.Layout()
	cfg := b.ctx.Config()
	return Status{
		ID:               b.id,
		State:            b.ctx.State().String(),
		SampleRate:       layout.SampleRate,
		HostBufferFrames: cfg.HostBufferFrames,
		UserBufferFrames: cfg.UserBufferFrames,
		InputChannels:    cfg.InputChannels,
		OutputChannels:   cfg.OutputChannels,
		LatencyFrames:    b.latency(),
		Cycles:           b.ctx.Cycles(),
		ProcessFailures:  b.consumer.Failures(),
		ReadTimeouts:     b.consumer.Timeouts(),
		LastActive:       b.consumer.LastActive(),
	}
}

// latency mirrors the adapter: reblocking delays output by one user block.
func (b *Bridge) latency() int {
	cfg := b.ctx.Config()
	if cfg.HostBufferFrames == cfg.UserBufferFrames {
		return 0
	}
	return cfg.UserBufferFrames
}

// forwardObserver lets cycle metrics be bound after the context exists.
// set is called before the engine is connected, so the real-time side
// never races with it.
type forwardObserver struct {
	target rendezvous.CycleObserver
}

func (f *forwardObserver) set(o rendezvous.CycleObserver) { f.target = o }

func (f *forwardObserver) CycleCompleted(wait time.Duration) {
	if f.target != nil {
		f.target.CycleCompleted(wait)
	}
}

func (f *forwardObserver) CycleAborted() {
	if f.target != nil {
		f.target.CycleAborted()
	}
}

func (f *forwardObserver) CycleSkipped() {
	if f.target != nil {
		f.target.CycleSkipped()
	}
}
