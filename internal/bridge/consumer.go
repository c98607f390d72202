package bridge

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/rtbridge/internal/dsp"
	"github.com/tphakala/rtbridge/internal/errors"
	"github.com/tphakala/rtbridge/internal/logger"
	"github.com/tphakala/rtbridge/internal/observability/metrics"
)

// Observer sees every input block before processing. Observe runs on the
// consumer goroutine and must not retain buf.
type Observer interface {
	Observe(buf []float32, channels, frames int)
}

// ProcessObserver receives the time spent processing each block.
type ProcessObserver interface {
	ObserveProcess(d time.Duration)
}

// ConsumerConfig sizes the consumer's buffers.
type ConsumerConfig struct {
	Frames         int // user block size
	InputChannels  int
	OutputChannels int
	// ReadTimeout bounds each wait for a cycle. On expiry a warning is
	// logged and the consumer waits again. Zero waits indefinitely.
	ReadTimeout time.Duration
}

// Consumer is the managed side of a bridge. It reads every cycle's input,
// hands it to the observers, remixes it to the output layout, runs the
// processor and writes the result back.
type Consumer struct {
	reg       *Registry
	handle    Handle
	cfg       ConsumerConfig
	processor dsp.Processor
	observers []Observer
	timing    ProcessObserver
	recorder  metrics.Recorder
	log       logger.Logger

	in  []float32
	out []float32

	warnLimiter *rate.Limiter
	suppressed  atomic.Uint64

	blocks     atomic.Uint64
	failures   atomic.Uint64
	timeouts   atomic.Uint64
	lastActive atomic.Int64 // unix nanoseconds of the last completed block
}

// warnEvery limits repeated consumer warnings to one per interval.
const warnEvery = 5 * time.Second

// NewConsumer creates a consumer for handle h. processor may be nil.
func NewConsumer(reg *Registry, h Handle, cfg ConsumerConfig, processor dsp.Processor, observers []Observer, timing ProcessObserver, recorder metrics.Recorder, log logger.Logger) *Consumer {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if log == nil {
		log = GetLogger()
	}
	return &Consumer{
		reg:         reg,
		handle:      h,
		cfg:         cfg,
		processor:   processor,
		observers:   observers,
		timing:      timing,
		recorder:    recorder,
		log:         log,
		in:          make([]float32, cfg.Frames*cfg.InputChannels),
		out:         make([]float32, cfg.Frames*cfg.OutputChannels),
		warnLimiter: rate.NewLimiter(rate.Every(warnEvery), 1),
	}
}

// Run processes cycles until the context of the handle is shut down, in
// which case it returns nil, or until ctx ends or the handle becomes
// invalid, in which case it returns the error.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Debug("consumer started",
		logger.Int("frames", c.cfg.Frames),
		logger.Int("input_channels", c.cfg.InputChannels),
		logger.Int("output_channels", c.cfg.OutputChannels))

	for {
		ok, err := c.read(ctx)
		if err != nil {
			if ctx.Err() == nil && errors.IsCategory(err, errors.CategoryCancellation) {
				c.timeouts.Add(1)
				c.warn("no cycle received within read timeout", logger.Duration("read_timeout", c.cfg.ReadTimeout))
				continue
			}
			return err
		}
		if !ok {
			c.log.Debug("consumer stopped", logger.Uint64("blocks", c.blocks.Load()))
			return nil
		}

		c.process()

		if err := c.reg.WriteOutput(c.handle, c.out); err != nil {
			return err
		}
		c.blocks.Add(1)
		c.lastActive.Store(time.Now().UnixNano())
	}
}

func (c *Consumer) read(ctx context.Context) (bool, error) {
	if c.cfg.ReadTimeout <= 0 {
		return c.reg.ReadInput(ctx, c.handle, c.in)
	}
	readCtx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
	defer cancel()
	return c.reg.ReadInput(readCtx, c.handle, c.in)
}

// process fills c.out from c.in. A processor error silences the block.
func (c *Consumer) process() {
	start := time.Now()
	frames := c.cfg.Frames

	if c.cfg.InputChannels > 0 {
		for _, o := range c.observers {
			o.Observe(c.in, c.cfg.InputChannels, frames)
		}
	}

	if c.cfg.OutputChannels > 0 {
		dsp.Remix(c.in, c.cfg.InputChannels, c.out, c.cfg.OutputChannels, frames)
		if c.processor != nil {
			if err := c.processor.Process(c.out, c.cfg.OutputChannels, frames); err != nil {
				clear(c.out)
				c.failures.Add(1)
				c.recorder.RecordOperation(metrics.OpProcess, metrics.StatusError)
				c.recorder.RecordError(metrics.OpProcess, errorType(err))
				c.warn("processing failed, output silenced", logger.Error(err))
			}
		}
	}

	if c.timing != nil {
		c.timing.ObserveProcess(time.Since(start))
	}
}

// warn logs at most once per warnEvery and reports how many warnings were
// suppressed in between.
func (c *Consumer) warn(msg string, fields ...logger.Field) {
	if !c.warnLimiter.Allow() {
		c.suppressed.Add(1)
		return
	}
	if n := c.suppressed.Swap(0); n > 0 {
		fields = append(fields, logger.Uint64("suppressed", n))
	}
	c.log.Warn(msg, fields...)
}

// Blocks returns the number of blocks written back.
func (c *Consumer) Blocks() uint64 { return c.blocks.Load() }

// Failures returns the number of blocks silenced by a processor error.
func (c *Consumer) Failures() uint64 { return c.failures.Load() }

// Timeouts returns how often a read timed out.
func (c *Consumer) Timeouts() uint64 { return c.timeouts.Load() }

// LastActive returns when the last block was written back, or the zero
// time if none has been.
func (c *Consumer) LastActive() time.Time {
	ns := c.lastActive.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
