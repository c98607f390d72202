// Package recorder captures the stream the bridge consumer sees to a WAV
// file. The consumer only copies each block into a preallocated slot; a
// writer goroutine does the encoding and file I/O.
package recorder

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/rtbridge/internal/errors"
	"github.com/tphakala/rtbridge/internal/logger"
)

// ComponentRecorder identifies recorder errors
const ComponentRecorder = "recorder"

// ErrInvalidConfig is returned by New for unusable settings.
var ErrInvalidConfig = errors.NewStd("invalid recorder configuration")

// Counter is incremented for every dropped block. prometheus.Counter fits.
type Counter interface {
	Inc()
}

// Config describes the recording.
type Config struct {
	Path        string
	SampleRate  int
	Channels    int
	BitDepth    int // 16, 24 or 32
	BlockFrames int // largest block Observe will be given
	QueueBlocks int // blocks buffered between consumer and writer
}

type block struct {
	samples []float32
	ints    []int
	frames  int
}

// WAV writes observed blocks to a PCM WAV file.
type WAV struct {
	cfg  Config
	log  logger.Logger
	file *os.File
	enc  *wav.Encoder

	free  chan *block
	queue chan *block

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	drops   Counter
	dropped atomic.Uint64
	frames  atomic.Uint64
	err     error // first write error, read after done
}

// New creates the file, writes the header and starts the writer goroutine.
// drops may be nil.
func New(cfg Config, log logger.Logger, drops Counter) (*WAV, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Global().Module(ComponentRecorder)
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fileError(err, cfg.Path, "create_directory")
		}
	}
	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fileError(err, cfg.Path, "create_file")
	}

	w := &WAV{
		cfg:   cfg,
		log:   log.With(logger.String("path", cfg.Path)),
		file:  f,
		enc:   wav.NewEncoder(f, cfg.SampleRate, cfg.BitDepth, cfg.Channels, 1),
		free:  make(chan *block, cfg.QueueBlocks),
		queue: make(chan *block, cfg.QueueBlocks),
		done:  make(chan struct{}),
		drops: drops,
	}
	n := cfg.BlockFrames * cfg.Channels
	for range cfg.QueueBlocks {
		w.free <- &block{samples: make([]float32, n), ints: make([]int, n)}
	}

	go w.run()

	w.log.Info("recording started",
		logger.Int("sample_rate", cfg.SampleRate),
		logger.Int("channels", cfg.Channels),
		logger.Int("bit_depth", cfg.BitDepth))
	return w, nil
}

func (cfg Config) validate() error {
	switch {
	case cfg.Path == "",
		cfg.SampleRate <= 0,
		cfg.Channels <= 0,
		cfg.BlockFrames <= 0,
		cfg.QueueBlocks <= 0,
		cfg.BitDepth != 16 && cfg.BitDepth != 24 && cfg.BitDepth != 32:
		return errors.New(ErrInvalidConfig).
			Component(ComponentRecorder).
			Category(errors.CategoryValidation).
			Context("path", cfg.Path).
			Context("sample_rate", cfg.SampleRate).
			Context("channels", cfg.Channels).
			Context("bit_depth", cfg.BitDepth).
			Context("block_frames", cfg.BlockFrames).
			Context("queue_blocks", cfg.QueueBlocks).
			Build()
	}
	return nil
}

func fileError(err error, path, operation string) error {
	return errors.New(err).
		Component(ComponentRecorder).
		Category(errors.CategoryFileIO).
		Context("path", path).
		Context("operation", operation).
		Build()
}

// Observe queues a copy of one interleaved block. It never blocks: when the
// writer has fallen behind, or the block does not fit the recording, the
// block is dropped and counted.
func (w *WAV) Observe(buf []float32, channels, frames int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	if channels != w.cfg.Channels || frames > w.cfg.BlockFrames || len(buf) < channels*frames {
		w.drop()
		return
	}

	var b *block
	select {
	case b = <-w.free:
	default:
		w.drop()
		return
	}
	b.frames = frames
	copy(b.samples, buf[:channels*frames])
	w.queue <- b // cannot block, queue and free share one set of blocks
}

func (w *WAV) drop() {
	w.dropped.Add(1)
	if w.drops != nil {
		w.drops.Inc()
	}
}

func (w *WAV) run() {
	defer close(w.done)

	scale := float64(int64(1)<<(w.cfg.BitDepth-1) - 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{SampleRate: w.cfg.SampleRate, NumChannels: w.cfg.Channels},
		SourceBitDepth: w.cfg.BitDepth,
	}

	for b := range w.queue {
		if w.err == nil {
			n := b.frames * w.cfg.Channels
			for i, s := range b.samples[:n] {
				b.ints[i] = int(float64(min(max(s, -1), 1)) * scale)
			}
			buf.Data = b.ints[:n]
			if err := w.enc.Write(buf); err != nil {
				w.err = fileError(err, w.cfg.Path, "write_samples")
				w.log.Error("recording write failed, further blocks are discarded", logger.Error(err))
			} else {
				w.frames.Add(uint64(b.frames))
			}
		}
		w.free <- b
	}
}

// Dropped returns the number of blocks that were not recorded.
func (w *WAV) Dropped() uint64 { return w.dropped.Load() }

// Frames returns the number of frames written so far.
func (w *WAV) Frames() uint64 { return w.frames.Load() }

// Path returns the output file path.
func (w *WAV) Path() string { return w.cfg.Path }

// Close stops accepting blocks, writes what is queued, finalises the header
// and closes the file. It returns the first write error, if any.
func (w *WAV) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	<-w.done

	var errs []error
	if w.err != nil {
		errs = append(errs, w.err)
	}
	if err := w.enc.Close(); err != nil {
		errs = append(errs, fileError(err, w.cfg.Path, "finalize_header"))
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, fileError(err, w.cfg.Path, "close_file"))
	}

	w.log.Info("recording finished",
		logger.Uint64("frames", w.frames.Load()),
		logger.Uint64("dropped_blocks", w.dropped.Load()))
	return errors.Join(errs...)
}
