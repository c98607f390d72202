// Package app wires settings into a running bridge: engine, processing
// chain, input recording, level metering and the telemetry endpoint. The
// CLI commands are thin wrappers around Run.
package app

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/tphakala/rtbridge/internal/bridge"
	"github.com/tphakala/rtbridge/internal/conf"
	"github.com/tphakala/rtbridge/internal/diagnostics"
	"github.com/tphakala/rtbridge/internal/dsp"
	"github.com/tphakala/rtbridge/internal/host"
	"github.com/tphakala/rtbridge/internal/logger"
	"github.com/tphakala/rtbridge/internal/observability"
	"github.com/tphakala/rtbridge/internal/recorder"
)

const componentApp = "app"

// Summary describes a finished run.
type Summary struct {
	BridgeID        string
	Duration        time.Duration
	Cycles          uint64
	ProcessFailures uint64
	InputLevel      dsp.Level
	RecordingPath   string
	RecordedFrames  uint64
	RecorderDropped uint64
	// DebugFile is set when the bridge stopped on an error and a
	// diagnostics snapshot was written.
	DebugFile string
}

// Fields returns the summary as log fields.
func (s *Summary) Fields() []logger.Field {
	fields := []logger.Field{
		logger.String("bridge_id", s.BridgeID),
		logger.Duration("duration", s.Duration),
		logger.Uint64("cycles", s.Cycles),
		logger.Uint64("process_failures", s.ProcessFailures),
		logger.Float64("input_rms_dbfs", s.InputLevel.RMS),
		logger.Float64("input_peak_dbfs", s.InputLevel.Peak),
	}
	if s.RecordingPath != "" {
		fields = append(fields,
			logger.String("recording", s.RecordingPath),
			logger.Uint64("recorded_frames", s.RecordedFrames),
			logger.Uint64("recorder_dropped", s.RecorderDropped))
	}
	return fields
}

// Run bridges engine until ctx ends or the consumer fails, then tears
// everything down. Run takes ownership of engine and closes it.
func Run(ctx context.Context, settings *conf.Settings, engine host.Engine) (*Summary, error) {
	log := logger.Global().Module(componentApp)
	start := time.Now()

	opts := []bridge.Option{bridge.WithLogger(logger.Global().Module("bridge"))}

	var m *observability.Metrics
	if settings.Telemetry.Enabled {
		var err error
		if m, err = observability.NewMetrics(); err != nil {
			_ = engine.Close()
			return nil, err
		}
		opts = append(opts, bridge.WithMetrics(m.Bridge))
	}

	chain, err := BuildProcessor(settings)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	if chain != nil {
		opts = append(opts, bridge.WithProcessor(chain))
	}

	meter := dsp.NewLevelMeter()
	interval := time.Duration(0)
	if settings.Processing.Level.Enabled {
		interval = settings.Processing.Level.Interval
	}
	opts = append(opts, bridge.WithLevelMeter(meter, interval))

	layout := engine.Layout()
	var wav *recorder.WAV
	if settings.Recording.Enabled {
		if layout.InputChannels == 0 {
			log.Warn("recording enabled but the bridge has no input channels, not recording")
		} else {
			var drops recorder.Counter
			if m != nil {
				drops = m.Bridge.RecorderDropped()
			}
			wav, err = recorder.New(recorder.Config{
				Path:        settings.Recording.Path,
				SampleRate:  layout.SampleRate,
				Channels:    layout.InputChannels,
				BitDepth:    settings.Recording.BitDepth,
				BlockFrames: settings.Bridge.UserBufferFrames,
				QueueBlocks: settings.Recording.QueueBlocks,
			}, logger.Global().Module(recorder.ComponentRecorder), drops)
			if err != nil {
				_ = engine.Close()
				return nil, err
			}
			opts = append(opts, bridge.WithObservers(wav))
		}
	}

	b, err := bridge.New(engine, bridge.Config{
		UserBufferFrames: settings.Bridge.UserBufferFrames,
		ReadTimeout:      settings.Bridge.ReadTimeout,
	}, opts...)
	if err != nil {
		_ = engine.Close()
		if wav != nil {
			_ = wav.Close()
		}
		return nil, err
	}

	var wg sync.WaitGroup
	quit := make(chan struct{})
	if m != nil {
		ep, err := observability.NewEndpoint(settings, m, func() any { return b.Status() })
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		if err := ep.Start(&wg, quit); err != nil {
			_ = b.Close()
			return nil, err
		}
		log.Info("telemetry endpoint listening", logger.String("address", ep.Addr()))
	}
	defer func() {
		close(quit)
		wg.Wait()
	}()

	if err := b.Start(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}

	select {
	case <-ctx.Done():
		log.Info("stopping bridge")
	case <-b.Done():
		// Consumer stopped on its own.
	}
	runErr := b.Err()
	closeErr := b.Close()

	status := b.Status()
	summary := &Summary{
		BridgeID:        b.ID(),
		Duration:        time.Since(start),
		Cycles:          status.Cycles,
		ProcessFailures: status.ProcessFailures,
		InputLevel:      meter.Current(),
	}
	if wav != nil {
		summary.RecordingPath = wav.Path()
		summary.RecordedFrames = wav.Frames()
		summary.RecorderDropped = wav.Dropped()
	}

	if runErr != nil {
		snap := diagnostics.Capture(context.Background(), 0)
		if path, err := diagnostics.WriteDebugFile(debugDir(settings), runErr.Error(), &snap); err != nil {
			log.Warn("could not write debug file", logger.Error(err))
		} else {
			summary.DebugFile = path
			log.Error("bridge stopped on error", logger.Error(runErr), logger.String("debug_file", path))
		}
	}
	// closeErr includes the consumer error.
	return summary, closeErr
}

// debugDir is where debug files go: next to the log file.
func debugDir(settings *conf.Settings) string {
	if fo := settings.Logging.FileOutput; fo != nil && fo.Path != "" {
		return filepath.Dir(fo.Path)
	}
	return filepath.Dir(logger.DefaultLogPath)
}
