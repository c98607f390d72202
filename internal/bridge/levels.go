package bridge

import (
	"context"
	"time"

	"github.com/tphakala/rtbridge/internal/dsp"
	"github.com/tphakala/rtbridge/internal/logger"
	"github.com/tphakala/rtbridge/internal/observability/metrics"
)

// levelReporter periodically logs the input level and publishes it to
// metrics. collectors may be nil.
type levelReporter struct {
	meter      *dsp.LevelMeter
	interval   time.Duration
	collectors *metrics.BridgeCollectors
	log        logger.Logger
}

func (r *levelReporter) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *levelReporter) report() {
	if r.meter.Blocks() == 0 {
		return
	}
	level := r.meter.Current()
	peak, clipped := r.meter.TakeHold()

	if r.collectors != nil {
		r.collectors.SetLevel(level.RMS, peak)
	}

	fields := []logger.Field{
		logger.Float64("rms_dbfs", level.RMS),
		logger.Float64("peak_dbfs", peak),
	}
	if clipped {
		r.log.Warn("input clipped", fields...)
		return
	}
	r.log.Info("input level", fields...)
}
