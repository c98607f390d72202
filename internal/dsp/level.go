package dsp

import (
	"math"
	"sync/atomic"
)

// MinDBFS is reported for silence.
const MinDBFS = -120.0

// Level is a measurement in dBFS.
type Level struct {
	RMS     float64
	Peak    float64
	Clipped bool // a sample reached full scale
}

// LevelMeter measures blocks on the consumer goroutine and can be read from
// any goroutine.
type LevelMeter struct {
	rms     atomic.Uint64 // float64 bits, linear
	peak    atomic.Uint64 // float64 bits, linear
	hold    atomic.Uint64 // float64 bits, linear peak since the last TakeHold
	clipped atomic.Bool
	blocks  atomic.Uint64
}

// NewLevelMeter returns a meter reading silence.
func NewLevelMeter() *LevelMeter {
	return &LevelMeter{}
}

// Observe measures one interleaved block.
func (m *LevelMeter) Observe(buf []float32, channels, frames int) {
	n := channels * frames
	if n <= 0 {
		return
	}
	var sum, peak float64
	clipped := false
	for _, s := range buf[:n] {
		v := math.Abs(float64(s))
		sum += v * v
		if v > peak {
			peak = v
		}
		if v >= 1 {
			clipped = true
		}
	}
	m.rms.Store(math.Float64bits(math.Sqrt(sum / float64(n))))
	m.peak.Store(math.Float64bits(peak))
	if clipped {
		m.clipped.Store(true)
	}
	for {
		old := m.hold.Load()
		if peak <= math.Float64frombits(old) || m.hold.CompareAndSwap(old, math.Float64bits(peak)) {
			break
		}
	}
	m.blocks.Add(1)
}

// Current returns the level of the most recent block and whether any block
// has clipped since the last TakeHold.
func (m *LevelMeter) Current() Level {
	return Level{
		RMS:     ToDBFS(math.Float64frombits(m.rms.Load())),
		Peak:    ToDBFS(math.Float64frombits(m.peak.Load())),
		Clipped: m.clipped.Load(),
	}
}

// TakeHold returns the highest peak and the clip flag since the previous
// call and resets both.
func (m *LevelMeter) TakeHold() (peakDBFS float64, clipped bool) {
	peak := math.Float64frombits(m.hold.Swap(0))
	return ToDBFS(peak), m.clipped.Swap(false)
}

// Blocks returns the number of blocks observed.
func (m *LevelMeter) Blocks() uint64 { return m.blocks.Load() }

// ToDBFS converts a linear amplitude to dBFS, floored at MinDBFS.
func ToDBFS(linear float64) float64 {
	if linear <= 0 {
		return MinDBFS
	}
	return max(20*math.Log10(linear), MinDBFS)
}
