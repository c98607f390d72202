package dsp

import (
	"math"
	"sync/atomic"
)

// MaxGain is the largest linear gain a Gain stage accepts.
const MaxGain = 4.0

// clipKnee is where the soft clipper starts bending the signal.
const clipKnee = 0.8

// Gain scales samples by a linear factor and soft clips the result into
// [-1, 1]. The factor can be changed while the bridge runs.
type Gain struct {
	bits atomic.Uint32
}

// NewGain returns a Gain stage. The factor is clamped to [0, MaxGain].
func NewGain(factor float64) *Gain {
	g := &Gain{}
	g.Set(factor)
	return g
}

// Set changes the gain factor, clamped to [0, MaxGain].
func (g *Gain) Set(factor float64) {
	if math.IsNaN(factor) {
		factor = 1
	}
	factor = min(max(factor, 0), MaxGain)
	g.bits.Store(math.Float32bits(float32(factor)))
}

// Factor returns the current gain factor.
func (g *Gain) Factor() float64 {
	return float64(math.Float32frombits(g.bits.Load()))
}

// Process implements Processor.
func (g *Gain) Process(buf []float32, channels, frames int) error {
	k := math.Float32frombits(g.bits.Load())
	for i := range buf[:channels*frames] {
		buf[i] = softClip(buf[i] * k)
	}
	return nil
}

// softClip is the identity below the knee and approaches ±1 smoothly above it.
func softClip(x float32) float32 {
	a := x
	if a < 0 {
		a = -a
	}
	if a <= clipKnee {
		return x
	}
	const span = 1 - clipKnee
	y := float32(clipKnee + span*math.Tanh(float64((a-clipKnee)/span)))
	if x < 0 {
		return -y
	}
	return y
}
