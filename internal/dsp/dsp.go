// Package dsp holds the processing stages the bridge consumer applies to each
// user block: channel remixing, gain, RBJ cookbook biquad filters and a level
// meter. All stages work in place on interleaved float32 buffers and do not
// allocate once constructed.
package dsp

import (
	"github.com/tphakala/rtbridge/internal/errors"
)

// ComponentDSP identifies processing errors
const ComponentDSP = "dsp"

// Sentinel errors
var (
	ErrInvalidFilter   = errors.NewStd("invalid filter parameters")
	ErrChannelMismatch = errors.NewStd("buffer does not match channel layout")
)

// Processor transforms one interleaved block in place.
type Processor interface {
	Process(buf []float32, channels, frames int) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(buf []float32, channels, frames int) error

// Process calls f.
func (f ProcessorFunc) Process(buf []float32, channels, frames int) error {
	return f(buf, channels, frames)
}

// Chain runs processors in order, stopping at the first error.
type Chain struct {
	processors []Processor
}

// NewChain returns a chain of the given processors. Nil entries are skipped.
func NewChain(processors ...Processor) *Chain {
	c := &Chain{}
	for _, p := range processors {
		c.Add(p)
	}
	return c
}

// Add appends p to the chain.
func (c *Chain) Add(p Processor) {
	if p != nil {
		c.processors = append(c.processors, p)
	}
}

// Len returns the number of processors.
func (c *Chain) Len() int { return len(c.processors) }

// Process implements Processor.
func (c *Chain) Process(buf []float32, channels, frames int) error {
	if len(buf) < channels*frames {
		return errors.New(ErrChannelMismatch).
			Component(ComponentDSP).
			Category(errors.CategoryAudio).
			Context("channels", channels).
			Context("frames", frames).
			Context("buffer_len", len(buf)).
			Build()
	}
	for i, p := range c.processors {
		if err := p.Process(buf, channels, frames); err != nil {
			return errors.New(err).
				Component(ComponentDSP).
				Category(errors.CategoryAudio).
				Context("stage", i).
				Build()
		}
	}
	return nil
}
