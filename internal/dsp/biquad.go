package dsp

import (
	"math"

	"github.com/tphakala/rtbridge/internal/conf"
	"github.com/tphakala/rtbridge/internal/errors"
)

// FilterKind selects a biquad response from the RBJ audio EQ cookbook.
type FilterKind int

const (
	Undefined FilterKind = iota
	LowPass
	HighPass
	BandPass
	Notch
	Peaking
	LowShelf
	HighShelf
)

func (k FilterKind) String() string {
	switch k {
	case LowPass:
		return "LowPass"
	case HighPass:
		return "HighPass"
	case BandPass:
		return "BandPass"
	case Notch:
		return "Notch"
	case Peaking:
		return "Peaking"
	case LowShelf:
		return "LowShelf"
	case HighShelf:
		return "HighShelf"
	default:
		return "Undefined"
	}
}

// ParseFilterKind maps a configuration name such as "HighPass" to its kind.
func ParseFilterKind(name string) (FilterKind, error) {
	for k := LowPass; k <= HighShelf; k++ {
		if k.String() == name {
			return k, nil
		}
	}
	return Undefined, errors.New(ErrInvalidFilter).
		Component(ComponentDSP).
		Category(errors.CategoryValidation).
		Context("type", name).
		Build()
}

// FilterParams describes one biquad.
type FilterParams struct {
	Kind       FilterKind
	SampleRate float64
	Frequency  float64 // cutoff or centre frequency in Hz
	Q          float64
	GainDB     float64 // Peaking and shelves only
	Passes     int     // cascaded sections, each adds 12 dB/octave
}

// coefficients are normalised by a0.
type coefficients struct {
	b0, b1, b2, a1, a2 float64
}

func design(p FilterParams) coefficients {
	w0 := 2 * math.Pi * p.Frequency / p.SampleRate
	cos, sin := math.Cos(w0), math.Sin(w0)
	alpha := sin / (2 * p.Q)
	a := math.Pow(10, p.GainDB/40)

	var b0, b1, b2, a0, a1, a2 float64
	switch p.Kind {
	case LowPass:
		b0, b1, b2 = (1-cos)/2, 1-cos, (1-cos)/2
		a0, a1, a2 = 1+alpha, -2*cos, 1-alpha
	case HighPass:
		b0, b1, b2 = (1+cos)/2, -(1 + cos), (1+cos)/2
		a0, a1, a2 = 1+alpha, -2*cos, 1-alpha
	case BandPass:
		b0, b1, b2 = alpha, 0, -alpha
		a0, a1, a2 = 1+alpha, -2*cos, 1-alpha
	case Notch:
		b0, b1, b2 = 1, -2*cos, 1
		a0, a1, a2 = 1+alpha, -2*cos, 1-alpha
	case Peaking:
		b0, b1, b2 = 1+alpha*a, -2*cos, 1-alpha*a
		a0, a1, a2 = 1+alpha/a, -2*cos, 1-alpha/a
	case LowShelf:
		beta := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) - (a-1)*cos + beta)
		b1 = 2 * a * ((a - 1) - (a+1)*cos)
		b2 = a * ((a + 1) - (a-1)*cos - beta)
		a0 = (a + 1) + (a-1)*cos + beta
		a1 = -2 * ((a - 1) + (a+1)*cos)
		a2 = (a + 1) + (a-1)*cos - beta
	case HighShelf:
		beta := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) + (a-1)*cos + beta)
		b1 = -2 * a * ((a - 1) + (a+1)*cos)
		b2 = a * ((a + 1) + (a-1)*cos - beta)
		a0 = (a + 1) - (a-1)*cos + beta
		a1 = 2 * ((a - 1) - (a+1)*cos)
		a2 = (a + 1) - (a-1)*cos - beta
	}
	return coefficients{b0 / a0, b1 / a0, b2 / a0, a1 / a0, a2 / a0}
}

// section state for one channel and pass
type section struct {
	x1, x2, y1, y2 float64
}

// Biquad is a cascaded second order filter with independent state per channel.
type Biquad struct {
	params   FilterParams
	coef     coefficients
	channels int
	state    []section // channel-major, Passes sections per channel
}

// NewBiquad designs a filter for the given number of interleaved channels.
func NewBiquad(p FilterParams, channels int) (*Biquad, error) {
	if p.Passes == 0 {
		p.Passes = 1
	}
	nyquist := p.SampleRate / 2
	if p.Kind <= Undefined || p.Kind > HighShelf ||
		p.SampleRate <= 0 || p.Frequency <= 0 || p.Frequency >= nyquist ||
		p.Q <= 0 || p.Passes < 1 || channels < 1 {
		return nil, errors.New(ErrInvalidFilter).
			Component(ComponentDSP).
			Category(errors.CategoryValidation).
			Context("type", p.Kind.String()).
			Context("sample_rate", p.SampleRate).
			Context("frequency", p.Frequency).
			Context("q", p.Q).
			Context("passes", p.Passes).
			Context("channels", channels).
			Build()
	}
	return &Biquad{
		params:   p,
		coef:     design(p),
		channels: channels,
		state:    make([]section, channels*p.Passes),
	}, nil
}

// Params returns the filter parameters.
func (b *Biquad) Params() FilterParams { return b.params }

// Reset clears the filter history.
func (b *Biquad) Reset() { clear(b.state) }

// Process implements Processor.
func (b *Biquad) Process(buf []float32, channels, frames int) error {
	if channels != b.channels {
		return errors.New(ErrChannelMismatch).
			Component(ComponentDSP).
			Category(errors.CategoryAudio).
			Context("filter_channels", b.channels).
			Context("channels", channels).
			Build()
	}
	c := b.coef
	passes := b.params.Passes
	for ch := range channels {
		for p := range passes {
			s := &b.state[ch*passes+p]
			for f := range frames {
				i := f*channels + ch
				x := float64(buf[i])
				y := c.b0*x + c.b1*s.x1 + c.b2*s.x2 - c.a1*s.y1 - c.a2*s.y2
				s.x2, s.x1 = s.x1, x
				s.y2, s.y1 = s.y1, y
				buf[i] = float32(y)
			}
		}
	}
	return nil
}

// NewEqualizer builds a chain of biquads from equalizer settings. Configured
// passes are extra sections on top of the first one.
func NewEqualizer(settings conf.EqualizerSettings, sampleRate, channels int) (*Chain, error) {
	chain := NewChain()
	if !settings.Enabled {
		return chain, nil
	}
	for i, f := range settings.Filters {
		kind, err := ParseFilterKind(f.Type)
		if err != nil {
			return nil, err
		}
		bq, err := NewBiquad(FilterParams{
			Kind:       kind,
			SampleRate: float64(sampleRate),
			Frequency:  f.Frequency,
			Q:          f.Q,
			GainDB:     f.Gain,
			Passes:     1 + f.Passes,
		}, channels)
		if err != nil {
			return nil, errors.New(err).
				Component(ComponentDSP).
				Context("filter_index", i).
				Build()
		}
		chain.Add(bq)
	}
	return chain, nil
}
