package dsp

// Remix copies frames of interleaved audio from in (inCh channels) to out
// (outCh channels).
//
//   - equal counts copy straight through
//   - mono input is fanned out to every output channel
//   - mono output is the average of all input channels
//   - otherwise channel i takes input channel i, extra outputs are silent
//   - no input channels gives silence
func Remix(in []float32, inCh int, out []float32, outCh, frames int) {
	if outCh <= 0 {
		return
	}
	out = out[:frames*outCh]

	switch {
	case inCh <= 0:
		clear(out)
	case inCh == outCh:
		copy(out, in[:frames*inCh])
	case inCh == 1:
		for f := range frames {
			v := in[f]
			row := out[f*outCh : (f+1)*outCh]
			for c := range row {
				row[c] = v
			}
		}
	case outCh == 1:
		scale := 1 / float32(inCh)
		for f := range frames {
			var sum float32
			for _, v := range in[f*inCh : (f+1)*inCh] {
				sum += v
			}
			out[f] = sum * scale
		}
	default:
		shared := min(inCh, outCh)
		for f := range frames {
			src := in[f*inCh : (f+1)*inCh]
			dst := out[f*outCh : (f+1)*outCh]
			copy(dst, src[:shared])
			clear(dst[shared:])
		}
	}
}
