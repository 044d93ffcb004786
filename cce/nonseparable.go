package cce

import "github.com/tilepress/backdrop/colorval"

// rgbF is an RGB triple in [0,1] used for the non-separable blend
// formulae, which are defined over floating ratios in the PDF 1.4
// spec and only mapped back to fixed point at the end.
type rgbF struct{ r, g, b float64 }

func lum(c rgbF) float64 {
	return 0.3*c.r + 0.59*c.g + 0.11*c.b
}

func clipColor(c rgbF) rgbF {
	l := lum(c)
	n := min(min(c.r, c.g), c.b)
	x := max(max(c.r, c.g), c.b)
	if n < 0 {
		c.r = l + (c.r-l)*l/(l-n)
		c.g = l + (c.g-l)*l/(l-n)
		c.b = l + (c.b-l)*l/(l-n)
	}
	if x > 1 {
		c.r = l + (c.r-l)*(1-l)/(x-l)
		c.g = l + (c.g-l)*(1-l)/(x-l)
		c.b = l + (c.b-l)*(1-l)/(x-l)
	}
	return c
}

func setLum(c rgbF, l float64) rgbF {
	d := l - lum(c)
	c.r += d
	c.g += d
	c.b += d
	return clipColor(c)
}

func sat(c rgbF) float64 {
	return max(max(c.r, c.g), c.b) - min(min(c.r, c.g), c.b)
}

// setSat sets the saturation of c to s while preserving its hue and
// luminosity, per the PDF 1.4 SetSat pseudocode: identify the
// min/mid/max channels by value and redistribute.
func setSat(c rgbF, s float64) rgbF {
	lo, mid, hi := 0, 1, 2
	v := [3]float64{c.r, c.g, c.b}
	idx := [3]int{0, 1, 2}
	// simple 3-element sort by value, tracking original channel index
	if v[idx[lo]] > v[idx[mid]] {
		idx[lo], idx[mid] = idx[mid], idx[lo]
	}
	if v[idx[mid]] > v[idx[hi]] {
		idx[mid], idx[hi] = idx[hi], idx[mid]
	}
	if v[idx[lo]] > v[idx[mid]] {
		idx[lo], idx[mid] = idx[mid], idx[lo]
	}
	out := [3]float64{0, 0, 0}
	if v[idx[hi]] > v[idx[lo]] {
		out[idx[mid]] = (v[idx[mid]] - v[idx[lo]]) * s / (v[idx[hi]] - v[idx[lo]])
		out[idx[hi]] = s
	}
	out[idx[lo]] = 0
	return rgbF{out[0], out[1], out[2]}
}

func toF(v []colorval.Value) rgbF {
	return rgbF{
		float64(v[0]) / float64(colorval.One),
		float64(v[1]) / float64(colorval.One),
		float64(v[2]) / float64(colorval.One),
	}
}

func fromF(c rgbF, out []colorval.Value) {
	out[0] = clampValue(c.r)
	out[1] = clampValue(c.g)
	out[2] = clampValue(c.b)
}

// BlendNonSeparable evaluates Hue/Saturation/Color/Luminosity over an
// RGB triple (cs, cb each length 3). Gray collapses to a copy of the
// source (there is no hue/sat to mix in one channel); CMYK callers
// must convert to RGB before calling and preserve K per the mode's
// rule (Luminosity/Color/Saturation/Hue operate on chroma, K carries
// the backdrop's black unchanged for Luminosity and the source's for
// the others, matching the PDF 1.4 "apply in RGB, substitute into
// CMYK via K unchanged" convention).
func BlendNonSeparable(m BlendMode, cs, cb []colorval.Value, out []colorval.Value) {
	s, b := toF(cs), toF(cb)
	var r rgbF
	switch m {
	case Hue:
		r = setLum(setSat(s, sat(b)), lum(b))
	case Saturation:
		r = setLum(setSat(b, sat(s)), lum(b))
	case Color:
		r = setLum(s, lum(b))
	case Luminosity:
		r = setLum(b, lum(s))
	default:
		r = s
	}
	fromF(r, out)
}
