package cce

import "github.com/tilepress/backdrop/colorval"

// Compose evaluates the PDF 1.4 group compositing formula for one
// channel, given the blend function's result (already evaluated on
// demultiplied source/backdrop), and the source/backdrop premultiplied
// color and alpha:
//
//	result = (1-sa)*bdPremult + (1-ba)*srcPremult + sa*ba*blend
//
// Alphas combine separately via CombineAlpha. Callers premultiply
// blendResult by nothing -- Compose does the sa*ba scaling itself.
func Compose(srcPremult, bdPremult, blendResult colorval.Value, sa, ba colorval.Value) colorval.Value {
	term1 := colorval.Premultiply(bdPremult, colorval.One-sa)
	term2 := colorval.Premultiply(srcPremult, colorval.One-ba)
	term3 := blendResult.Mul(sa).Mul(ba)
	return term1 + term2 + term3
}

// ComposeVector applies Compose channel-wise.
func ComposeVector(srcPremult, bdPremult, blendResult []colorval.Value, sa, ba colorval.Value, out []colorval.Value) {
	for i := range out {
		out[i] = Compose(srcPremult[i], bdPremult[i], blendResult[i], sa, ba)
	}
}

// CombineAlpha computes the PDF 1.4 alpha union: sa + ba - sa*ba.
func CombineAlpha(sa, ba colorval.Value) colorval.Value {
	return sa + ba - sa.Mul(ba)
}

// RemoveBackdropContribution implements cceRemoveBackdropContribution:
// a non-isolated group's source sample was computed against the
// group's backdrop, so before blending against the *true* background
// the backdrop's own prior contribution must be backed out per
// channel:
//
//	adjusted = clamp(src + (src - bd) * ba0 * (1/sa0 - 1))
//
// where sa0/ba0 are the *group's initial* source alpha and backdrop
// alpha. When sa0 is zero the source is unaffected (there is nothing
// to remove).
func RemoveBackdropContribution(nComps int, src, bd []colorval.Value, sa0, ba0 colorval.Value, out []colorval.Value) {
	if sa0 == 0 {
		copy(out, src[:nComps])
		return
	}
	factor := float64(ba0) / float64(colorval.One) * (float64(colorval.One)/float64(sa0) - 1)
	for i := 0; i < nComps; i++ {
		d := float64(src[i]) - float64(bd[i])
		v := float64(src[i]) + d*factor
		out[i] = clampValue(v / float64(colorval.One))
	}
}

// WeightedAverage implements cceWeightedAverage, the shape-aware blend
// between a composited result and the immediate background: the
// fraction shape of the pixel is "drawn", the remainder passes the
// background through unchanged.
func WeightedAverage(nComps int, result, background []colorval.Value, shape colorval.Value, out []colorval.Value) {
	for i := 0; i < nComps; i++ {
		out[i] = colorval.Premultiply(result[i], shape) + colorval.Premultiply(background[i], colorval.One-shape)
	}
}

// Premultiply scales every channel of color by alpha/One.
func Premultiply(nComps int, color []colorval.Value, alpha colorval.Value, out []colorval.Value) {
	for i := 0; i < nComps; i++ {
		out[i] = colorval.Premultiply(color[i], alpha)
	}
}

// Demultiply unpremultiplies every channel of color by alpha/One;
// division by zero yields zero, matching colorval.Divide.
func Demultiply(nComps int, color []colorval.Value, alpha colorval.Value, out []colorval.Value) {
	for i := 0; i < nComps; i++ {
		out[i] = colorval.Divide(color[i], alpha)
	}
}
