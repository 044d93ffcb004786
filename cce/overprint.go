package cce

import "github.com/tilepress/backdrop/colorval"

// ChannelState flags a channel's overprint participation for a single
// composite: Present means the source paints it, Missing means the
// channel passes the backdrop through unpainted (classic overprint),
// and MaxBlit means the channel takes the darker of source/backdrop
// regardless of the active blend mode (used by the "compatible
// overprint" simulation of separations).
type ChannelState int

const (
	Present ChannelState = iota
	Missing
	MaxBlit
)

// CompatibleOverprint evaluates the "compatible overprint" composite:
// channels flagged Missing are left at the backdrop value (as if the
// source did not paint them at all); MaxBlit channels take the darker
// (lower colorval.Value, since 0 is no ink / white convention is
// irrelevant here -- darker means closer to full ink, i.e. the larger
// raw channel value in additive color or the smaller in subtractive;
// callers pass already-oriented "ink amount" values so "darker" is
// simply the larger value) of source/backdrop; Present channels take
// the normal blend result.
func CompatibleOverprint(nComps int, states []ChannelState, blended, src, bd []colorval.Value, out []colorval.Value) {
	for i := 0; i < nComps; i++ {
		switch states[i] {
		case Missing:
			out[i] = bd[i]
		case MaxBlit:
			if src[i] > bd[i] {
				out[i] = src[i]
			} else {
				out[i] = bd[i]
			}
		default:
			out[i] = blended[i]
		}
	}
}

// OpaqueOverprint evaluates the "opaque overprint" composite used
// when the source is fully opaque: Missing channels still pass the
// backdrop through (overprint survives opacity), everything else is
// replaced outright by the source (no blend mixing, since alpha is 1
// and Normal-over-opaque degenerates to a plain copy).
func OpaqueOverprint(nComps int, states []ChannelState, src, bd []colorval.Value, out []colorval.Value) {
	for i := 0; i < nComps; i++ {
		if states[i] == Missing {
			out[i] = bd[i]
		} else {
			out[i] = src[i]
		}
	}
}
