package cce

import "github.com/tilepress/backdrop/colorval"

// ROPFunc evaluates one of the 256 PCL raster operations over a
// single bit of source, texture and destination.
type ROPFunc func(s, t, d bool) bool

// ropTable is populated once at init from each code's Boolean
// minterm-selection semantics: code bit i (0..7) gives the output for
// input (s,t,d) whose 3-bit index is s<<2|t<<1|d. This matches the
// PCL definition of a ROP3 code as a truth table indexed by its
// operand bits.
var ropTable [256]ROPFunc

func init() {
	for code := 0; code < 256; code++ {
		code := code
		ropTable[code] = func(s, t, d bool) bool {
			idx := 0
			if s {
				idx |= 4
			}
			if t {
				idx |= 2
			}
			if d {
				idx |= 1
			}
			return code&(1<<uint(idx)) != 0
		}
	}
}

// ROP evaluates PCL raster operation code over one bit of source,
// texture and destination, per rop(S,T,D,code).
func ROP(s, t, d bool, code uint8) bool {
	return ropTable[code](s, t, d)
}

// ROPWord evaluates code bit-for-bit over 32-bit packed source,
// texture and destination words (RGB or CMYK components packed into
// a word, per the spec's "pack components into 32-bit words and
// evaluate the 256-variant truth table" description).
func ROPWord(s, t, d uint32, code uint8) uint32 {
	var out uint32
	for bit := uint32(0); bit < 32; bit++ {
		mask := uint32(1) << bit
		sb := s&mask != 0
		tb := t&mask != 0
		db := d&mask != 0
		if ROP(sb, tb, db, code) {
			out |= mask
		}
	}
	return out
}

// Standard ROP3 codes used by the PCL pattern/texture path.
const (
	ROPThrough    uint8 = 0xFC // D = S or T
	ROPCopyPen    uint8 = 0xF0 // D = S
	ROPBlackness  uint8 = 0x00
	ROPWhiteness  uint8 = 0xFF
	ROPDSo        uint8 = 0xEE // D = T or D under ROP's s<<2|t<<1|d indexing
	ROPDSa        uint8 = 0x88 // D = T and D under ROP's s<<2|t<<1|d indexing
	ROPDSx        uint8 = 0x66 // D = T xor D under ROP's s<<2|t<<1|d indexing
	ROPNotD       uint8 = 0x55
	ROPMergePaint uint8 = 0xBB
)

// MaxBlitWord selects, per byte lane, the larger (darker, by the
// convention documented on CompatibleOverprint) of s and d -- the PCL
// "max-blit" rule. Per design note (c), this treats source alpha < 1
// as if it were opaque after the ROP is evaluated; the PCL spec does
// not document this case, so the behavior here matches only the
// observed reference implementation, not a confirmed specification.
func MaxBlitWord(s, d uint32) uint32 {
	var out uint32
	for shift := uint(0); shift < 32; shift += 8 {
		sb, db := (s>>shift)&0xFF, (d>>shift)&0xFF
		if sb > db {
			out |= sb << shift
		} else {
			out |= db << shift
		}
	}
	return out
}

// TransparentSource reports whether a ROP composite should be
// short-circuited because the source (or an active PCL pattern) is
// the TRANSPARENT pseudo-color, which by PCL convention contributes
// nothing and leaves the destination (here represented as "white",
// i.e. no ink) untouched.
func TransparentSource(white bool) bool {
	return white
}

// PackComponents packs up to 4 color components into a 32-bit word,
// one byte per component in channel order, per the spec's "pack
// source/texture/destination components into 32-bit RGB or CMYK
// words". Each component contributes its high byte, discarding the
// low 8 bits of precision the way a ROP truth table operates on
// device-resolution (8-bit) samples.
func PackComponents(nComps int, v []colorval.Value) uint32 {
	var w uint32
	for i := 0; i < nComps && i < 4; i++ {
		w |= uint32(v[i]>>8) << uint(8*(nComps-1-i))
	}
	return w
}

// UnpackComponents is PackComponents' inverse, expanding each packed
// byte back to a 16-bit colorval.Value by replicating it into both
// bytes.
func UnpackComponents(nComps int, word uint32, out []colorval.Value) {
	for i := 0; i < nComps && i < 4; i++ {
		b := uint8(word >> uint(8*(nComps-1-i)))
		out[i] = colorval.Value(b)<<8 | colorval.Value(b)
	}
}

// IsWhiteWord reports whether a packed word represents the PCL
// TRANSPARENT pseudo-color for the given color space: all channels at
// full intensity (0xFF) for Gray/RGB, or all channels at zero ink for
// CMYK.
func IsWhiteWord(cs ColorSpace, nComps int, word uint32) bool {
	var want uint8
	if cs != CMYK {
		want = 0xFF
	}
	for i := 0; i < nComps && i < 4; i++ {
		b := uint8(word >> uint(8*(nComps-1-i)))
		if b != want {
			return false
		}
	}
	return true
}
