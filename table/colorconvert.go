package table

import (
	"fmt"

	"github.com/tilepress/backdrop/colorval"
)

// ColorConverter is the external color-conversion collaborator
// (cv_colcvt): a batch call taking nUsedSlots worth of per-slot info and
// premultiplied color, returning converted 8-bit or 16-bit output. The
// conversion pipeline itself is out of scope for this package; we only
// define the call shape it must satisfy.
type ColorConverter interface {
	// ConvertTo8 converts n slots worth of colorIn (n*nComps values) to
	// 8-bit output (n*outComps bytes) written into out.
	ConvertTo8(n, nComps, outComps int, info []colorval.Info, colorIn []colorval.Value, out []uint8) error
	// ConvertTo16 is the 16-bit-output counterpart of ConvertTo8.
	ConvertTo16(n, nComps, outComps int, info []colorval.Info, colorIn []colorval.Value, out []uint16) error
}

// ColorConvert converts t's used slots to outVariant (Output8 or
// Output16) with outComps channels via converter, writing into out
// (which is (re)initialised in place; pass t itself to reuse t's own
// backing arrays when the output layout permits it, carrying info
// across without copying).
func (t *Table) ColorConvert(outVariant Variant, outComps int, converter ColorConverter, out *Table) (*Table, error) {
	if outVariant != Output8 && outVariant != Output16 {
		return nil, fmt.Errorf("%w: ColorConvert target must be Output8/Output16, got %s", ErrBadVariant, outVariant)
	}

	dst := out
	if dst == nil {
		dst = &Table{}
	}
	reuse := dst == t
	savedInfo := t.Info
	if !reuse {
		dst.Init(outVariant, outComps, t.NUsedSlots)
		dst.NUsedSlots = t.NUsedSlots
		if t.Variant.hasInfo() {
			copy(dst.Info, t.Info[:t.NUsedSlots])
		}
	}

	in := t.Color[:t.NUsedSlots*t.NComps]
	info := savedInfo[:t.NUsedSlots]

	switch outVariant {
	case Output8:
		buf := make([]uint8, t.NUsedSlots*outComps)
		if err := converter.ConvertTo8(t.NUsedSlots, t.NComps, outComps, info, in, buf); err != nil {
			return nil, fmt.Errorf("table: color convert to 8-bit: %w", err)
		}
		dst.Variant = Output8
		dst.NComps = outComps
		dst.Color8 = buf
		dst.Color = nil
		dst.Alpha = nil
		dst.GroupAlpha = nil
		dst.Shape = nil
	case Output16:
		buf := make([]uint16, t.NUsedSlots*outComps)
		if err := converter.ConvertTo16(t.NUsedSlots, t.NComps, outComps, info, in, buf); err != nil {
			return nil, fmt.Errorf("table: color convert to 16-bit: %w", err)
		}
		dst.Variant = Output16
		dst.NComps = outComps
		dst.Color16 = buf
		dst.Color = nil
		dst.Alpha = nil
		dst.GroupAlpha = nil
		dst.Shape = nil
	}
	if reuse {
		dst.Info = savedInfo[:t.NUsedSlots]
	}
	dst.NMaxSlots = t.NUsedSlots
	if !t.Variant.hasInfo() {
		dst.Info = nil
	}
	return dst, nil
}
