package table

import "github.com/tilepress/backdrop/colorval"

// ColorAt returns slot's premultiplied color channels (nil for
// variants with no color, e.g. Alpha). The returned slice aliases the
// table's backing array; callers must copy before mutating the table.
func (t *Table) ColorAt(slot int) []colorval.Value {
	if !t.Variant.hasColor() || t.Variant == Output8 || t.Variant == Output16 {
		return nil
	}
	return t.colorSlice(slot)
}

// AlphaAt returns slot's alpha, or 0 if the variant carries none.
func (t *Table) AlphaAt(slot int) colorval.Value {
	if !t.Variant.hasAlpha() {
		return 0
	}
	return t.Alpha[slot]
}

// GroupAlphaAt returns slot's group alpha, or 0 if the variant carries
// none.
func (t *Table) GroupAlphaAt(slot int) colorval.Value {
	if !t.Variant.hasGroupAlpha() {
		return 0
	}
	return t.GroupAlpha[slot]
}

// ShapeAt returns slot's shape value, or colorval.One (fully covered)
// if the variant carries no shape field.
func (t *Table) ShapeAt(slot int) colorval.Value {
	if !t.Variant.hasShape() {
		return colorval.One
	}
	return t.Shape[slot]
}

// InfoAt returns slot's info, or the zero value if the variant
// carries none (Alpha tables).
func (t *Table) InfoAt(slot int) colorval.Info {
	if !t.Variant.hasInfo() {
		return colorval.Info{}
	}
	return t.Info[slot]
}
