package reader

import "github.com/tilepress/backdrop/table"

// fillOutputColor copies slot's color bytes into sp, choosing Color8
// or Color16 by the table's variant. A table that has not yet been
// color-converted (still Isolated/NonIsolated, e.g. mid-region) has
// neither; callers must only read a Reader over Complete blocks, per
// Source's contract.
func fillOutputColor(t *table.Table, slot int, sp *Span) {
	switch t.Variant {
	case table.Output8:
		sp.Color8 = append([]uint8(nil), t.Color8[slot*t.NComps:(slot+1)*t.NComps]...)
	case table.Output16:
		sp.Color16 = append([]uint16(nil), t.Color16[slot*t.NComps:(slot+1)*t.NComps]...)
	}
}
