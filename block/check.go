package block

import "fmt"

// Check verifies the structural invariants of a completed block:
// table slot bounds, row-encoding shape, and absence of duplicate
// entries within any table. It is run at the end of Complete when
// debugAssertions is enabled and is otherwise unused in release
// builds, mirroring bd_blockCheck.
func (b *Block) Check() error {
	if !b.Flags.Complete {
		return fmt.Errorf("block: Check called before Complete")
	}
	for i, t := range b.Tables {
		if t.NUsedSlots > t.NMaxSlots || t.NMaxSlots > 256 {
			return fmt.Errorf("table %d: nUsedSlots=%d nMaxSlots=%d violates bound", i, t.NUsedSlots, t.NMaxSlots)
		}
		for a := 0; a < t.NUsedSlots; a++ {
			for c := a + 1; c < t.NUsedSlots; c++ {
				if t.EqualEntry(a, t, c) {
					return fmt.Errorf("table %d: slots %d and %d are duplicates after complete", i, a, c)
				}
			}
		}
	}

	if b.Storage == Uniform {
		if len(b.Tables) != 1 || b.Tables[0].NUsedSlots != 1 {
			return fmt.Errorf("uniform block must have exactly one table with one used slot")
		}
		return nil
	}

	for y, row := range b.Rows {
		switch row.Kind {
		case RowRepeat:
			if row.Map != nil || row.Runs != nil {
				return fmt.Errorf("row %d: repeat row carries data", y)
			}
		case RowRLE:
			if len(row.Runs) == 0 {
				return fmt.Errorf("row %d: RLE row has no runs", y)
			}
			total := 0
			prevEnd := -1
			for _, r := range row.Runs {
				if r.End <= prevEnd {
					return fmt.Errorf("row %d: run ends not strictly increasing", y)
				}
				total += r.End - prevEnd
				prevEnd = r.End
			}
			if total != b.Width {
				return fmt.Errorf("row %d: RLE runs sum to %d, want width %d", y, total, b.Width)
			}
			if row.Table < 0 || row.Table >= len(b.Tables) {
				return fmt.Errorf("row %d: table index %d out of range", y, row.Table)
			}
		case RowMap:
			if len(row.Map) != b.Width {
				return fmt.Errorf("row %d: map length %d, want width %d", y, len(row.Map), b.Width)
			}
			if row.Table < 0 || row.Table >= len(b.Tables) {
				return fmt.Errorf("row %d: table index %d out of range", y, row.Table)
			}
		}
	}
	return nil
}
