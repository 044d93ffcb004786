package block

import (
	"fmt"

	"github.com/tilepress/backdrop/table"
)

// MarkRepeat collapses row y into a RowRepeat, declaring it identical
// to the nearest preceding non-repeat row. Callers use this after a
// full-width, opaque, pattern-free block-blit composites row 0: every
// following row in the tile is marked repeat instead of being
// recomposited, the central performance win of the block-blit path.
// The caller is responsible for the row actually being identical;
// MarkRepeat does not verify it (mirroring the source, which trusts
// the "full width opaque no overprint no PCL pattern" precondition its
// caller already established).
func (b *Block) MarkRepeat(y int) {
	b.Rows[y] = Row{Kind: RowRepeat}
}

// RowRuns returns the resolved table and the list of runs making up
// row y, regardless of whether the row is currently Uniform, RLE, Map
// or Repeat. For a Repeat row it walks back to the nearest non-repeat
// row. For Uniform block storage it synthesizes a single run covering
// the whole width against table 0. This is the single primitive used
// by both the reader (C10) and backdrop-to-backdrop composite (C7's
// compositeBackdrop) to pull resolved pixel runs out of a block
// regardless of its current representation.
func (b *Block) RowRuns(y int) ([]RunEntry, *table.Table, error) {
	if b.Storage == Uniform {
		return []RunEntry{{End: b.Width - 1, Slot: 0}}, b.Tables[0], nil
	}
	if y < 0 || y >= len(b.Rows) {
		return nil, nil, fmt.Errorf("block: RowRuns: row %d out of range (height=%d)", y, len(b.Rows))
	}
	row := b.Rows[y]
	if row.Kind == RowRepeat {
		p := y - 1
		for p >= 0 && b.Rows[p].Kind == RowRepeat {
			p--
		}
		if p < 0 {
			return nil, nil, fmt.Errorf("block: RowRuns: row %d is repeat with no anchor", y)
		}
		return b.RowRuns(p)
	}
	tbl := b.Tables[row.Table]
	if row.Kind == RowRLE {
		return row.Runs, tbl, nil
	}
	// RowMap: scan for runs of consecutive equal bytes. This is valid
	// both for a compacted map (duplicates already expunged, so equal
	// bytes always mean the same run) and for an insert-mode map
	// (where the index-equals-run-end invariant guarantees the same).
	var runs []RunEntry
	i := 0
	for i < len(row.Map) {
		v := row.Map[i]
		j := i
		for j < len(row.Map) && row.Map[j] == v {
			j++
		}
		runs = append(runs, RunEntry{End: j - 1, Slot: v})
		i = j
	}
	return runs, tbl, nil
}
