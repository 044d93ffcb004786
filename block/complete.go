package block

import (
	"fmt"

	"github.com/tilepress/backdrop/colorval"
	"github.com/tilepress/backdrop/table"
)

// debugAssertions gates the structural invariant checks run at the end
// of Complete; it mirrors the source's debug-build-only bd_blockCheck.
const debugAssertions = true

// CompleteOptions configures the one-shot compact/merge/color-convert
// closure run once per block when a region finishes compositing into
// it.
type CompleteOptions struct {
	// CompositeToPage, when set, composites every slot against
	// PageColor at alpha 1 instead of dividing out alpha.
	CompositeToPage bool
	PageColor       []colorval.Value

	Converter  table.ColorConverter
	OutVariant table.Variant
	OutComps   int

	// LateColor, if set, is applied to each table after
	// composite-to-page/divide-alpha and before the soft-mask
	// transfer (open question (b): late-color is applied before
	// transfer).
	LateColor func(*table.Table)
	Transfer  table.SoftMaskTransfer
}

// Complete runs the block-closure sequence: uniform detection, per-row
// compaction, duplicate expunge, table merge, and color conversion. It
// is idempotent once Flags.Complete is set.
func (b *Block) Complete(opts CompleteOptions) error {
	if b.Flags.Complete {
		return nil
	}

	if ok, slot, tblIdx := b.detectUniform(); ok {
		t := b.Tables[tblIdx]
		nt := &table.Table{}
		nt.Init(b.Variant, b.NComps, 1)
		if err := t.CopyEntry(slot, nt, 0); err != nil {
			return fmt.Errorf("block: uniform promote: %w", err)
		}
		nt.NUsedSlots = 1
		b.Storage = Uniform
		b.Tables = []*table.Table{nt}
		b.Rows = nil
		if err := b.finishColorConvert(opts); err != nil {
			return err
		}
		b.Flags.Complete = true
		return b.checkIfAsserting()
	}

	for y := range b.Rows {
		row := &b.Rows[y]
		if row.Kind == RowRepeat {
			continue
		}
		compactRow(b.Width, row, b.Tables[row.Table])
	}

	remaps := make([][]int, len(b.Tables))
	for i := range b.Tables {
		remaps[i] = expungeDuplicates(b.Tables[i])
	}
	for y := range b.Rows {
		row := &b.Rows[y]
		if row.Kind == RowRepeat {
			continue
		}
		applyRemap(row, remaps[row.Table])
	}

	b.mergeAdjacentTables()
	b.compactTables()

	if err := b.finishColorConvert(opts); err != nil {
		return err
	}

	b.Flags.Complete = true
	return b.checkIfAsserting()
}

func (b *Block) checkIfAsserting() error {
	if !debugAssertions {
		return nil
	}
	if err := b.Check(); err != nil {
		return fmt.Errorf("block: check failed after complete: %w", err)
	}
	return nil
}

// detectUniform reports whether every row reduces to the same single
// table entry, stored (by the index-equals-run-end convention) at
// slot width-1.
func (b *Block) detectUniform() (ok bool, slot, tblIdx int) {
	w := b.Width
	row0 := b.Rows[0]
	if row0.Kind != RowMap || !isUniformRun(row0.Map, w) {
		return false, 0, 0
	}
	tbl0 := b.Tables[row0.Table]
	for y := 1; y < b.Height; y++ {
		r := b.Rows[y]
		if r.Kind == RowRepeat {
			continue
		}
		if r.Kind != RowMap || !isUniformRun(r.Map, w) {
			return false, 0, 0
		}
		tbl := b.Tables[r.Table]
		if !tbl.EqualEntry(w-1, tbl0, w-1) {
			return false, 0, 0
		}
	}
	return true, w - 1, row0.Table
}

func isUniformRun(m []uint8, width int) bool {
	end := uint8(width - 1)
	for _, v := range m {
		if v != end {
			return false
		}
	}
	return true
}

// compactRow chooses between RLE and map encoding for a non-repeat
// row, merging adjacent runs whose table entries compare equal.
func compactRow(width int, row *Row, tbl *table.Table) {
	if row.Kind != RowMap {
		return
	}
	m := row.Map
	var merged []RunEntry
	i := 0
	for i < width {
		end := int(m[i])
		if end < i || end >= width {
			end = width - 1
		}
		slot := uint8(end)
		if n := len(merged); n > 0 && tbl.EqualEntry(int(merged[n-1].Slot), tbl, int(slot)) {
			merged[n-1].End = end
		} else {
			merged = append(merged, RunEntry{End: end, Slot: slot})
		}
		i = end + 1
	}
	if len(merged) <= width/2 {
		row.Kind = RowRLE
		row.Runs = merged
		row.Map = nil
	}
}

// expungeDuplicates walks t's used slots with a hash probe, reindexing
// duplicate entries onto a single canonical slot and compacting t in
// place. It returns a remap from every original slot index to its new
// (post-compaction) index.
func expungeDuplicates(t *table.Table) []int {
	n := t.NUsedSlots
	buckets := uint32(table.DefaultHashBuckets)
	bucketSlots := make(map[uint32][]int, n)
	canon := make([]int, n)
	for s := 0; s < n; s++ {
		h := t.HashVal(s, buckets)
		found := -1
		for _, c := range bucketSlots[h] {
			if t.EqualEntry(s, t, c) {
				found = c
				break
			}
		}
		if found < 0 {
			found = s
			bucketSlots[h] = append(bucketSlots[h], s)
		}
		canon[s] = found
	}

	newIdx := make([]int, n)
	for i := range newIdx {
		newIdx[i] = -1
	}
	count := 0
	for s := 0; s < n; s++ {
		c := canon[s]
		if newIdx[c] == -1 {
			newIdx[c] = count
			if count != c {
				t.CopyEntry(c, t, count)
			}
			count++
		}
	}
	t.NUsedSlots = count

	remap := make([]int, n)
	for s := 0; s < n; s++ {
		remap[s] = newIdx[canon[s]]
	}
	return remap
}

func applyRemap(row *Row, remap []int) {
	switch row.Kind {
	case RowMap:
		for i, v := range row.Map {
			row.Map[i] = uint8(remap[v])
		}
	case RowRLE:
		for i := range row.Runs {
			row.Runs[i].Slot = uint8(remap[row.Runs[i].Slot])
		}
	}
}

// mergeTableInto attempts to fold every used slot of other into cur,
// reusing an existing equal entry where one exists and appending
// otherwise. It mutates cur only if the merge fits within cur's
// capacity; on failure cur is left untouched.
func mergeTableInto(cur, other *table.Table) ([]int, bool) {
	slotMap := make([]int, other.NUsedSlots)
	matched := make([]int, other.NUsedSlots)
	extra := 0
	for s := 0; s < other.NUsedSlots; s++ {
		found := -1
		for c := 0; c < cur.NUsedSlots; c++ {
			if cur.EqualEntry(c, other, s) {
				found = c
				break
			}
		}
		matched[s] = found
		if found < 0 {
			extra++
		}
	}
	if cur.NUsedSlots+extra > cur.NMaxSlots {
		return nil, false
	}
	next := cur.NUsedSlots
	for s := 0; s < other.NUsedSlots; s++ {
		if matched[s] >= 0 {
			slotMap[s] = matched[s]
			continue
		}
		other.CopyEntry(s, cur, next)
		slotMap[s] = next
		next++
	}
	cur.NUsedSlots = next
	return slotMap, true
}

// mergeAdjacentTables walks rows in order, greedily folding each row's
// table into the previous row's table when it fits, and never
// backtracking once a merge fails.
func (b *Block) mergeAdjacentTables() {
	if len(b.Tables) <= 1 {
		return
	}
	redirect := make([]int, len(b.Tables))
	for i := range redirect {
		redirect[i] = i
	}
	cur := -1
	for y := range b.Rows {
		row := &b.Rows[y]
		if row.Kind == RowRepeat {
			continue
		}
		rt := redirect[row.Table]
		if cur == -1 {
			cur = rt
			row.Table = cur
			continue
		}
		if rt == cur {
			row.Table = cur
			continue
		}
		if sm, ok := mergeTableInto(b.Tables[cur], b.Tables[rt]); ok {
			redirect[rt] = cur
			applyRemap(row, sm)
			row.Table = cur
		} else {
			cur = rt
			row.Table = cur
		}
	}
}

// compactTables drops any table no longer referenced by a row after
// merging, and renumbers the rest contiguously.
func (b *Block) compactTables() {
	used := make(map[int]int, len(b.Tables))
	var next []*table.Table
	for y := range b.Rows {
		row := &b.Rows[y]
		if row.Kind == RowRepeat {
			continue
		}
		if ni, ok := used[row.Table]; ok {
			row.Table = ni
		} else {
			ni = len(next)
			next = append(next, b.Tables[row.Table])
			used[row.Table] = ni
			row.Table = ni
		}
	}
	b.Tables = next
}

func (b *Block) finishColorConvert(opts CompleteOptions) error {
	for i, t := range b.Tables {
		if opts.CompositeToPage {
			t.CompositeToPage(opts.PageColor)
		} else {
			t.DivideAlpha()
		}
		if opts.LateColor != nil {
			opts.LateColor(t)
		}
		if opts.Transfer != nil {
			t.ApplySoftMaskTransfer(opts.Transfer)
		}
		if opts.Converter != nil {
			out, err := t.ColorConvert(opts.OutVariant, opts.OutComps, opts.Converter, t)
			if err != nil {
				return fmt.Errorf("block: color convert table %d: %w", i, err)
			}
			b.Tables[i] = out
		}
	}
	return nil
}
