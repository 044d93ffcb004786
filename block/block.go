// Package block implements the rectangular tile (default 128x128) that
// is the unit of memory and disk management for a backdrop. A block
// holds one or more tables and a per-row representation chosen from
// three coexisting encodings: a full index map used during insert, a
// compacted run-length form, and a single-entry uniform form.
package block

import (
	"errors"
	"fmt"

	"github.com/tilepress/backdrop/colorval"
	"github.com/tilepress/backdrop/resource"
	"github.com/tilepress/backdrop/table"
)

// Storage identifies where a block's pixel data currently lives.
type Storage int

const (
	Memory Storage = iota
	Disk
	Uniform
)

func (s Storage) String() string {
	switch s {
	case Memory:
		return "Memory"
	case Disk:
		return "Disk"
	case Uniform:
		return "Uniform"
	}
	return fmt.Sprintf("Storage(%d)", int(s))
}

// RowKind selects which of the three row encodings is active.
type RowKind int

const (
	// RowRepeat rows cost no data; they are defined to equal the
	// preceding non-repeat row.
	RowRepeat RowKind = iota
	// RowRLE rows hold a run list of (end X, slot) pairs.
	RowRLE
	// RowMap rows hold one table-slot byte per pixel.
	RowMap
)

// RunEntry is one run within an RLE row: it covers pixels up to and
// including End (0-based, row-relative) using the table entry at Slot.
type RunEntry struct {
	End  int
	Slot uint8
}

// Row is one horizontal line of a block. During insert, every
// non-repeat row is RowMap with exactly Width bytes, and the stored
// byte at position xi is simultaneously the table slot for that pixel
// and the end-X of the run containing it -- this is the
// index-equals-run-end invariant exploited by the background loader
// and the adjust-preceding-run step. After Complete compacts the
// block, a row's Map (if kept) holds literal slot indices with no such
// positional meaning, and an RLE row's Runs hold arbitrary slots.
type Row struct {
	Kind  RowKind
	Table int // index into Block.Tables; meaningless for RowRepeat
	Runs  []RunEntry
	Map   []uint8
}

// Block flags.
type Flags struct {
	Complete  bool
	Touched   bool
	Purgeable bool
}

var (
	ErrBadDimensions = errors.New("block: width/height must be positive and <= 256")
	ErrTableFull     = errors.New("block: row's table has no free slots")
	ErrNotComplete   = errors.New("block: operation requires a complete block")
	ErrAlreadyDone   = errors.New("block: operation requires an insert-mode block")

	// ErrAlloc is ErrTableFull under the name the low-memory action
	// ladder looks for: a full table is this package's out-of-memory
	// condition, the trigger backdrop.Store.handleAllocFailure responds
	// to by walking compress -> shareBlists -> writeToDisk -> ... .
	ErrAlloc = ErrTableFull

	// ErrIO wraps every Purge/Load failure reading or writing the spill
	// file, so callers can distinguish a disk fault from a logic error
	// without string-matching.
	ErrIO = errors.New("block: spill i/o error")
)

// Block is a single tile of a backdrop store.
type Block struct {
	Storage Storage
	Width   int
	Height  int

	Flags Flags

	Rows   []Row
	Tables []*table.Table

	// Variant is the table variant used for every table owned by this
	// block (Isolated/IsolatedShape/NonIsolated/NonIsolatedShape).
	Variant table.Variant
	NComps  int

	// Disk holds the spill location once the block has been written
	// out; nil while the block lives in memory.
	Disk *Location

	res *resource.Resource
}

// Location is a spill-file address: an opaque offset within a single
// shared spill stream, addressed at read time by seeking there. Length
// is the byte count written at Offset, recorded so Load can size its
// read buffer without the caller separately tracking it.
type Location struct {
	Offset int64
	Length int64
}

// NewIsolatedInsert creates an insert-mode block for an isolated
// group. Every row is primed as a single run at slot width-1 holding
// the group's initial color; rows beyond the first are marked repeat.
func NewIsolatedInsert(variant table.Variant, nComps, width, height int, initColor []colorval.Value, initAlpha, initGroupAlpha colorval.Value, initInfo colorval.Info, softMaskLuminosity bool) (*Block, error) {
	if width <= 0 || width > 256 || height <= 0 {
		return nil, ErrBadDimensions
	}
	b := &Block{
		Storage: Memory,
		Width:   width,
		Height:  height,
		Variant: variant,
		NComps:  nComps,
		Rows:    make([]Row, height),
		Tables:  []*table.Table{{}},
	}
	b.Tables[0].Init(variant, nComps, width)
	if err := b.Tables[0].InitEntry(width-1, initColor, initAlpha, initGroupAlpha, initInfo); err != nil {
		return nil, fmt.Errorf("block: init entry: %w", err)
	}
	b.Flags.Touched = softMaskLuminosity

	row0 := make([]uint8, width)
	for i := range row0 {
		row0[i] = uint8(width - 1)
	}
	b.Rows[0] = Row{Kind: RowMap, Table: 0, Map: row0}
	for y := 1; y < height; y++ {
		b.Rows[y] = Row{Kind: RowRepeat}
	}
	return b, nil
}

// NewNonIsolatedInsert creates an insert-mode block for a non-isolated
// group, copying its initial tables and row data from the aligned
// block of the group's "initial" backdrop, translating every entry
// via table.CopyToNonIsolated.
func NewNonIsolatedInsert(variant table.Variant, nComps int, initial *Block) (*Block, error) {
	if initial == nil {
		return nil, fmt.Errorf("block: non-isolated init requires an initial block")
	}
	b := &Block{
		Storage: Memory,
		Width:   initial.Width,
		Height:  initial.Height,
		Variant: variant,
		NComps:  nComps,
		Rows:    make([]Row, initial.Height),
		Tables:  make([]*table.Table, len(initial.Tables)),
	}
	for i, src := range initial.Tables {
		dst := &table.Table{}
		dst.Init(variant, nComps, src.NMaxSlots)
		for s := 0; s < src.NUsedSlots; s++ {
			if err := src.CopyToNonIsolated(s, dst, s); err != nil {
				return nil, fmt.Errorf("block: copy to non-isolated: %w", err)
			}
		}
		dst.NUsedSlots = src.NUsedSlots
		b.Tables[i] = dst
	}
	for y, r := range initial.Rows {
		nr := Row{Kind: r.Kind, Table: r.Table}
		if r.Map != nil {
			nr.Map = append([]uint8(nil), r.Map...)
		}
		if r.Runs != nil {
			nr.Runs = append([]RunEntry(nil), r.Runs...)
		}
		b.Rows[y] = nr
	}
	return b, nil
}

// ensureMaterialized converts a repeat row into an owned copy of its
// predecessor so it can be mutated independently.
func (b *Block) ensureMaterialized(y int) {
	if b.Rows[y].Kind != RowRepeat {
		return
	}
	p := y - 1
	for p >= 0 && b.Rows[p].Kind == RowRepeat {
		p--
	}
	src := b.Rows[p]
	dst := Row{Kind: src.Kind, Table: src.Table}
	if src.Map != nil {
		dst.Map = append([]uint8(nil), src.Map...)
	}
	if src.Runs != nil {
		dst.Runs = append([]RunEntry(nil), src.Runs...)
	}
	b.Rows[y] = dst
}

// runLenAt returns the length of the run containing row-relative
// column xi, using the index-equals-run-end invariant for an
// insert-mode map row.
func (r *Row) runLenAt(xi int) int {
	end := int(r.Map[xi])
	return end - xi + 1
}

// RunLenAt is the exported form of runLenAt, used by per-line loaders
// outside this package (background/mask loading during composite) to
// find how far the run at row-relative column xi extends in an
// insert-mode map row.
func (r *Row) RunLenAt(xi int) int {
	return r.runLenAt(xi)
}

// adjustPrecedingRun splits the run covering xi-1 if it extends past
// xi, so writing a new run starting at xi never corrupts the
// preceding run's end marker. It must be called before InsertRun
// writes into a map row.
func (b *Block) adjustPrecedingRun(row *Row, tbl *table.Table, xi int) error {
	if xi == 0 || xi >= len(row.Map) {
		return nil
	}
	if row.Map[xi-1] != row.Map[xi] {
		return nil
	}
	// The run crossing xi-1/xi must be truncated: under the
	// index-equals-run-end convention, the slot for the truncated left
	// portion is simply xi-1, its new run end -- never a separately
	// counted allocation.
	oldSlot := int(row.Map[xi-1])
	newSlot := xi - 1
	if err := tbl.CopyEntry(oldSlot, tbl, newSlot); err != nil {
		return fmt.Errorf("block: adjust preceding run: %w", err)
	}
	if newSlot >= tbl.NUsedSlots {
		tbl.NUsedSlots = newSlot + 1
	}
	start := xi - 1
	for start > 0 && row.Map[start-1] == uint8(oldSlot) {
		start--
	}
	for i := start; i < xi; i++ {
		row.Map[i] = uint8(newSlot)
	}
	return nil
}

// InsertRun writes a single composited run of length runLen starting
// at row-relative column xi in row y: the new entry is appended (or
// reused, if the caller already deduped) to the row's table at slot
// xi+runLen-1, and the map bytes [xi, xi+runLen) are set to that
// index, matching the convention `bdt_setResultPtrs` relies on.
func (b *Block) InsertRun(y, xi, runLen int, color []colorval.Value, alpha, groupAlpha colorval.Value, info colorval.Info) error {
	if b.Flags.Complete {
		return ErrAlreadyDone
	}
	b.ensureMaterialized(y)
	row := &b.Rows[y]
	if row.Kind != RowMap {
		return fmt.Errorf("block: InsertRun requires a map row, got %v", row.Kind)
	}
	tbl := b.Tables[row.Table]
	if err := b.adjustPrecedingRun(row, tbl, xi); err != nil {
		return err
	}

	newIndex := xi + runLen - 1
	if newIndex >= tbl.NMaxSlots {
		return ErrTableFull
	}
	if err := tbl.InitEntry(newIndex, color, alpha, groupAlpha, info); err != nil {
		return fmt.Errorf("block: insert run: %w", err)
	}
	if newIndex >= tbl.NUsedSlots {
		tbl.NUsedSlots = newIndex + 1
	}
	for i := xi; i < xi+runLen; i++ {
		row.Map[i] = uint8(newIndex)
	}
	b.Flags.Touched = true
	return nil
}

// Poach swaps b's resource in place of other's, moving other's
// storage into b in O(1) without copying pixel data -- the mechanism
// behind the block-poaching optimisation (§4.3/§4.4): when a
// non-isolated child composites into an untouched parent tile with no
// color conversion and no soft mask, the completed child block can
// become the parent's block outright. Both blocks must currently hold
// an attached resource; Poach reports false (doing nothing) if either
// does not, leaving the caller to fall back to an ordinary composite.
func (b *Block) Poach(other *Block) bool {
	if b.res == nil || other.res == nil {
		return false
	}
	resource.Swap(b.res, other.res)
	b.Storage, other.Storage = other.Storage, b.Storage
	b.Rows, other.Rows = other.Rows, b.Rows
	b.Tables, other.Tables = other.Tables, b.Tables
	b.Width, other.Width = other.Width, b.Width
	b.Height, other.Height = other.Height, b.Height
	b.Flags, other.Flags = other.Flags, b.Flags
	return true
}

// RowAt returns a pointer to row y, materialising it first if it is a
// repeat row so the caller gets an owned copy of the row above. It is
// the per-row read path used by per-line loaders during composite.
func (b *Block) RowAt(y int) *Row {
	b.ensureMaterialized(y)
	return &b.Rows[y]
}
