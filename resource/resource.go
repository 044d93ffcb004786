// Package resource implements the fixed-size, reusable allocation a
// block rents: a data buffer, a line-metadata array and a fixed number
// of table pointers, all sized for one block and handed out by a
// bounded Pool keyed by the block's position relative to the region
// being composited. block.Block takes a Resource only when Load
// reloads it from the spill file, and returns it on Purge; insert-mode
// blocks hold none.
package resource

import (
	"github.com/tilepress/backdrop/table"
)

// Key identifies a resource slot by its position relative to the
// current region: depth in the backdrop tree, and tile column/row. Two
// workers compositing disjoint regions never contend for the same key,
// per the concurrency model's ordering guarantees.
type Key struct {
	Depth int
	BX    int
	BY    int
}

// LineRecord is the resource-owned, block-shape-agnostic line metadata
// slot: a reference to one of the resource's tables plus the RLE/map
// bookkeeping fields block.Row needs. block.Block keeps its rows and
// tables in its own Rows and Tables fields and does not read or write
// a Resource's Lines, Data or Tables.
type LineRecord struct {
	TableIdx int // index into Resource.Tables, or -1 if this line has no table (repeat line)
	Offset   int
	NRuns    int
	Repeat   bool
}

// Resource is the reusable bundle rented from a Pool. All fields are
// sized once, at construction, for the pool's configured block
// dimensions and table count; Reset clears them for reuse without
// reallocating.
type Resource struct {
	Key    Key
	Data   []byte         // max-block-size data buffer (RLE/map bytes)
	Lines  []LineRecord   // one entry per row, up to block height
	Tables []*table.Table // fixed-size table pointer array
}

func newResource(dataSize, height, nTables int) *Resource {
	r := &Resource{
		Data:   make([]byte, dataSize),
		Lines:  make([]LineRecord, height),
		Tables: make([]*table.Table, nTables),
	}
	for i := range r.Tables {
		r.Tables[i] = &table.Table{}
	}
	return r
}

// Reset clears a resource's contents for reuse by a new block, without
// reallocating its backing arrays.
func (r *Resource) Reset(key Key) {
	r.Key = key
	for i := range r.Data {
		r.Data[i] = 0
	}
	for i := range r.Lines {
		r.Lines[i] = LineRecord{}
	}
	for _, t := range r.Tables {
		*t = table.Table{}
	}
}

// Swap exchanges the entire contents of two resources in O(1), field
// for field. This is how block poaching moves a completed child block's
// storage into its parent without copying any pixel data.
func Swap(a, b *Resource) {
	a.Key, b.Key = b.Key, a.Key
	a.Data, b.Data = b.Data, a.Data
	a.Lines, b.Lines = b.Lines, a.Lines
	a.Tables, b.Tables = b.Tables, a.Tables
}
