// Package reader implements the block-by-block iterator (C10) that
// pulls bounded spans of final (color, info) pixels out of a
// completed backdrop for the raster output pipeline. It unlinks a
// purgeable block from the shared purge list for the duration of a
// read and relinks it afterward, so the purge thread cannot free a
// block while the reader has it in hand.
package reader

import (
	"errors"
	"fmt"
	"io"

	"github.com/tilepress/backdrop/block"
	"github.com/tilepress/backdrop/colorval"
)

// Source is the minimal backdrop surface the reader needs: block
// lookup by tile plus the geometry to translate absolute bounds into
// tiles. Blocks returned must already be Complete (or Uniform); the
// reader does not drive completion.
type Source interface {
	Block(bx, by int) (*block.Block, error)
	BlockDims() (width, height int)
	Bounds() (width, height int)

	// Unlink/Relink implement the "temporarily unlinked from the
	// purgeable list" protocol around a block the reader is about to
	// touch; implementations backed by an in-memory-only store (most
	// tests) can make both no-ops.
	Unlink(bx, by int)
	Relink(bx, by int)

	// EnsureLoaded brings an on-disk block back into memory for the
	// duration of the read, if it is currently spilled.
	EnsureLoaded(bx, by int) error
}

// Span is one bounded horizontal run of identical final pixels: for a
// color-converted (Output8/Output16) table the caller reads Color8 or
// Color16 (whichever is non-nil); Info carries the per-sample
// attributes the spec requires the reader to preserve.
type Span struct {
	Y, X0, X1 int
	Color8    []uint8
	Color16   []uint16
	Info      colorval.Info
}

// Reader iterates a rectangular bound of absolute pixel coordinates,
// yielding Spans in row-major, left-to-right order. Every row is
// reported by its own Next() calls, including rows a block stores as
// repeats of the row above; a Span always covers a single row, and the
// reader gives no repeat count for identical consecutive rows.
type Reader struct {
	src        Source
	x0, y0     int
	x1, y1     int
	bw, bh     int
	curY       int
	curX       int
	unlinkedAt map[[2]int]bool
	done       bool
}

var ErrDone = errors.New("reader: iteration already finished")

// New creates a Reader over src bounded to [x0,y0,x1,y1), intersected
// with src's own pixel bounds.
func New(src Source, x0, y0, x1, y1 int) *Reader {
	w, h := src.Bounds()
	if x1 > w {
		x1 = w
	}
	if y1 > h {
		y1 = h
	}
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	bw, bh := src.BlockDims()
	return &Reader{
		src: src, x0: x0, y0: y0, x1: x1, y1: y1, bw: bw, bh: bh,
		curY: y0, curX: x0,
		unlinkedAt: map[[2]int]bool{},
	}
}

// Next returns the next bounded span in reading order, or io.EOF once
// the bound is exhausted. Adjacent runs with identical (color, info)
// are merged into one span even across a block boundary, so a uniform
// row spanning several tiles is reported as a single wide span.
func (r *Reader) Next() (Span, error) {
	if r.done {
		return Span{}, io.EOF
	}
	if r.curY >= r.y1 {
		r.Close()
		return Span{}, io.EOF
	}

	sp, end, err := r.readRunAt(r.curX, r.curY)
	if err != nil {
		return Span{}, err
	}
	for end < r.x1 {
		next, nextEnd, err := r.readRunAt(end, r.curY)
		if err != nil {
			return Span{}, err
		}
		if !sameSpanValue(sp, next) {
			break
		}
		end = nextEnd
	}
	sp.X1 = end

	r.curX = end
	if r.curX >= r.x1 {
		r.curX = r.x0
		r.curY++
		r.relinkAll()
	}
	return sp, nil
}

// readRunAt loads the block covering (x, y), unlinking it for the
// duration of the read, and returns the run covering column x as a
// Span together with its absolute end-exclusive column.
func (r *Reader) readRunAt(x, y int) (Span, int, error) {
	bx, by := x/r.bw, y/r.bh
	xi, yi := x%r.bw, y%r.bh

	r.src.Unlink(bx, by)
	r.unlinkedAt[[2]int{bx, by}] = true
	if err := r.src.EnsureLoaded(bx, by); err != nil {
		return Span{}, 0, fmt.Errorf("reader: ensure loaded: %w", err)
	}
	b, err := r.src.Block(bx, by)
	if err != nil {
		return Span{}, 0, fmt.Errorf("reader: block(%d,%d): %w", bx, by, err)
	}

	runs, tbl, err := b.RowRuns(yi)
	if err != nil {
		return Span{}, 0, fmt.Errorf("reader: row runs: %w", err)
	}
	var run block.RunEntry
	found := false
	for _, ru := range runs {
		if xi <= ru.End {
			run = ru
			found = true
			break
		}
	}
	if !found {
		return Span{}, 0, fmt.Errorf("reader: no run covers column %d in row %d", xi, yi)
	}

	// run.End is block-relative; translate to the row's absolute
	// end-exclusive column, clipped to both the block boundary and
	// the reader's requested bound.
	end := bx*r.bw + run.End + 1
	if end > r.x1 {
		end = r.x1
	}

	sp := Span{Y: y, X0: x, X1: end, Info: tbl.InfoAt(int(run.Slot))}
	fillOutputColor(tbl, int(run.Slot), &sp)
	return sp, end, nil
}

// sameSpanValue reports whether two spans carry identical output
// content, ignoring their X bounds, so Next can merge them.
func sameSpanValue(a, b Span) bool {
	if !a.Info.Equal(b.Info) {
		return false
	}
	switch {
	case a.Color8 != nil || b.Color8 != nil:
		return bytesEqual8(a.Color8, b.Color8)
	case a.Color16 != nil || b.Color16 != nil:
		return bytesEqual16(a.Color16, b.Color16)
	}
	return true
}

func bytesEqual8(a, b []uint8) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func bytesEqual16(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// relinkAll relinks every block the reader has unlinked so far. It is
// called once a whole row has been fully read, matching the spec's
// "relinked after" protocol (a row may span several blocks that were
// each unlinked in turn).
func (r *Reader) relinkAll() {
	for k := range r.unlinkedAt {
		r.src.Relink(k[0], k[1])
	}
	r.unlinkedAt = map[[2]int]bool{}
}

// Close releases any blocks still unlinked, ending the read early. A
// Reader whose Next has run to completion calls this automatically;
// Go callers that abandon a Reader mid-iteration should call it
// explicitly (there is no finalizer-based cleanup).
func (r *Reader) Close() error {
	if r.done {
		return nil
	}
	r.relinkAll()
	r.done = true
	return nil
}
