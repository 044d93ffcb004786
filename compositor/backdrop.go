// Package compositor implements the per-thread composite workspace
// (C5), the span-to-block-blit coalescer (C6) and the composite core
// (C7): source/mask/background loading, the blend dispatch and the
// PDF 1.4 compose formula that writes composited samples back into a
// backdrop's active block table.
//
// compositor never imports the top-level backdrop package (which
// instead imports compositor): a composited group is addressed
// through the Backdrop interface below, matching the re-architecture
// note that parent/child backdrop links should be handles into an
// arena rather than concrete owned types.
package compositor

import (
	"github.com/tilepress/backdrop/block"
	"github.com/tilepress/backdrop/colorval"
	"github.com/tilepress/backdrop/table"
)

// Geometry describes a backdrop's block grid and pixel bounds.
type Geometry struct {
	BlockWidth, BlockHeight int
	Width, Height           int
}

// TileAt returns the block-grid column/row containing absolute pixel
// (x, y), along with the block-relative coordinate.
func (g Geometry) TileAt(x, y int) (bx, by, xi, yi int) {
	bx, xi = x/g.BlockWidth, x%g.BlockWidth
	by, yi = y/g.BlockHeight, y%g.BlockHeight
	return
}

// Backdrop is the composite core's view of one group's store: enough
// to fetch/create blocks by tile, and to answer the group-attribute
// questions the blend dispatch needs (isolated/knockout/shape, the
// non-isolated "initial" backdrop link, and optional soft mask / PCL
// pattern sources).
type Backdrop interface {
	Block(bx, by int) (*block.Block, error)
	Geometry() Geometry
	Variant() table.Variant
	NComps() int
	Knockout() bool
	ShapeTracking() bool
	// NonIsolatedInitial returns the backdrop holding this group's
	// initial colors (for non-isolated background lookups), or nil
	// for an isolated group.
	NonIsolatedInitial() Backdrop
}

// MaskSource samples a soft mask's alpha at an absolute pixel.
type MaskSource interface {
	AlphaAt(x, y int) (colorval.Value, error)
}

// PCLPatternIterator is the pclDLPatternIterator collaborator: it
// yields the run of pattern cells starting at an absolute pixel,
// packed the way cce.ROPWord expects.
type PCLPatternIterator interface {
	// RunAt returns the pattern word and run length (in pixels) valid
	// starting at absolute (x, y).
	RunAt(x, y int) (word uint32, runLen int, err error)
}
