package compositor

import "fmt"

// CompositeBackdrop is the upstream-group composite (bd_compositeBackdrop):
// dst imports a completed child backdrop src over the absolute pixel
// rectangle [x0,y0,x1,y1), which both backdrops address in the same
// coordinate space (the normal case for a group nested directly inside
// its parent). For each child tile it walks resolved runs (uniform: one
// per row; RLE/map: one per run) and composites each run into dst via
// the same per-pixel dispatch a direct span uses.
//
// When canPoach is true and a destination tile has not yet been
// touched this region, the corresponding (already-complete) source
// tile is swapped into dst outright instead of recomposited, per the
// spec's block-poaching optimisation; this still requires the group
// compatibility preconditions (matching colorant set, no color
// conversion, no soft mask) to have been established by the caller,
// since compositor has no visibility into color-converter identity.
func (c *Context) CompositeBackdrop(dst, src Backdrop, x0, y0, x1, y1 int, canPoach bool) error {
	if err := c.FlushCoalesced(dst); err != nil {
		return err
	}
	sg, dg := src.Geometry(), dst.Geometry()
	if sg.BlockWidth != dg.BlockWidth || sg.BlockHeight != dg.BlockHeight {
		canPoach = false
	}

	for y := y0; y < y1; {
		_, sby, _, syi := sg.TileAt(x0, y)
		firstBlockHeight := sg.BlockHeight - syi
		rowsInBand := firstBlockHeight
		if y1-y < rowsInBand {
			rowsInBand = y1 - y
		}

		for dy := 0; dy < rowsInBand; dy++ {
			if err := c.compositeBackdropRow(dst, src, x0, x1, y+dy, sby, syi+dy, canPoach, rowsInBand-dy); err != nil {
				return err
			}
		}
		y += rowsInBand
	}
	return nil
}

// compositeBackdropRow composites one absolute row y (source tile row
// sby/syi) across [x0, x1). tileRowsRemaining is how many more rows of
// this source tile row-band remain including this one, used only to
// gate whole-tile poaching (poaching swaps a whole block, so it is
// only attempted on the first row of a tile's band and only when the
// entire tile height and width are covered).
func (c *Context) compositeBackdropRow(dst, src Backdrop, x0, x1, y, sby, syi int, canPoach bool, tileRowsRemaining int) error {
	sg, dg := src.Geometry(), dst.Geometry()
	x := x0
	for x < x1 {
		sbx, _, sxi, _ := sg.TileAt(x, y)
		sblk, err := src.Block(sbx, sby)
		if err != nil {
			return fmt.Errorf("compositor: source block(%d,%d): %w", sbx, sby, err)
		}
		tileWidthLeft := sblk.Width - sxi
		segLen := tileWidthLeft
		if x1-x < segLen {
			segLen = x1 - x
		}

		if canPoach && syi == 0 && sxi == 0 && segLen == sblk.Width && tileRowsRemaining == sblk.Height {
			dbx, dby, dxi, dyi := dg.TileAt(x, y)
			if dxi == 0 && dyi == 0 {
				if dblk, err := dst.Block(dbx, dby); err == nil && !dblk.Flags.Touched && dblk.Poach(sblk) {
					x += segLen
					continue
				}
			}
		}

		runs, tbl, err := sblk.RowRuns(syi)
		if err != nil {
			return fmt.Errorf("compositor: source row runs: %w", err)
		}
		pos := sxi
		for _, run := range runs {
			if run.End < pos {
				continue
			}
			runAbsStart := x + (pos - sxi)
			runLen := run.End - pos + 1
			if runAbsStart < x {
				skip := x - runAbsStart
				runLen -= skip
				runAbsStart = x
			}
			if runAbsStart+runLen > x+segLen {
				runLen = x + segLen - runAbsStart
			}
			if runLen > 0 {
				srcColor := tbl.ColorAt(int(run.Slot))
				srcAlpha := tbl.AlphaAt(int(run.Slot))
				srcGroupAlpha := tbl.GroupAlphaAt(int(run.Slot))
				srcInfo := tbl.InfoAt(int(run.Slot))
				if err := c.compositeRunDirect(dst, runAbsStart, y, runLen, srcColor, srcAlpha, srcGroupAlpha, srcInfo); err != nil {
					return fmt.Errorf("compositor: composite backdrop run: %w", err)
				}
			}
			pos = run.End + 1
		}
		x += segLen
	}
	return nil
}
