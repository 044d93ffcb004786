package compositor

import (
	"fmt"

	"github.com/tilepress/backdrop/block"
	"github.com/tilepress/backdrop/cce"
	"github.com/tilepress/backdrop/colorval"
)

// sample is one resolved table entry: premultiplied color, alpha,
// group alpha, shape and info, in the representation both source
// contributions and loaded backgrounds share.
type sample struct {
	color      []colorval.Value
	alpha      colorval.Value
	groupAlpha colorval.Value
	shape      colorval.Value
	info       colorval.Info
}

// isCoalescable reports whether the current source object is a
// fill/quad without a soft mask -- the source-type RunInfo selects
// for coalescer buffering, per spec's "Selects source type: backdrop,
// fill/quad (coalescable), other (direct)".
func (c *Context) isCoalescable() bool {
	return c.Source.Mask == nil && !c.Source.PCL.Active
}

// CompositeSpan is a span-blit (bd_compositeSpan): x/y/runLen in
// absolute group pixel coordinates, sourceColor already premultiplied
// by alpha.
func (c *Context) CompositeSpan(bd Backdrop, x, y, runLen int, sourceColor []colorval.Value, alpha, groupAlpha colorval.Value) error {
	if c.isCoalescable() {
		if c.coalesce.Offer(x, y, runLen, sourceColor, alpha, groupAlpha, c.Source.BaseInfo) {
			return nil
		}
		if err := c.FlushCoalesced(bd); err != nil {
			return err
		}
		c.coalesce.Offer(x, y, runLen, sourceColor, alpha, groupAlpha, c.Source.BaseInfo)
		return nil
	}
	return c.compositeRunDirect(bd, x, y, runLen, sourceColor, alpha, groupAlpha, c.Source.BaseInfo)
}

// CompositeBlock is a block-blit (bd_compositeBlock) over an absolute
// rectangle [x, x+columns) x [y, y+rows). It detects the "full-width,
// opaque, no overprint, no active PCL pattern" fast path: row 0 is
// composited and every following row in a tile is marked repeat
// instead of recomposited.
func (c *Context) CompositeBlock(bd Backdrop, x, y, columns, rows int, sourceColor []colorval.Value, alpha, groupAlpha colorval.Value) error {
	if err := c.FlushCoalesced(bd); err != nil {
		return err
	}
	return c.compositeBlockRect(bd, x, y, columns, rows, sourceColor, alpha, groupAlpha, c.Source.BaseInfo)
}

func (c *Context) compositeBlockRect(bd Backdrop, x, y, columns, rows int, sourceColor []colorval.Value, alpha, groupAlpha colorval.Value, info colorval.Info) error {
	g := bd.Geometry()
	fullWidth := x%g.BlockWidth == 0 && ((x+columns)%g.BlockWidth == 0 || x+columns >= g.Width)
	fastPath := fullWidth && alpha == colorval.One && c.Source.Overprint == nil && !c.Source.PCL.Active

	y0 := y
	for y0 < y+rows {
		by := y0 / g.BlockHeight
		yi := y0 % g.BlockHeight
		tileRows := g.BlockHeight - yi
		if y+rows-y0 < tileRows {
			tileRows = y + rows - y0
		}

		if err := c.compositeRunDirect(bd, x, y0, columns, sourceColor, alpha, groupAlpha, info); err != nil {
			return err
		}
		if fastPath {
			if err := c.repeatFullWidthRows(bd, by, x, y0, columns, tileRows); err != nil {
				return err
			}
			y0 += tileRows
			continue
		}
		for dy := 1; dy < tileRows; dy++ {
			if err := c.compositeRunDirect(bd, x, y0+dy, columns, sourceColor, alpha, groupAlpha, info); err != nil {
				return err
			}
		}
		y0 += tileRows
	}
	return nil
}

// repeatFullWidthRows marks rows 1..tileRows-1 of every block spanned
// by [x, x+columns) as repeating the row just composited at y0,
// provided that composite covered the block's full width. This is
// the block-blit line-repeat optimisation from spec.md S9.
func (c *Context) repeatFullWidthRows(bd Backdrop, by, x, y0, columns, tileRows int) error {
	g := bd.Geometry()
	x0 := x
	for x0 < x+columns {
		bx, _, xi, yi := g.TileAt(x0, y0)
		b, err := bd.Block(bx, by)
		if err != nil {
			return err
		}
		segLen := b.Width - xi
		if x+columns-x0 < segLen {
			segLen = x + columns - x0
		}
		if xi == 0 && segLen == b.Width {
			for dy := 1; dy < tileRows && yi+dy < b.Height; dy++ {
				b.MarkRepeat(yi + dy)
			}
		}
		x0 += segLen
	}
	return nil
}

// compositeRunDirect processes a single contribution of runLen pixels
// across whatever blocks/background runs it spans, re-splitting at
// every block boundary and every differing background run.
func (c *Context) compositeRunDirect(bd Backdrop, x, y, runLen int, sourceColor []colorval.Value, alpha, groupAlpha colorval.Value, info colorval.Info) error {
	g := bd.Geometry()
	nComps := bd.NComps()
	remaining := runLen
	cx := x
	for remaining > 0 {
		bx, by, xi, yi := g.TileAt(cx, y)
		b, err := bd.Block(bx, by)
		if err != nil {
			return fmt.Errorf("compositor: block(%d,%d): %w", bx, by, err)
		}
		blockMax := b.Width - xi
		n := remaining
		if n > blockMax {
			n = blockMax
		}

		row := b.RowAt(yi)
		if row.Kind != block.RowMap {
			return fmt.Errorf("compositor: row %d is not insert-mode (kind=%v)", yi, row.Kind)
		}
		inBlock := 0
		for inBlock < n {
			bgRun := row.RunLenAt(xi + inBlock)
			k := n - inBlock
			if k > bgRun {
				k = bgRun
			}

			var patWord uint32
			if c.Source.PCL.Active && c.Source.PCL.Pattern != nil {
				word, patRunLen, err := c.Source.PCL.Pattern.RunAt(cx+inBlock, y)
				if err != nil {
					return fmt.Errorf("compositor: pcl pattern run: %w", err)
				}
				if patRunLen < k {
					k = patRunLen
				}
				patWord = word
			}
			if k <= 0 {
				return fmt.Errorf("compositor: pcl pattern returned a non-positive run length at (%d,%d)", cx+inBlock, y)
			}

			bgSlot := int(row.Map[xi+inBlock])
			tbl := b.Tables[row.Table]
			bg := sample{
				color:      tbl.ColorAt(bgSlot),
				alpha:      tbl.AlphaAt(bgSlot),
				groupAlpha: tbl.GroupAlphaAt(bgSlot),
				shape:      tbl.ShapeAt(bgSlot),
				info:       tbl.InfoAt(bgSlot),
			}
			src := sample{color: sourceColor, alpha: alpha, groupAlpha: groupAlpha, shape: colorval.One, info: info}

			out, draw := c.compositeColor(nComps, src, bg, patWord)
			if draw {
				if err := b.InsertRun(yi, xi+inBlock, k, out.color, out.alpha, out.groupAlpha, out.info); err != nil {
					return fmt.Errorf("compositor: insert run: %w", err)
				}
				row = b.RowAt(yi)
			}
			inBlock += k
		}
		remaining -= n
		cx += n
	}
	return nil
}

// compositeColor is the per-pixel composite dispatch (§4.4 items
// 1-10): short-circuit on an empty source, load/demultiply, remove a
// non-isolated source's backdrop contribution, evaluate the blend
// function, compose per the PDF 1.4 formula, compute group alpha,
// apply the shape-aware weighted average, merge labels, or (for PCL
// objects) evaluate the integer ROP truth table instead of the PDF
// blend/compose path entirely. patWord is the packed texture word for
// the pixel's run, valid only when c.Source.PCL.Active.
func (c *Context) compositeColor(nComps int, src, bg sample, patWord uint32) (sample, bool) {
	if c.Source.PCL.Active {
		return c.compositePCL(nComps, src, bg, patWord)
	}
	if src.info.IsEmpty() && !c.Source.ForceKnockout {
		return sample{}, false
	}

	srcDemult := make([]colorval.Value, nComps)
	cce.Demultiply(nComps, src.color, src.alpha, srcDemult)
	bgDemult := make([]colorval.Value, nComps)
	cce.Demultiply(nComps, bg.color, bg.alpha, bgDemult)

	if c.Source.NonIsolated {
		adjusted := make([]colorval.Value, nComps)
		cce.RemoveBackdropContribution(nComps, srcDemult, bgDemult, c.Source.InitialAlpha, c.Source.InitialGroupBg, adjusted)
		srcDemult = adjusted
	}

	blendResult := make([]colorval.Value, nComps)
	evalBlend(c.Source.BlendMode, nComps, srcDemult, bgDemult, blendResult)

	resultColor := make([]colorval.Value, nComps)
	cce.ComposeVector(src.color, bg.color, blendResult, src.alpha, bg.alpha, resultColor)
	resultAlpha := cce.CombineAlpha(src.alpha, bg.alpha)

	if c.Source.Overprint != nil {
		overprinted := make([]colorval.Value, nComps)
		if src.alpha == colorval.One {
			cce.OpaqueOverprint(nComps, c.Source.Overprint, src.color, bg.color, overprinted)
		} else {
			cce.CompatibleOverprint(nComps, c.Source.Overprint, resultColor, src.color, bg.color, overprinted)
		}
		resultColor = overprinted
	}

	resultGroupAlpha := resultAlpha
	if c.Source.NonIsolated {
		// The group alpha channel tracks the same compose formula but
		// with the background's groupAlpha in place of its alpha, per
		// spec step 7 ("identically to above but using groupAlpha for
		// the background"). Only the alpha value is retained; the
		// non-isolated table's final *color* still uses the ordinary
		// alpha-based compose already computed above.
		resultGroupAlpha = cce.CombineAlpha(src.alpha, bg.groupAlpha)
	}

	if c.Source.ShapeAware {
		weighted := make([]colorval.Value, nComps)
		cce.WeightedAverage(nComps, resultColor, bg.color, src.shape, weighted)
		resultColor = weighted
	}

	out := sample{
		color:      resultColor,
		alpha:      resultAlpha,
		groupAlpha: resultGroupAlpha,
		shape:      cce.CombineAlpha(src.shape, bg.shape),
		info:       bg.info.Merge(src.info),
	}
	return out, true
}

// compositePCL is the ROP variant of the per-pixel dispatch (§4.4 item
// 10): source/texture/destination components are packed into a 32-bit
// word and the 256-variant rop(S,T,D,code) truth table is evaluated
// per bit; the TRANSPARENT pseudo-color short-circuits on a source
// that is "white" for the active color space, and max-blit selects
// the darker of source and destination in place of the ROP code.
// Absent an active pattern, the texture operand defaults to the
// source itself, the conventional degenerate case for a ROP with no
// brush/pattern bitmap.
func (c *Context) compositePCL(nComps int, src, bg sample, patWord uint32) (sample, bool) {
	if src.info.IsEmpty() && !c.Source.ForceKnockout {
		return sample{}, false
	}

	sWord := cce.PackComponents(nComps, src.color)
	if cce.TransparentSource(cce.IsWhiteWord(c.Source.PCL.SourceCS, nComps, sWord)) {
		return sample{}, false
	}

	dWord := cce.PackComponents(nComps, bg.color)
	tWord := sWord
	if c.Source.PCL.Pattern != nil {
		tWord = patWord
	}

	var outWord uint32
	if c.Source.PCL.MaxBlit {
		outWord = cce.MaxBlitWord(sWord, dWord)
	} else {
		outWord = cce.ROPWord(sWord, tWord, dWord, c.Source.PCL.ROPCode)
	}

	resultColor := make([]colorval.Value, nComps)
	cce.UnpackComponents(nComps, outWord, resultColor)

	out := sample{
		color:      resultColor,
		alpha:      colorval.One,
		groupAlpha: colorval.One,
		shape:      cce.CombineAlpha(src.shape, bg.shape),
		info:       bg.info.Merge(src.info),
	}
	return out, true
}

func evalBlend(mode cce.BlendMode, nComps int, src, bg, out []colorval.Value) {
	if mode.IsSeparable() {
		cce.BlendSeparable(mode, nComps, src, bg, out)
		return
	}
	switch nComps {
	case 1:
		copy(out, src)
	case 3:
		cce.BlendNonSeparable(mode, src, bg, out)
	case 4:
		evalBlendCMYK(mode, src, bg, out)
	default:
		copy(out, src)
	}
}

// evalBlendCMYK approximates the non-separable modes over CMYK by
// treating C/M/Y as an RGB complement (1-C, 1-M, 1-Y), blending in
// that space, and inverting back; K is preserved from the backdrop
// for Luminosity and from the source otherwise, matching "CMYK
// preserves K from the appropriate operand per mode".
func evalBlendCMYK(mode cce.BlendMode, src, bg, out []colorval.Value) {
	rgbSrc := []colorval.Value{colorval.One - src[0], colorval.One - src[1], colorval.One - src[2]}
	rgbBg := []colorval.Value{colorval.One - bg[0], colorval.One - bg[1], colorval.One - bg[2]}
	rgbOut := make([]colorval.Value, 3)
	cce.BlendNonSeparable(mode, rgbSrc, rgbBg, rgbOut)
	out[0] = colorval.One - rgbOut[0]
	out[1] = colorval.One - rgbOut[1]
	out[2] = colorval.One - rgbOut[2]
	if mode == cce.Luminosity {
		out[3] = bg[3]
	} else {
		out[3] = src[3]
	}
}
