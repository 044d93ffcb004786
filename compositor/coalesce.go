package compositor

import "github.com/tilepress/backdrop/colorval"

// pendingSpan is a coalescer's buffered candidate: a run of identical
// rows sharing (x, runLen, color, alpha, info), waiting to see if the
// next inserted row extends it into a rectangle.
type pendingSpan struct {
	valid  bool
	x, y   int
	runLen int
	rows   int
	color  []colorval.Value
	alpha  colorval.Value
	groupA colorval.Value
	info   colorval.Info
}

// Coalescer buffers span-blit contributions from a "coalescable"
// source (a fill/quad without a soft mask, per RunInfo's source-type
// selection) and flushes them as a single block-blit once it detects
// they no longer extend a rectangle, so CompositeBlock's line-repeat
// optimisation applies instead of compositing one row at a time.
type Coalescer struct {
	pending pendingSpan
}

// Offer buffers one span contribution. It returns true if the span
// was absorbed into the pending rectangle, false if the caller must
// flush first (the span did not extend the current candidate and was
// not buffered).
func (co *Coalescer) Offer(x, y, runLen int, color []colorval.Value, alpha, groupAlpha colorval.Value, info colorval.Info) bool {
	p := &co.pending
	if p.valid && p.x == x && p.runLen == runLen && p.y+p.rows == y &&
		sameColor(p.color, color) && p.alpha == alpha && p.groupA == groupAlpha && p.info.Equal(info) {
		p.rows++
		return true
	}
	if !p.valid {
		p.valid = true
		p.x, p.y, p.runLen, p.rows = x, y, runLen, 1
		p.color = append(p.color[:0], color...)
		p.alpha, p.groupA, p.info = alpha, groupAlpha, info
		return true
	}
	return false
}

func sameColor(a, b []colorval.Value) bool {
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

// flushed reports the pending rectangle (if any) and clears it.
func (co *Coalescer) flushed() (pendingSpan, bool) {
	p := co.pending
	co.pending = pendingSpan{}
	if !p.valid {
		return pendingSpan{}, false
	}
	return p, true
}

// FlushCoalesced drains any buffered rectangle as a single
// CompositeBlock call, letting the block-blit path's repeat
// optimisation apply to runs the caller submitted one span at a time.
func (c *Context) FlushCoalesced(bd Backdrop) error {
	p, ok := c.coalesce.flushed()
	if !ok {
		return nil
	}
	return c.compositeBlockRect(bd, p.x, p.y, p.runLen, p.rows, p.color, p.alpha, p.groupA, p.info)
}
