package compositor

import (
	"github.com/tilepress/backdrop/cce"
	"github.com/tilepress/backdrop/colorval"
)

// PCLState carries the ROP/pattern attributes of a PCL object, set by
// RunInfo when the source declares a PCL raster operation instead of
// a PDF 1.4 blend mode.
type PCLState struct {
	Active  bool
	ROPCode uint8
	// MaxBlit selects the PCL max-blit rule (the darker of source and
	// destination, per channel) in place of evaluating ROPCode's truth
	// table.
	MaxBlit  bool
	Pattern  PCLPatternIterator
	SourceCS cce.ColorSpace
}

// SourceState is the per-source-object state RunInfo resets before a
// batch of CompositeSpan/CompositeBlock/CompositeBackdrop calls: the
// display-list object's transparency attributes as described in the
// spec's "reset source/mask properties" step.
type SourceState struct {
	BlendMode       cce.BlendMode
	ColorSpace      cce.ColorSpace
	Overprint       []cce.ChannelState // nil if no overprint; else len == nComps
	NonIsolated     bool
	ShapeAware      bool
	ForceKnockout   bool
	Mask            MaskSource
	PCL             PCLState
	Label           uint32
	BaseInfo        colorval.Info
	InitialAlpha    colorval.Value // sa0, the group's initial alpha, for RemoveBackdropContribution
	InitialGroupBg  colorval.Value // ba0
	OverridenColorT uint8
}

// Context is the per-thread composite workspace (C5): one Context is
// owned by a single worker for the duration of its region, matching
// the concurrency model's "no operation inside a single block is
// concurrent" rule.
type Context struct {
	Source SourceState

	coalesce Coalescer
}

// NewContext returns a fresh per-thread composite workspace.
func NewContext() *Context {
	return &Context{}
}

// RunInfo declares the next source object: it flushes any buffered
// coalesced spans against the previous object's state, then resets
// Source.
func (c *Context) RunInfo(bd Backdrop, state SourceState) error {
	if err := c.FlushCoalesced(bd); err != nil {
		return err
	}
	c.Source = state
	return nil
}
