package backdrop

import (
	"context"
	"fmt"

	"github.com/tilepress/backdrop/block"
	"github.com/tilepress/backdrop/colorval"
	"github.com/tilepress/backdrop/compositor"
	"github.com/tilepress/backdrop/resource"
	"github.com/tilepress/backdrop/table"
)

// Store is C4: the 2D grid of blocks for one group, plus the group
// attributes the composite core and block completion need. Group
// attributes are unexported with accessor methods so Store can
// satisfy compositor.Backdrop's method set directly.
type Store struct {
	Shared *Shared

	width, height int // pixel bounds of the group
	variant       table.Variant
	nComps        int

	isolated        bool
	knockout        bool
	shapeTracking   bool
	compositeToPage bool

	InitColor      []colorval.Value
	InitAlpha      colorval.Value
	InitGroupAlpha colorval.Value
	InitInfo       colorval.Info

	Parent  *Store // nil for the page backdrop
	Initial *Store // non-isolated groups' background-lookup anchor; nil for isolated

	PageColor  []colorval.Value
	Converter  table.ColorConverter
	OutVariant table.Variant
	OutComps   int
	Transfer   table.SoftMaskTransfer
	// LateColor, when set, is the page-group late-color update applied
	// before the soft-mask transfer (design note (b)).
	LateColor func(*table.Table)

	Depth int // nesting depth, used as the resource pool key's Depth

	blocks map[[2]int]*block.Block
}

// NewOptions groups Store's construction parameters (bd_backdropNew).
type NewOptions struct {
	Width, Height                           int
	Isolated, Knockout, ShapeTracking        bool
	CompositeToPage                         bool
	Variant                                  table.Variant
	NComps                                   int
	Parent, Initial                         *Store
	InitColor                                []colorval.Value
	InitAlpha, InitGroupAlpha                colorval.Value
	InitInfo                                 colorval.Info
	PageColor                                []colorval.Value
	Converter                                table.ColorConverter
	OutVariant                               table.Variant
	OutComps                                 int
	Transfer                                 table.SoftMaskTransfer
}

// New creates a group's Store (bd_backdropNew).
func New(shared *Shared, opts NewOptions) *Store {
	depth := 0
	if opts.Parent != nil {
		depth = opts.Parent.Depth + 1
	}
	return &Store{
		Shared: shared, width: opts.Width, height: opts.Height,
		variant: opts.Variant, nComps: opts.NComps,
		isolated: opts.Isolated, knockout: opts.Knockout, shapeTracking: opts.ShapeTracking, compositeToPage: opts.CompositeToPage,
		InitColor: opts.InitColor, InitAlpha: opts.InitAlpha, InitGroupAlpha: opts.InitGroupAlpha, InitInfo: opts.InitInfo,
		Parent: opts.Parent, Initial: opts.Initial,
		PageColor: opts.PageColor, Converter: opts.Converter, OutVariant: opts.OutVariant, OutComps: opts.OutComps, Transfer: opts.Transfer,
		Depth:  depth,
		blocks: map[[2]int]*block.Block{},
	}
}

func (s *Store) Variant() table.Variant { return s.variant }
func (s *Store) NComps() int            { return s.nComps }
func (s *Store) Isolated() bool         { return s.isolated }
func (s *Store) Knockout() bool         { return s.knockout }
func (s *Store) ShapeTracking() bool    { return s.shapeTracking }
func (s *Store) CompositeToPage() bool  { return s.compositeToPage }

func (s *Store) gridDims() (bx, by int) {
	bw, bh := s.Shared.BlockWidth, s.Shared.BlockHeight
	bx = (s.width + bw - 1) / bw
	by = (s.height + bh - 1) / bh
	return
}

func (s *Store) blockDims(bx, by int) (w, h int) {
	w = s.Shared.BlockWidth
	if (bx+1)*w > s.width {
		w = s.width - bx*w
	}
	h = s.Shared.BlockHeight
	if (by+1)*h > s.height {
		h = s.height - by*h
	}
	return
}

// Block returns (creating on first touch) the block at grid position
// (bx, by), satisfying compositor.Backdrop and reader.Source.
func (s *Store) Block(bx, by int) (*block.Block, error) {
	key := [2]int{bx, by}
	if b, ok := s.blocks[key]; ok {
		return b, nil
	}
	w, h := s.blockDims(bx, by)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("backdrop: block(%d,%d) out of grid bounds", bx, by)
	}

	var b *block.Block
	var err error
	if s.Initial != nil {
		initBlk, ierr := s.Initial.Block(bx, by)
		if ierr != nil {
			return nil, fmt.Errorf("backdrop: non-isolated initial block(%d,%d): %w", bx, by, ierr)
		}
		b, err = block.NewNonIsolatedInsert(s.variant, s.nComps, initBlk)
	} else {
		b, err = block.NewIsolatedInsert(s.variant, s.nComps, w, h, s.InitColor, s.InitAlpha, s.InitGroupAlpha, s.InitInfo, false)
	}
	if err != nil {
		return nil, fmt.Errorf("backdrop: create block(%d,%d): %w", bx, by, err)
	}
	s.blocks[key] = b
	return b, nil
}

// Geometry implements compositor.Backdrop.
func (s *Store) Geometry() compositor.Geometry {
	return compositor.Geometry{
		BlockWidth: s.Shared.BlockWidth, BlockHeight: s.Shared.BlockHeight,
		Width: s.width, Height: s.height,
	}
}

// NonIsolatedInitial implements compositor.Backdrop.
func (s *Store) NonIsolatedInitial() compositor.Backdrop {
	if s.Initial == nil {
		return nil
	}
	return s.Initial
}

// BlockDims/Bounds/Unlink/Relink/EnsureLoaded implement reader.Source.
func (s *Store) BlockDims() (int, int) { return s.Shared.BlockWidth, s.Shared.BlockHeight }
func (s *Store) Bounds() (int, int)    { return s.width, s.height }
func (s *Store) Unlink(bx, by int)     { s.Shared.unlink(s, bx, by) }
func (s *Store) Relink(bx, by int) {
	if b, ok := s.blocks[[2]int{bx, by}]; ok && b.Flags.Purgeable {
		s.Shared.pushPurge(s, bx, by)
	}
}
func (s *Store) EnsureLoaded(bx, by int) error {
	b, ok := s.blocks[[2]int{bx, by}]
	if !ok {
		return fmt.Errorf("backdrop: EnsureLoaded: block(%d,%d) not present", bx, by)
	}
	if b.Storage != block.Disk {
		return nil
	}
	key := resource.Key{Depth: s.Depth, BX: bx, BY: by}
	return s.ensureLoadedWithRetry(context.Background(), b, key)
}
