package backdrop

import (
	"context"
	"errors"
	"testing"

	"github.com/tilepress/backdrop/block"
	"github.com/tilepress/backdrop/cce"
	"github.com/tilepress/backdrop/colorval"
	"github.com/tilepress/backdrop/compositor"
	"github.com/tilepress/backdrop/resource"
	"github.com/tilepress/backdrop/table"
)

// TestHandleAllocFailureSpillsAPurgeableBlock checks that the
// writeToDisk rung of the low-memory action ladder actually frees a
// block when one is sitting on the shared purge list and a spill file
// is available, and that a non-allocation error passes straight
// through unmodified.
func TestHandleAllocFailureSpillsAPurgeableBlock(t *testing.T) {
	shared := Prepare(PrepareOptions{BlockWidth: 16, BlockHeight: 16, RegionHeight: 16, Retention: RetainBand, MinResources: 1, MaxResources: 2})
	s := buildGridStore(t, shared)
	if err := s.RegionComplete(context.Background(), false); err != nil {
		t.Fatalf("RegionComplete: %v", err)
	}
	if shared.purgeHead == nil {
		t.Fatalf("expected RetainBand with no spiller to push completed blocks onto the purge list")
	}

	if err := s.handleAllocFailure(errors.New("not an allocation failure")); err == nil {
		t.Errorf("handleAllocFailure on an unrelated error should pass it through, got nil")
	}

	// A background purge sweep would ordinarily attach the spiller
	// lazily, once memory pressure actually requires writing purgeable
	// blocks out; simulate that here to exercise the ladder's
	// writeToDisk rung in isolation from RegionComplete's own eager
	// reclaim policy.
	shared.Spiller = block.NewSpiller(&memSpill{})
	if err := s.handleAllocFailure(resource.ErrExhausted); err != nil {
		t.Errorf("handleAllocFailure with a purgeable block and a spiller present returned an error: %v", err)
	}
	if shared.purgeHead == nil || shared.purgeHead.nx != nil {
		t.Errorf("one spill should unlink exactly one of the two purgeable blocks, leaving the other on the list")
	}
}

// TestHandleAllocFailureBottomsOutWithoutASpiller checks that the
// ladder reports failure once writeToDisk cannot do anything (no
// spiller configured), rather than silently reporting success.
func TestHandleAllocFailureBottomsOutWithoutASpiller(t *testing.T) {
	shared := Prepare(PrepareOptions{BlockWidth: 16, BlockHeight: 16, RegionHeight: 16, Retention: RetainBand, MinResources: 1, MaxResources: 2})
	s := New(shared, NewOptions{
		Width: 16, Height: 16, Isolated: true, Variant: table.Isolated, NComps: 3,
		InitColor: []colorval.Value{0, 0, 0},
	})
	ctx := compositor.NewContext()
	if err := ctx.RunInfo(s, compositor.SourceState{BlendMode: cce.Normal, BaseInfo: colorval.Info{Label: 1}}); err != nil {
		t.Fatalf("RunInfo: %v", err)
	}
	if err := ctx.CompositeBlock(s, 0, 0, 16, 16, []colorval.Value{colorval.One, 0, 0}, colorval.One, 0); err != nil {
		t.Fatalf("CompositeBlock: %v", err)
	}
	if err := ctx.FlushCoalesced(s); err != nil {
		t.Fatalf("FlushCoalesced: %v", err)
	}

	if err := s.handleAllocFailure(resource.ErrExhausted); err == nil {
		t.Errorf("handleAllocFailure with no spiller and nothing purgeable should fail, got nil")
	} else if !errors.Is(err, resource.ErrExhausted) {
		t.Errorf("handleAllocFailure error = %v, want it to wrap the original cause", err)
	}
}
