package backdrop

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tilepress/backdrop/block"
)

// RegionComplete closes the region for this store (bd_regionComplete):
// every touched, not-yet-complete block of the store is compacted,
// merged and color-converted (C8), then reclaimed per the store's
// retention mode.
func (s *Store) RegionComplete(ctx context.Context, canPoach bool) error {
	for key, b := range s.blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if b.Flags.Complete || !b.Flags.Touched {
			continue
		}
		opts := block.CompleteOptions{
			CompositeToPage: s.CompositeToPage(),
			PageColor:       s.PageColor,
			Converter:       s.Converter,
			OutVariant:      s.OutVariant,
			OutComps:        s.OutComps,
			LateColor:       s.LateColor,
			Transfer:        s.Transfer,
		}
		if err := b.Complete(opts); err != nil {
			return fmt.Errorf("backdrop: complete block(%d,%d): %w", key[0], key[1], err)
		}
		if canPoach {
			s.tryPoachIntoParent(key[0], key[1], b)
		}
		if err := s.reclaim(ctx, key[0], key[1], b); err != nil {
			return fmt.Errorf("backdrop: reclaim block(%d,%d): %w", key[0], key[1], err)
		}
	}
	return nil
}

// tryPoachIntoParent hands a completed non-isolated child block's
// storage to the aligned parent block outright, skipping a
// pixel-by-pixel composite into the parent entirely. Poaching is only
// attempted when the child needed no color conversion or soft-mask
// transfer of its own, since Poach moves raw table data without
// re-running either step.
func (s *Store) tryPoachIntoParent(bx, by int, b *block.Block) {
	if s.Parent == nil || s.CompositeToPage() || s.Converter != nil || s.Transfer != nil {
		return
	}
	pb, err := s.Parent.Block(bx, by)
	if err != nil || pb.Flags.Touched {
		return
	}
	pb.Poach(b)
}

// reclaim implements the block reclaim step from §4.2: with
// RetainNothing the block is dropped from the store; otherwise it is
// purged to the spill file whenever a Spiller is configured, and
// marked purgeable and linked onto the shared purge list when none is.
func (s *Store) reclaim(ctx context.Context, bx, by int, b *block.Block) error {
	if s.Shared.Retention == RetainNothing {
		delete(s.blocks, [2]int{bx, by})
		return nil
	}
	if s.Shared.Spiller != nil {
		if err := b.Purge(s.Shared.Spiller, s.Shared.Pool); err != nil {
			return fmt.Errorf("purge: %w", err)
		}
		if b.Disk != nil {
			s.Shared.addSpillBytes(b.Disk.Length)
		}
		return nil
	}
	b.Flags.Purgeable = true
	s.Shared.pushPurge(s, bx, by)
	return nil
}

// CompositeRegions fans a page's regions out across worker goroutines,
// one per region, matching §5's "multiple worker threads composite
// disjoint regions in parallel" model. work receives only the group
// context and its region; any compositor.Context it uses is its own to
// create.
func CompositeRegions[R any](ctx context.Context, regions []R, work func(ctx context.Context, region R) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range regions {
		r := r
		g.Go(func() error {
			return work(gctx, r)
		})
	}
	return g.Wait()
}
