package backdrop

import (
	"context"
	"errors"
	"fmt"

	"github.com/tilepress/backdrop/block"
	"github.com/tilepress/backdrop/resource"
)

// lowMemoryAction is one rung of the out-of-memory response ladder
// handleAllocFailure walks when a resource or table allocation fails:
// compress -> shareBlists -> writeToDisk -> shareBlists2 -> nothingMore.
type lowMemoryAction int

const (
	actionCompression lowMemoryAction = iota
	actionShareBlists1
	actionWriteToDisk
	actionShareBlists2
	actionNothingMore
)

func (a lowMemoryAction) next() lowMemoryAction {
	if a == actionNothingMore {
		return actionNothingMore
	}
	return a + 1
}

// handleAllocFailure responds to a resource.ErrExhausted or
// block.ErrAlloc surfaced while materialising a block, walking the
// low-memory action ladder until a rung frees enough room for the
// caller to retry, or the ladder bottoms out.
//
// Only writeToDisk does real work in this realization: there is no
// separate compressed-blist representation or secondary blist pool to
// share here (a block already holds the most compact in-memory form
// Complete can produce), so compression and the two shareBlists rungs
// are structural no-ops that simply advance the ladder before
// writeToDisk spills the oldest purgeable block on this page.
func (s *Store) handleAllocFailure(cause error) error {
	if !errors.Is(cause, resource.ErrExhausted) && !errors.Is(cause, block.ErrAlloc) {
		return cause
	}
	for action := actionCompression; action != actionNothingMore; action = action.next() {
		if action == actionWriteToDisk && s.Shared.spillOnePurgeable() {
			return nil
		}
	}
	return fmt.Errorf("backdrop: out of memory, exhausted low-memory action ladder: %w", cause)
}

// ensureLoadedWithRetry reattaches a purged block's resource and data
// from the shared spill file. If Load fails with resource.ErrExhausted
// or block.ErrAlloc it walks the low-memory action ladder and retries
// once. Load acquires its resource through the blocking Pool.Get, which
// waits for a free slot instead of returning ErrExhausted, so an
// exhausted pool makes this call wait rather than walk the ladder.
func (s *Store) ensureLoadedWithRetry(ctx context.Context, b *block.Block, key resource.Key) error {
	err := b.Load(ctx, s.Shared.Spiller, s.Shared.Pool, key)
	if err == nil {
		return nil
	}
	if ladderErr := s.handleAllocFailure(err); ladderErr != nil {
		return ladderErr
	}
	return b.Load(ctx, s.Shared.Spiller, s.Shared.Pool, key)
}
