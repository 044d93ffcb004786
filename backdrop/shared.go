// Package backdrop wires the block/table/resource/compositor/reader
// packages into the C4 Store and BackdropShared described in the
// spec: the per-group grid of blocks, shared page-wide pooling and
// spill state, and the region close / low-memory action ladder.
package backdrop

import (
	"sync"

	"github.com/tilepress/backdrop/block"
	"github.com/tilepress/backdrop/resource"
)

// Retention controls whether a store's completed blocks may be freed
// at region close, kept for the current band, or kept for the whole
// page.
type Retention int

const (
	RetainNothing Retention = iota
	RetainBand
	RetainPage
)

// Shared is BackdropShared: state common to every Store created for
// one page. Only the fields documented here as mutable at run time
// (the purge list and the spill byte counter) are mutated after
// Prepare returns; everything else is read-only for the page's
// lifetime.
type Shared struct {
	BlockWidth, BlockHeight int
	RegionHeight            int
	Retention               Retention
	ReserveSize             int

	Pool    *resource.Pool
	Spiller *block.Spiller

	// mu guards purgeable-list mutation and the spill byte counter.
	// Spill file-offset assignment is guarded separately, by the
	// Spiller's own mutex.
	mu         sync.Mutex
	purgeHead  *purgeNode
	purgeTail  *purgeNode
	spillBytes int64
}

// SpillBytes reports the total byte count written to the spill file so
// far across every store sharing this page, the disk-bytes counter the
// spec documents as mutable under the backdrop mutex.
func (sh *Shared) SpillBytes() int64 {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.spillBytes
}

func (sh *Shared) addSpillBytes(n int64) {
	sh.mu.Lock()
	sh.spillBytes += n
	sh.mu.Unlock()
}

// spillOnePurgeable pops the oldest block on the shared purge list and
// writes it to the spill file, freeing its pooled resource. It reports
// whether a block was actually freed, the writeToDisk rung of the
// low-memory action ladder's success condition.
func (sh *Shared) spillOnePurgeable() bool {
	sh.mu.Lock()
	n := sh.purgeHead
	if n != nil {
		if n.prev != nil {
			n.prev.nx = n.nx
		} else {
			sh.purgeHead = n.nx
		}
		if n.nx != nil {
			n.nx.prev = n.prev
		} else {
			sh.purgeTail = n.prev
		}
	}
	sh.mu.Unlock()
	if n == nil || sh.Spiller == nil {
		return false
	}
	b, ok := n.store.blocks[[2]int{n.bx, n.by}]
	if !ok || b.Storage != block.Memory {
		return false
	}
	if err := b.Purge(sh.Spiller, sh.Pool); err != nil {
		return false
	}
	sh.addSpillBytes(b.Disk.Length)
	return true
}

type purgeNode struct {
	store    *Store
	bx, by   int
	prev, nx *purgeNode
}

// PrepareOptions configures a page's shared pooling (bd_backdropPrepare).
type PrepareOptions struct {
	BlockWidth, BlockHeight int
	RegionHeight            int
	Retention               Retention
	ReserveSize             int

	// MinResources/MaxResources size the resource pool; MaxDepth
	// bounds how many nested groups may be simultaneously mid-region,
	// used only to size the pool's resource count (one per (depth,
	// bx, by) tuple active at once per the spec's resource key).
	MinResources, MaxResources int
	NTables                    int

	SpillFile block.SpillFile
}

// Prepare sets up a page's shared pools and spill context
// (bd_backdropPrepare).
func Prepare(opts PrepareOptions) *Shared {
	bw, bh := opts.BlockWidth, opts.BlockHeight
	if bw <= 0 {
		bw = 128
	}
	if bh <= 0 {
		bh = 128
	}
	dataSize := bw // one map/RLE row at a time is bw bytes; Resource sizes per spec's "max-block-size data buffer"
	nTables := opts.NTables
	if nTables <= 0 {
		nTables = 4
	}
	pool := resource.NewPool(opts.MinResources, opts.MaxResources, dataSize, bh, nTables)

	var spiller *block.Spiller
	if opts.SpillFile != nil {
		spiller = block.NewSpiller(opts.SpillFile)
	}

	return &Shared{
		BlockWidth:   bw,
		BlockHeight:  bh,
		RegionHeight: opts.RegionHeight,
		Retention:    opts.Retention,
		ReserveSize:  opts.ReserveSize,
		Pool:         pool,
		Spiller:      spiller,
	}
}

// pushPurge links (s, bx, by) onto the shared purgeable list under
// Shared.mu, per the spec's "purgeable blocks are in a doubly-linked
// list owned by BackdropShared under a single mutex".
func (sh *Shared) pushPurge(s *Store, bx, by int) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	n := &purgeNode{store: s, bx: bx, by: by}
	if sh.purgeTail != nil {
		sh.purgeTail.nx = n
		n.prev = sh.purgeTail
	} else {
		sh.purgeHead = n
	}
	sh.purgeTail = n
}

// unlink removes (bx, by) of s from the purge list, if present, so
// a Reader or further composite can touch the block without racing
// the (not-yet-implemented-here) background purge sweep.
func (sh *Shared) unlink(s *Store, bx, by int) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	for n := sh.purgeHead; n != nil; n = n.nx {
		if n.store == s && n.bx == bx && n.by == by {
			if n.prev != nil {
				n.prev.nx = n.nx
			} else {
				sh.purgeHead = n.nx
			}
			if n.nx != nil {
				n.nx.prev = n.prev
			} else {
				sh.purgeTail = n.prev
			}
			return
		}
	}
}
