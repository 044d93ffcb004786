package resource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrExhausted is returned by TryGet when every resource slot is
// currently rented and none can be returned without blocking; it is
// the out-of-memory trigger backdrop.Store.handleAllocFailure responds
// to by walking the low-memory action ladder (spec.md §7).
var ErrExhausted = errors.New("resource: pool exhausted")

// Pool is a fixed-size, reusable pool of Resources sized for one block
// of the pool's configured dimensions. Acquisition blocks (bd_resourceGet)
// until a slot is available; this is the only blocking point the resource
// system introduces, per the concurrency model.
type Pool struct {
	sem  *semaphore.Weighted
	mu   sync.Mutex
	free []*Resource
	max  int64
	min  int64

	dataSize, height, nTables int
}

// NewPool creates a pool of resources sized to hold a block with
// dataSize bytes of row data, height rows and nTables table pointers.
// min resources are pre-allocated eagerly; the pool never grows beyond
// max concurrently rented resources.
func NewPool(min, max int, dataSize, height, nTables int) *Pool {
	if max < min {
		max = min
	}
	p := &Pool{
		sem: semaphore.NewWeighted(int64(max)),
		max: int64(max),
		min: int64(min),
	}
	p.free = make([]*Resource, 0, max)
	for i := 0; i < min; i++ {
		p.free = append(p.free, newResource(dataSize, height, nTables))
	}
	p.dataSize, p.height, p.nTables = dataSize, height, nTables
	return p
}

// Get blocks until a resource slot is available (or ctx is done),
// returning a Resource reset and keyed for key. Callers must Put it
// back exactly once.
func (p *Pool) Get(ctx context.Context, key Key) (*Resource, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("resource: acquire: %w", err)
	}

	p.mu.Lock()
	var r *Resource
	if n := len(p.free); n > 0 {
		r = p.free[n-1]
		p.free = p.free[:n-1]
	}
	p.mu.Unlock()

	if r == nil {
		r = newResource(p.dataSize, p.height, p.nTables)
	}
	r.Reset(key)
	return r, nil
}

// TryGet acquires a resource slot without blocking, returning
// ErrExhausted immediately if every slot is currently rented. It is
// the only source of ErrExhausted in this package; Get blocks instead.
func (p *Pool) TryGet(key Key) (*Resource, error) {
	if !p.sem.TryAcquire(1) {
		return nil, ErrExhausted
	}

	p.mu.Lock()
	var r *Resource
	if n := len(p.free); n > 0 {
		r = p.free[n-1]
		p.free = p.free[:n-1]
	}
	p.mu.Unlock()

	if r == nil {
		r = newResource(p.dataSize, p.height, p.nTables)
	}
	r.Reset(key)
	return r, nil
}

// Put returns a resource to the pool's freelist and releases its
// semaphore slot, making it available to the next blocked Get.
func (p *Pool) Put(r *Resource) {
	p.mu.Lock()
	p.free = append(p.free, r)
	p.mu.Unlock()
	p.sem.Release(1)
}

// Inventory reports the number of resources currently sitting idle on
// the freelist and the configured maximum concurrent rentals.
func (p *Pool) Inventory() (idle int, max int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free), int(p.max)
}
