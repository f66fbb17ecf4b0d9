package booklist

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// Registry hands out the instance ids that namespace each builder's tables
// and tracks which are live. Ids are never reused within a registry, so a
// stale id held by a caller can never address another builder's rows.
type Registry struct {
	mu       sync.Mutex
	next     uint32
	nextFlat uint32
	live     *roaring.Bitmap
}

// DefaultRegistry is used by builders created without one.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{live: roaring.New()}
}

// Allocate returns a fresh builder id and marks it live.
func (r *Registry) Allocate() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.live.Add(r.next)
	return r.next
}

// AllocateFlattened returns a fresh id for a flattened list.
func (r *Registry) AllocateFlattened() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextFlat++
	return r.nextFlat
}

// Release marks id as no longer live.
func (r *Registry) Release(id uint32) {
	r.mu.Lock()
	r.live.Remove(id)
	r.mu.Unlock()
}

// Live returns the ids of open builders in ascending order.
func (r *Registry) Live() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live.ToArray()
}
