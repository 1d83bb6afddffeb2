// Package registry tracks the workers that are currently running.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/holdline/internal/worker"
)

// Handle is one live worker. It is present in the registry only while the
// worker is running.
type Handle struct {
	ID        string
	Query     string
	Process   worker.Process
	StartedAt time.Time

	aborted atomic.Bool
}

// MarkAborted records that the worker was cancelled by a user. It reports
// false if the handle was already marked.
func (h *Handle) MarkAborted() bool {
	return h.aborted.CompareAndSwap(false, true)
}

// Aborted reports whether MarkAborted was called.
func (h *Handle) Aborted() bool {
	return h.aborted.Load()
}

// Registry is a concurrency-safe map of job id to live worker handle.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

func New() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Register adds h. An existing handle with the same id is replaced.
func (r *Registry) Register(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[h.ID] = h
}

// Remove deletes the handle for id if it is still h. Removing an absent
// handle is a no-op.
func (r *Registry) Remove(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.handles[h.ID]; ok && cur == h {
		delete(r.handles, h.ID)
	}
}

// Take removes and returns the handle for id.
func (r *Registry) Take(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	if ok {
		delete(r.handles, id)
	}
	return h, ok
}

// TakeAll removes every handle and returns them ordered by start time.
func (r *Registry) TakeAll() []*Handle {
	r.mu.Lock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	r.handles = make(map[string]*Handle)
	r.mu.Unlock()

	sortByStart(out)
	return out
}

// Snapshot returns the live handles ordered by start time without removing them.
func (r *Registry) Snapshot() []*Handle {
	r.mu.Lock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	r.mu.Unlock()

	sortByStart(out)
	return out
}

// Has reports whether a live handle exists for id.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

func sortByStart(hs []*Handle) {
	sort.SliceStable(hs, func(i, j int) bool {
		if hs[i].StartedAt.Equal(hs[j].StartedAt) {
			return hs[i].ID < hs[j].ID
		}
		return hs[i].StartedAt.Before(hs[j].StartedAt)
	})
}
