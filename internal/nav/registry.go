// Package nav remembers ordered id lists so a detail view can step to the
// previous or next sibling.
package nav

import "sync"

const (
	ListSessions = "sessions"
	ListTraces   = "traces"
)

type Registry struct {
	mu    sync.RWMutex
	lists map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{lists: make(map[string][]string)}
}

// Register replaces the list stored under listKey.
func (r *Registry) Register(listKey string, ids []string) {
	cp := make([]string, len(ids))
	copy(cp, ids)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists[listKey] = cp
}

func (r *Registry) List(listKey string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.lists[listKey]
	cp := make([]string, len(ids))
	copy(cp, ids)
	return cp
}

// Position returns the zero-based index of id and the list length; idx is
// -1 when id is not in the list.
func (r *Registry) Position(listKey, id string) (idx, total int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.lists[listKey]
	for i, v := range ids {
		if v == id {
			return i, len(ids)
		}
	}
	return -1, len(ids)
}

// Neighbors returns the ids before and after id. Missing neighbours are "".
func (r *Registry) Neighbors(listKey, id string) (prev, next string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.lists[listKey]
	for i, v := range ids {
		if v != id {
			continue
		}
		if i > 0 {
			prev = ids[i-1]
		}
		if i+1 < len(ids) {
			next = ids[i+1]
		}
		return prev, next
	}
	return "", ""
}
