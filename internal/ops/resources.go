package ops

import (
	"sort"
	"sync"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/operror"
)

// Resource is a native object scripts refer to by rid.
type Resource interface {
	Name() string
	Close() error
}

// ResourceTable owns the resources of one execution context.
type ResourceTable struct {
	mu    sync.Mutex
	next  uint32
	items map[uint32]Resource
}

// NewResourceTable creates an empty table. Rids start at 1.
func NewResourceTable() *ResourceTable {
	return &ResourceTable{next: 1, items: make(map[uint32]Resource)}
}

// Add stores r and returns its rid.
func (t *ResourceTable) Add(r Resource) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	rid := t.next
	t.next++
	t.items[rid] = r
	return rid
}

// Get returns the resource under rid.
func (t *ResourceTable) Get(rid uint32) (Resource, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.items[rid]
	if !ok {
		return nil, operror.BadResourceID(rid)
	}
	return r, nil
}

// GetAs returns the resource under rid if it has type T.
func GetAs[T Resource](t *ResourceTable, rid uint32) (T, error) {
	var zero T
	r, err := t.Get(rid)
	if err != nil {
		return zero, err
	}
	typed, ok := r.(T)
	if !ok {
		return zero, operror.BadResourceID(rid)
	}
	return typed, nil
}

// Close removes and closes the resource under rid.
func (t *ResourceTable) Close(rid uint32) error {
	t.mu.Lock()
	r, ok := t.items[rid]
	delete(t.items, rid)
	t.mu.Unlock()

	if !ok {
		return operror.BadResourceID(rid)
	}
	return r.Close()
}

// Entry is a rid and resource name pair.
type Entry struct {
	RID  uint32 `json:"rid"`
	Name string `json:"name"`
}

// Entries lists open resources ordered by rid.
func (t *ResourceTable) Entries() []Entry {
	t.mu.Lock()
	out := make([]Entry, 0, len(t.items))
	for rid, r := range t.items {
		out = append(out, Entry{RID: rid, Name: r.Name()})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].RID < out[j].RID })
	return out
}

// Len returns the number of open resources.
func (t *ResourceTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// CloseAll closes every resource.
func (t *ResourceTable) CloseAll() {
	t.mu.Lock()
	items := t.items
	t.items = make(map[uint32]Resource)
	t.mu.Unlock()

	for _, r := range items {
		r.Close()
	}
}
