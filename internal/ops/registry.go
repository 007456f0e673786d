package ops

import (
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
)

var (
	ErrUnknownOp   = errors.New("unknown op")
	ErrDuplicateOp = errors.New("op already registered")
)

// Definition describes a registered op.
type Definition struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

type entry struct {
	name string
	fn   dispatch.OpFunc[*State]
}

// Registry maps op names to dense ids and wrapped handlers.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	byName  map[string]uint32
	opts    []dispatch.Option
}

// NewRegistry creates an empty registry. opts are applied to every handler
// registered on it.
func NewRegistry(opts ...dispatch.Option) *Registry {
	return &Registry{
		byName: make(map[string]uint32),
		opts:   opts,
	}
}

// Register wraps h with the JSON adapter and assigns the next id.
func (r *Registry) Register(name string, h dispatch.Handler[*State]) (uint32, error) {
	if name == "" {
		return 0, fmt.Errorf("op name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateOp, name)
	}
	r.entries = append(r.entries, entry{name: name, fn: dispatch.JSON(name, h, r.opts...)})
	id := uint32(len(r.entries))
	r.byName[name] = id
	return id, nil
}

// MustRegister is Register for static op tables.
func (r *Registry) MustRegister(name string, h dispatch.Handler[*State]) uint32 {
	id, err := r.Register(name, h)
	if err != nil {
		panic(err)
	}
	return id
}

// Lookup returns the id of name.
func (r *Registry) Lookup(name string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

// Name returns the name registered under id.
func (r *Registry) Name(id uint32) (string, bool) {
	e, ok := r.get(id)
	return e.name, ok
}

// Dispatch runs op id. Contract violations panic out of here when the
// registry was built in strict mode.
func (r *Registry) Dispatch(s *State, id uint32, control, zeroCopy []byte) (dispatch.Op, error) {
	e, ok := r.get(id)
	if !ok {
		return dispatch.Op{}, fmt.Errorf("%w: id %d", ErrUnknownOp, id)
	}
	return e.fn(s, control, zeroCopy), nil
}

// Names returns the name to id map handed to scripts by core.ops().
func (r *Registry) Names() map[string]uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make(map[string]uint32, len(r.byName))
	for name, id := range r.byName {
		names[name] = id
	}
	return names
}

// Definitions lists registered ops ordered by id.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.entries))
	for i, e := range r.entries {
		defs = append(defs, Definition{ID: uint32(i + 1), Name: e.name})
	}
	return defs
}

// Len returns the number of registered ops.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) get(id uint32) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == 0 || int(id) > len(r.entries) {
		return entry{}, false
	}
	return r.entries[id-1], true
}
