// Package registry implements jvspatial's process-wide EntityRegistry
// (spec §4.3): a type_name → constructor map populated when a concrete
// Node/Edge/Walker subclass is defined, used to instantiate the right
// Go type when a record is loaded back out of storage.
//
// This mirrors nornicdb's own label/schema registries
// (pkg/storage/schema.go): written once at class-definition time
// (here, from a package init()), read freely thereafter, guarded by a
// sync.RWMutex the same way.
package registry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Constructor builds a zero-value instance of a registered type, ready
// to be populated from a storage record.
type Constructor func() any

// Registry is a process-wide type_name -> Constructor map.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Constructor
}

// Default is the process-wide registry instance. Concrete entity
// packages register against it from their own init() functions,
// exactly as nornicdb's schema constraints are installed once at
// startup and read concurrently afterward.
var Default = New()

// New creates an empty registry. Most callers use Default; New exists
// for isolated tests.
func New() *Registry {
	return &Registry{types: make(map[string]Constructor)}
}

// Register associates typeName with a constructor. Re-registering the
// same type_name overwrites the previous constructor — this allows
// tests to stub a type without restarting the process.
func (r *Registry) Register(typeName string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[typeName] = ctor
}

// Lookup returns the constructor for typeName, or (nil, false) if no
// subclass ever registered it — callers fall back to the base
// Node/Edge type on a miss (spec §4.3), so old data stays readable.
func (r *Registry) Lookup(typeName string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.types[typeName]
	return ctor, ok
}

// New builds an instance of typeName, or nil if unregistered.
func (r *Registry) New(typeName string) any {
	ctor, ok := r.Lookup(typeName)
	if !ok {
		return nil
	}
	return ctor()
}

// IDKind selects the single-letter prefix spec §4.3/§6 assigns by
// entity kind ("n" for nodes, "e" for edges, "o" for generic objects).
type IDKind string

const (
	KindNode   IDKind = "n"
	KindEdge   IDKind = "e"
	KindObject IDKind = "o"
)

// NewID generates an id of the form "<prefix>:<type_name>:<opaque>"
// (spec §6). The opaque portion is a UUIDv4 — collision-resistant and
// unparsed by anything in this module (spec §6: "treat IDs as opaque
// strings... do not parse"), the same dependency
// siherrmann-grapher/model uses for its own node/edge ids.
func NewID(kind IDKind, typeName string) string {
	return fmt.Sprintf("%s:%s:%s", kind, typeName, uuid.New().String())
}
