package jvspatial

import (
	"sync"

	"github.com/TrueSelph/jvspatial-go/pkg/query"
	"github.com/TrueSelph/jvspatial-go/pkg/registry"
)

// Entity is satisfied by Object and everything that embeds it (Node,
// Edge, and every application-defined subclass). It is the type the
// registry, GraphContext, and hook dispatcher all operate against,
// standing in for the dynamic "instance of some Object subclass" the
// source language gets for free.
type Entity interface {
	ID() string
	TypeName() string
	Context() map[string]any
	Export() map[string]any
}

// Object is the base of every persisted entity (spec §3): id,
// type_name, and a context sub-document holding user-defined fields.
// id is protected: settable only while constructed is false, exactly
// the "internal flag set in the base constructor after all fields are
// initialized" design note §9 calls for — Go has no attribute
// interception, so the field is private and reassignment goes through
// SetID, the same enforcing-setter shape
// nornicdb/pkg/storage/schema.go uses for constraint-checked columns.
type Object struct {
	mu          sync.RWMutex
	id          string
	typeName    string
	context     map[string]any
	constructed bool
}

// Init assigns id/type_name/context and marks the object constructed;
// any concrete subclass's constructor must call this exactly once,
// after which id becomes protected. Exported so Node/Edge/Walker and
// user-defined subclasses embedding Object can complete construction
// from their own package.
func (o *Object) Init(id, typeName string, ctx map[string]any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ctx == nil {
		ctx = map[string]any{}
	}
	o.id = id
	o.typeName = typeName
	o.context = ctx
	o.constructed = true
}

// ID returns the object's identifier.
func (o *Object) ID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.id
}

// SetID reassigns id; protected after construction (spec §4.4).
func (o *Object) SetID(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.constructed {
		return &AttributeProtectionError{Attr: "id", Type: o.typeName}
	}
	o.id = id
	return nil
}

// TypeName returns the runtime type tag used for polymorphic storage
// (spec §4.3).
func (o *Object) TypeName() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.typeName
}

// Context returns a defensive copy of the user-defined field
// sub-document.
func (o *Object) Context() map[string]any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return query.DeepCopy(o.context)
}

// Get returns a single context field by dot-path, or nil if absent.
func (o *Object) Get(path string) any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	val, ok := dotGet(o.context, path)
	if !ok {
		return nil
	}
	return val
}

// Set assigns a single context field by dot-path, creating
// intermediate maps as needed. context itself is not protected — only
// id and the subclass-declared protected fields are.
func (o *Object) Set(path string, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	dotSet(o.context, path, value)
}

// SetContext replaces the entire context sub-document.
func (o *Object) SetContext(ctx map[string]any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.context = query.DeepCopy(ctx)
}

// Export produces the persisted document for Object alone (no
// edge_ids/source_id/etc.); Node and Edge call this and add their own
// reserved fields. transient fields never reach here because they are
// never stored in context to begin with (spec §4.4: "transient...
// excluded from the persisted/exported document" — jvspatial models
// transience by keeping such fields as ordinary unexported Go struct
// fields on the subclass rather than context entries, so there is
// nothing for Export to filter).
func (o *Object) Export() map[string]any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return map[string]any{
		"id":        o.id,
		"type_name": o.typeName,
		"context":   query.DeepCopy(o.context),
	}
}

// NewID delegates to the registry's id generator; kept as a method on
// no receiver (package func) below so callers don't need to import
// pkg/registry directly.
func NewID(kind registry.IDKind, typeName string) string {
	return registry.NewID(kind, typeName)
}
