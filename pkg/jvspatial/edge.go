package jvspatial

import "sync"

// EdgeCollection is the logical storage collection for every Edge
// subclass (spec §3).
const EdgeCollection = "edge"

// Edge extends Object with source_id/target_id (both protected after
// construction) and directed.
type Edge struct {
	Object

	mu       sync.RWMutex
	sourceID string
	targetID string
	directed bool
}

// InitEdge completes construction; concrete Edge subclasses call this
// instead of Object.Init directly.
func (e *Edge) InitEdge(id, typeName string, ctx map[string]any, sourceID, targetID string, directed bool) {
	e.Object.Init(id, typeName, ctx)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sourceID = sourceID
	e.targetID = targetID
	e.directed = directed
}

// SourceID returns the source node id.
func (e *Edge) SourceID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sourceID
}

// TargetID returns the target node id.
func (e *Edge) TargetID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.targetID
}

// Directed reports whether traversal direction is meaningful for this
// edge (false for edges created with direction="both", spec §4.5).
func (e *Edge) Directed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.directed
}

// SetSourceID/SetTargetID exist only to satisfy the "protected after
// construction" rule explicitly: both always fail once constructed,
// since nothing in this package ever needs to relink an edge endpoint
// post-creation.
func (e *Edge) SetSourceID(id string) error {
	if e.Object.constructed {
		return &AttributeProtectionError{Attr: "source_id", Type: e.TypeName()}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sourceID = id
	return nil
}

func (e *Edge) SetTargetID(id string) error {
	if e.Object.constructed {
		return &AttributeProtectionError{Attr: "target_id", Type: e.TypeName()}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.targetID = id
	return nil
}

// OtherEndpoint returns the endpoint id on the opposite side of
// fromID, or "" if fromID is neither endpoint.
func (e *Edge) OtherEndpoint(fromID string) string {
	switch fromID {
	case e.SourceID():
		return e.TargetID()
	case e.TargetID():
		return e.SourceID()
	default:
		return ""
	}
}

// collection names the storage collection every Edge subclass lives
// in; promoted onto embedding types so they satisfy storable/edgeLike.
func (e *Edge) collection() string { return EdgeCollection }

// Export adds source_id/target_id/directed to the base Object export
// (spec §6).
func (e *Edge) Export() map[string]any {
	doc := e.Object.Export()
	doc["source_id"] = e.SourceID()
	doc["target_id"] = e.TargetID()
	doc["directed"] = e.Directed()
	return doc
}

func edgeFromRecord(rec map[string]any) *Edge {
	e := &Edge{}
	ctx, _ := rec["context"].(map[string]any)
	id, _ := rec["id"].(string)
	typeName, _ := rec["type_name"].(string)
	source, _ := rec["source_id"].(string)
	target, _ := rec["target_id"].(string)
	directed, _ := rec["directed"].(bool)
	e.InitEdge(id, typeName, ctx, source, target, directed)
	return e
}
