package jvspatial

import (
	"context"
	"sync"
)

// NodeCollection is the logical storage collection for every Node
// subclass (spec §3).
const NodeCollection = "node"

// Node extends Object with edge_ids, an unordered set of incident edge
// ids maintained as a denormalized index (spec §3) so GraphOps.Nodes
// doesn't have to scan the edge collection for every traversal step.
type Node struct {
	Object

	emu     sync.RWMutex
	edgeIDs map[string]struct{}
}

// InitNode completes construction of the embedding Object and the
// edge_ids set; concrete subclasses call this (instead of Object.Init
// directly) from their own constructors.
func (n *Node) InitNode(id, typeName string, ctx map[string]any, edgeIDs []string) {
	n.Object.Init(id, typeName, ctx)
	n.emu.Lock()
	defer n.emu.Unlock()
	n.edgeIDs = make(map[string]struct{}, len(edgeIDs))
	for _, id := range edgeIDs {
		n.edgeIDs[id] = struct{}{}
	}
}

// EdgeIDs returns a snapshot of the incident edge id set.
func (n *Node) EdgeIDs() []string {
	n.emu.RLock()
	defer n.emu.RUnlock()
	out := make([]string, 0, len(n.edgeIDs))
	for id := range n.edgeIDs {
		out = append(out, id)
	}
	return out
}

// HasEdge reports whether edgeID is in the node's edge_ids set.
func (n *Node) HasEdge(edgeID string) bool {
	n.emu.RLock()
	defer n.emu.RUnlock()
	_, ok := n.edgeIDs[edgeID]
	return ok
}

// addEdge/removeEdge mutate edge_ids; unexported because the only
// correct way to add an edge id is through GraphOps.Connect and the
// only correct way to remove one is cascade-delete, both in this
// package.
func (n *Node) addEdge(edgeID string) {
	n.emu.Lock()
	defer n.emu.Unlock()
	if n.edgeIDs == nil {
		n.edgeIDs = map[string]struct{}{}
	}
	n.edgeIDs[edgeID] = struct{}{}
}

func (n *Node) removeEdge(edgeID string) {
	n.emu.Lock()
	defer n.emu.Unlock()
	delete(n.edgeIDs, edgeID)
}

// collection names the storage collection every Node subclass lives
// in; promoted onto embedding types so they satisfy storable/nodeLike.
func (n *Node) collection() string { return NodeCollection }

// Export adds edge_ids to the base Object export (spec §6: persisted
// record format for Nodes).
func (n *Node) Export() map[string]any {
	doc := n.Object.Export()
	doc["edge_ids"] = n.EdgeIDs()
	return doc
}

// nodeFromRecord rebuilds a base *Node from a stored record. Used by
// GraphContext/GraphOps when the registry has no constructor for the
// record's type_name (spec §4.3: "falling back to the base... when
// unknown").
func nodeFromRecord(rec map[string]any) *Node {
	n := &Node{}
	ctx, _ := rec["context"].(map[string]any)
	id, _ := rec["id"].(string)
	typeName, _ := rec["type_name"].(string)
	var edgeIDs []string
	if raw, ok := rec["edge_ids"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				edgeIDs = append(edgeIDs, s)
			}
		}
	}
	n.InitNode(id, typeName, ctx, edgeIDs)
	return n
}

// Connect creates a plain *Edge from n to other (spec §4.5). Promoted
// onto every Node subclass, so `user.Connect(ctx, gc, other, "out", nil)`
// works the same as calling jvspatial.Connect directly.
func (n *Node) Connect(ctx context.Context, gc *GraphContext, other nodeLike, direction string, edgeCtx map[string]any) (*Edge, error) {
	return Connect(ctx, gc, n, other, direction, edgeCtx)
}

// Nodes returns the nodes connected to n, filtered per opts (spec
// §4.5).
func (n *Node) Nodes(ctx context.Context, gc *GraphContext, opts NodesOptions) ([]Entity, error) {
	return Nodes(ctx, gc, n, opts)
}

// Edges returns the edges incident to n (spec §4.5's "simpler
// variant").
func (n *Node) Edges(ctx context.Context, gc *GraphContext, direction string) ([]*Edge, error) {
	return Edges(ctx, gc, n, direction)
}
