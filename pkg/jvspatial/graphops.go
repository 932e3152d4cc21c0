package jvspatial

import (
	"context"
	"reflect"

	"github.com/TrueSelph/jvspatial-go/pkg/registry"
	"github.com/TrueSelph/jvspatial-go/pkg/storage"
)

// TypeFilter is the Go-idiomatic stand-in for spec §4.5's dynamic
// "edge"/"node" parameters (a string, a class reference, a sequence of
// either, or a sequence of single-key {type_name: context_filter}
// mappings): a struct naming the type to restrict to and, optionally,
// a QueryEngine filter document evaluated against that type's stored
// record (typically dot-pathed under "context.").
type TypeFilter struct {
	TypeName string
	Filter   map[string]any
}

// NodesOptions configures GraphOps.Nodes (spec §4.5).
type NodesOptions struct {
	// Direction is "out" (default), "in", or "both".
	Direction string
	// Node restricts the returned far-side nodes by type/context.
	Node []TypeFilter
	// Edge restricts which incident edges are traversed by type/context.
	Edge []TypeFilter
	// Limit caps the number of returned nodes; 0 = unlimited.
	Limit int
	// Where is sugar for kwargs: each key k means context.k == v (spec
	// §4.5: "kwargs... each kwarg k=v becomes a context.k == v filter
	// clause").
	Where map[string]any
}

// Connect creates a plain *Edge between self and other (spec §4.5).
// Use ConnectAs for a custom edge subclass.
func Connect(ctx context.Context, gc *GraphContext, self, other nodeLike, direction string, edgeCtx map[string]any) (*Edge, error) {
	return ConnectAs[Edge](ctx, gc, self, other, direction, edgeCtx)
}

// ConnectAs creates an edge of type E between self and other (spec
// §4.5): source_id=self.ID(), target_id=other.ID() (swapped if
// direction="in"; directed=false if direction="both"). The new edge id
// is added to both endpoints' edge_ids, and the edge then both
// endpoints are persisted.
func ConnectAs[E any](ctx context.Context, gc *GraphContext, self, other nodeLike, direction string, edgeCtx map[string]any) (*E, error) {
	sourceID, targetID := self.ID(), other.ID()
	directed := true
	switch direction {
	case "", "out":
	case "in":
		sourceID, targetID = targetID, sourceID
	case "both":
		directed = false
	default:
		return nil, &ValidationError{Msg: "invalid direction " + direction}
	}

	inst := new(E)
	loader, ok := any(inst).(interface {
		InitEdge(id, typeName string, ctx map[string]any, sourceID, targetID string, directed bool)
	})
	if !ok {
		return nil, &ValidationError{Msg: "edge type does not embed jvspatial.Edge"}
	}
	typeName := reflect.TypeOf(*inst).Name()
	if typeName == "" {
		typeName = "Edge"
	}
	id := registry.NewID(registry.KindEdge, typeName)
	loader.InitEdge(id, typeName, edgeCtx, sourceID, targetID, directed)

	edgeEntity, ok := any(inst).(Entity)
	if !ok {
		return nil, &ValidationError{Msg: "edge type does not implement Entity"}
	}
	if err := gc.Save(ctx, edgeEntity); err != nil {
		return nil, err
	}

	self.addEdge(id)
	other.addEdge(id)
	if err := gc.Save(ctx, self.(Entity)); err != nil {
		return nil, err
	}
	if err := gc.Save(ctx, other.(Entity)); err != nil {
		return nil, err
	}
	return inst, nil
}

// Nodes returns the Nodes connected to self via its incident edges,
// filtered per opts (spec §4.5 algorithm): build an edge filter from
// self.edge_ids plus directionality and edge-type/context
// constraints, execute it, collect far-side endpoint ids, then build
// and execute a node filter from those ids plus node-type/context
// constraints and Where kwargs.
func Nodes(ctx context.Context, gc *GraphContext, self nodeLike, opts NodesOptions) ([]Entity, error) {
	edgeIDs := self.EdgeIDs()
	if len(edgeIDs) == 0 {
		return nil, nil
	}

	clauses := []any{map[string]any{"id": map[string]any{"$in": toAnySlice(edgeIDs)}}}
	direction := opts.Direction
	switch direction {
	case "", "out":
		clauses = append(clauses, map[string]any{"source_id": self.ID()})
	case "in":
		clauses = append(clauses, map[string]any{"target_id": self.ID()})
	case "both":
		clauses = append(clauses, map[string]any{"$or": []any{
			map[string]any{"source_id": self.ID()},
			map[string]any{"target_id": self.ID()},
		}})
	default:
		return nil, &ValidationError{Msg: "invalid direction " + direction}
	}
	if tf := typeFilterClause(opts.Edge); tf != nil {
		clauses = append(clauses, tf)
	}

	edgeRecs, err := gc.backend.Find(ctx, EdgeCollection, map[string]any{"$and": clauses}, storage.FindOptions{})
	if err != nil {
		return nil, &DatabaseError{Op: "nodes", Err: err}
	}

	farIDs := make([]string, 0, len(edgeRecs))
	for _, rec := range edgeRecs {
		edge := edgeFromRecord(rec)
		var far string
		switch direction {
		case "", "out":
			far = edge.TargetID()
		case "in":
			far = edge.SourceID()
		case "both":
			far = edge.OtherEndpoint(self.ID())
		}
		if far != "" {
			farIDs = append(farIDs, far)
		}
	}
	if len(farIDs) == 0 {
		return nil, nil
	}

	nodeClauses := []any{map[string]any{"id": map[string]any{"$in": toAnySlice(farIDs)}}}
	if tf := typeFilterClause(opts.Node); tf != nil {
		nodeClauses = append(nodeClauses, tf)
	}
	for k, v := range opts.Where {
		nodeClauses = append(nodeClauses, map[string]any{"context." + k: v})
	}

	findOpts := storage.FindOptions{}
	if opts.Limit > 0 {
		findOpts.Limit = opts.Limit
	}
	nodeRecs, err := gc.backend.Find(ctx, NodeCollection, map[string]any{"$and": nodeClauses}, findOpts)
	if err != nil {
		return nil, &DatabaseError{Op: "nodes", Err: err}
	}

	out := make([]Entity, 0, len(nodeRecs))
	for _, rec := range nodeRecs {
		e, err := decodeEntity(NodeCollection, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Edges returns the Edge objects incident to self, without resolving
// far-side nodes (spec §4.5's "simpler variant").
func Edges(ctx context.Context, gc *GraphContext, self nodeLike, direction string) ([]*Edge, error) {
	edgeIDs := self.EdgeIDs()
	if len(edgeIDs) == 0 {
		return nil, nil
	}
	clauses := []any{map[string]any{"id": map[string]any{"$in": toAnySlice(edgeIDs)}}}
	switch direction {
	case "":
	case "out":
		clauses = append(clauses, map[string]any{"source_id": self.ID()})
	case "in":
		clauses = append(clauses, map[string]any{"target_id": self.ID()})
	case "both":
		clauses = append(clauses, map[string]any{"$or": []any{
			map[string]any{"source_id": self.ID()},
			map[string]any{"target_id": self.ID()},
		}})
	default:
		return nil, &ValidationError{Msg: "invalid direction " + direction}
	}
	recs, err := gc.backend.Find(ctx, EdgeCollection, map[string]any{"$and": clauses}, storage.FindOptions{})
	if err != nil {
		return nil, &DatabaseError{Op: "edges", Err: err}
	}
	out := make([]*Edge, 0, len(recs))
	for _, rec := range recs {
		out = append(out, edgeFromRecord(rec))
	}
	return out, nil
}

func typeFilterClause(tfs []TypeFilter) map[string]any {
	if len(tfs) == 0 {
		return nil
	}
	clauses := make([]any, 0, len(tfs))
	for _, tf := range tfs {
		var clause map[string]any
		switch {
		case tf.TypeName != "" && len(tf.Filter) > 0:
			clause = map[string]any{"$and": []any{
				map[string]any{"type_name": tf.TypeName},
				tf.Filter,
			}}
		case tf.TypeName != "":
			clause = map[string]any{"type_name": tf.TypeName}
		default:
			clause = tf.Filter
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) == 1 {
		return clauses[0].(map[string]any)
	}
	return map[string]any{"$or": clauses}
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
