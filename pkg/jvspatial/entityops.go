package jvspatial

import (
	"context"

	"github.com/TrueSelph/jvspatial-go/pkg/query"
	"github.com/TrueSelph/jvspatial-go/pkg/registry"
	"github.com/TrueSelph/jvspatial-go/pkg/storage"
)

// Class-level entity operations (spec §4.4: create/get/find/find_one/
// find_by/count/distinct/all). The source language dispatches these as
// classmethods on a dynamic subclass; Go has no classmethods, so they
// are free functions parameterized by the concrete type T, which must
// be a struct embedding jvspatial.Node or jvspatial.Edge (anywhere in
// its embedding chain — promoted methods make that embedding visible
// to the type assertions below regardless of which package T lives
// in).

// newT allocates a zero-value *T and determines which collection it
// belongs to via its promoted collection() method.
func newT[T any]() (*T, string, error) {
	inst := new(T)
	if _, ok := any(inst).(nodeLike); ok {
		return inst, NodeCollection, nil
	}
	if _, ok := any(inst).(edgeLike); ok {
		return inst, EdgeCollection, nil
	}
	return inst, "", &ValidationError{Msg: "type does not embed jvspatial.Node or jvspatial.Edge"}
}

// Create constructs a new T with the given type_name and context, and
// saves it immediately (spec §4.4: "create(**kwargs) -> construct +
// save").
func Create[T any](ctx context.Context, gc *GraphContext, typeName string, ctxDoc map[string]any) (*T, error) {
	inst, collection, err := newT[T]()
	if err != nil {
		return nil, err
	}
	id := registry.NewID(collectionKind(collection), typeName)
	if err := initInstance(inst, collection, id, typeName, ctxDoc); err != nil {
		return nil, err
	}
	if err := gc.Save(ctx, any(inst).(Entity)); err != nil {
		return nil, err
	}
	return inst, nil
}

// Get fetches a single record by id and decodes it into *T (spec
// §4.4: "get(id) -> Entity | missing").
func Get[T any](ctx context.Context, gc *GraphContext, id string) (*T, error) {
	_, collection, err := newT[T]()
	if err != nil {
		return nil, err
	}
	rec, err := gc.backend.Get(ctx, collection, id)
	if err == storage.ErrNotFound {
		return nil, &EntityNotFound{Collection: collection, ID: id}
	}
	if err != nil {
		return nil, &DatabaseError{Op: "get", Err: err}
	}
	return decodeInto[T](collection, rec)
}

// Find returns every record matching filter, decoded into *T (spec
// §4.4).
func Find[T any](ctx context.Context, gc *GraphContext, filter map[string]any, opts storage.FindOptions) ([]*T, error) {
	_, collection, err := newT[T]()
	if err != nil {
		return nil, err
	}
	recs, err := gc.backend.Find(ctx, collection, filter, opts)
	if err != nil {
		return nil, translateFindErr(err)
	}
	out := make([]*T, 0, len(recs))
	for _, rec := range recs {
		t, err := decodeInto[T](collection, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// FindOne returns the first record matching filter, or EntityNotFound.
func FindOne[T any](ctx context.Context, gc *GraphContext, filter map[string]any) (*T, error) {
	_, collection, err := newT[T]()
	if err != nil {
		return nil, err
	}
	rec, err := gc.backend.FindOne(ctx, collection, filter)
	if err == storage.ErrNotFound {
		return nil, &EntityNotFound{Collection: collection}
	}
	if err != nil {
		return nil, translateFindErr(err)
	}
	return decodeInto[T](collection, rec)
}

// FindBy is sugar for Find where each kwarg k=v becomes a
// context.k == v filter clause (spec §4.4).
func FindBy[T any](ctx context.Context, gc *GraphContext, kwargs map[string]any) ([]*T, error) {
	filter := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		filter["context."+k] = v
	}
	return Find[T](ctx, gc, filter, storage.FindOptions{})
}

// Count returns the number of records matching filter (nil filter = all).
func Count[T any](ctx context.Context, gc *GraphContext, filter map[string]any) (int, error) {
	_, collection, err := newT[T]()
	if err != nil {
		return 0, err
	}
	n, err := gc.backend.Count(ctx, collection, filter)
	if err != nil {
		return 0, translateFindErr(err)
	}
	return n, nil
}

// Distinct returns the distinct values of field across records
// matching filter (nil filter = all).
func Distinct[T any](ctx context.Context, gc *GraphContext, field string, filter map[string]any) ([]any, error) {
	_, collection, err := newT[T]()
	if err != nil {
		return nil, err
	}
	vals, err := gc.backend.Distinct(ctx, collection, field, filter)
	if err != nil {
		return nil, translateFindErr(err)
	}
	return vals, nil
}

// All returns every record in T's collection.
func All[T any](ctx context.Context, gc *GraphContext) ([]*T, error) {
	return Find[T](ctx, gc, map[string]any{}, storage.FindOptions{})
}

func translateFindErr(err error) error {
	if qe, ok := err.(*query.QueryError); ok {
		return &QueryError{Msg: qe.Error()}
	}
	return &DatabaseError{Op: "find", Err: err}
}

func collectionKind(collection string) registry.IDKind {
	if collection == EdgeCollection {
		return registry.KindEdge
	}
	return registry.KindNode
}

// initInstance completes construction of a freshly allocated *T by
// calling its promoted InitNode or InitEdge method.
func initInstance(inst any, collection, id, typeName string, ctxDoc map[string]any) error {
	switch collection {
	case NodeCollection:
		n, ok := inst.(interface {
			InitNode(id, typeName string, ctx map[string]any, edgeIDs []string)
		})
		if !ok {
			return &ValidationError{Msg: "type does not expose InitNode"}
		}
		n.InitNode(id, typeName, ctxDoc, nil)
		return nil
	case EdgeCollection:
		return &ValidationError{Msg: "use ConnectAs/GraphOps.Connect to create edges, not Create"}
	default:
		return &ValidationError{Msg: "unknown collection"}
	}
}

// decodeInto populates a freshly allocated *T from rec. Unlike
// decodeEntity (which consults the registry to pick a concrete
// subclass for heterogeneous results), decodeInto always builds T
// itself, since the caller already pinned the concrete type via the
// type parameter.
func decodeInto[T any](collection string, rec map[string]any) (*T, error) {
	inst := new(T)
	typeName, _ := rec["type_name"].(string)
	ctxDoc, _ := rec["context"].(map[string]any)
	id, _ := rec["id"].(string)
	switch collection {
	case NodeCollection:
		n, ok := any(inst).(interface {
			InitNode(id, typeName string, ctx map[string]any, edgeIDs []string)
		})
		if !ok {
			return nil, &ValidationError{Msg: "type does not expose InitNode"}
		}
		var edgeIDs []string
		if raw, ok := rec["edge_ids"].([]any); ok {
			for _, v := range raw {
				if s, ok := v.(string); ok {
					edgeIDs = append(edgeIDs, s)
				}
			}
		}
		n.InitNode(id, typeName, ctxDoc, edgeIDs)
	case EdgeCollection:
		e, ok := any(inst).(interface {
			InitEdge(id, typeName string, ctx map[string]any, sourceID, targetID string, directed bool)
		})
		if !ok {
			return nil, &ValidationError{Msg: "type does not expose InitEdge"}
		}
		source, _ := rec["source_id"].(string)
		target, _ := rec["target_id"].(string)
		directed, _ := rec["directed"].(bool)
		e.InitEdge(id, typeName, ctxDoc, source, target, directed)
	}
	return inst, nil
}
