package jvspatial

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/TrueSelph/jvspatial-go/pkg/config"
	"github.com/TrueSelph/jvspatial-go/pkg/registry"
	"github.com/TrueSelph/jvspatial-go/pkg/storage"
)

// RootID is the id of the singleton Root node (spec §3).
const RootID = "n:Root:root"

// RootTypeName is Root's type tag.
const RootTypeName = "Root"

// storable is satisfied (via promoted embedding) by *Node, *Edge, and
// every application-defined subclass of either — the unexported
// collection() method is only callable from within this package, but
// the interface it forms can still be implemented by types declared
// elsewhere, exactly as with any unexported-method interface defined
// alongside its only implementations.
type storable interface {
	Entity
	collection() string
}

// nodeLike is satisfied by *Node and every subclass; GraphOps and
// cascade-delete operate against this interface rather than the
// concrete *Node type so a Go-embedding subclass (type User struct {
// jvspatial.Node }) is handled identically to the base type.
type nodeLike interface {
	Entity
	EdgeIDs() []string
	HasEdge(id string) bool
	addEdge(id string)
	removeEdge(id string)
	collection() string
}

// edgeLike is satisfied by *Edge and every subclass.
type edgeLike interface {
	Entity
	SourceID() string
	TargetID() string
	Directed() bool
	OtherEndpoint(from string) string
	collection() string
}

// GraphContext binds entity operations to a storage backend (spec
// §4.7). Entities created through a GraphContext route their
// save/delete through it regardless of which GraphContext, if any, is
// ambient at the time.
type GraphContext struct {
	backend  storage.Backend
	rootOnce sync.Once
	rootErr  error
	opCount  int64
}

// NewContext wraps an explicit backend. The caller is responsible for
// Close()ing it (via GraphContext.Close) when done.
func NewContext(backend storage.Backend) *GraphContext {
	return &GraphContext{backend: backend}
}

var (
	defaultMu  sync.Mutex
	defaultCtx *GraphContext
)

// Default lazily constructs the process-wide default GraphContext from
// environment configuration on first use (spec §4.7: "auto-configured
// from environment").
func Default() *GraphContext {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCtx != nil {
		return defaultCtx
	}
	cfg := config.LoadFromEnv()
	backend, err := storage.Open(cfg.Database.Type, cfg.Database.FilePath, cfg.Database.FileEncryptionKey, cfg.Database.DocstoreURI, cfg.Database.DocstoreURI == "")
	if err != nil {
		// A misconfigured default backend is a programming error the
		// caller must fix; an in-memory backend keeps the process usable
		// for the error to surface through, rather than panicking here.
		backend = storage.NewMemDB()
	}
	defaultCtx = NewContext(backend)
	return defaultCtx
}

// ambient holds the scope-nested GraphContext stack (spec §4.7: "async
// with GraphContext(...) makes that context the ambient default for
// its scope; restored on exit"). Go has no "with" block, so nesting is
// expressed as Use(gc) returning a restore func the caller defers.
var (
	ambientMu    sync.Mutex
	ambientStack []*GraphContext
)

// Use pushes gc as the ambient context and returns a function that
// pops it back off, restoring whatever was ambient before. Intended
// use: `defer jvspatial.Use(gc)()`.
func Use(gc *GraphContext) func() {
	ambientMu.Lock()
	ambientStack = append(ambientStack, gc)
	ambientMu.Unlock()
	return func() {
		ambientMu.Lock()
		defer ambientMu.Unlock()
		if len(ambientStack) == 0 {
			return
		}
		ambientStack = ambientStack[:len(ambientStack)-1]
	}
}

// Ambient returns the innermost nested context if one is in scope,
// else the process-wide default.
func Ambient() *GraphContext {
	ambientMu.Lock()
	defer ambientMu.Unlock()
	if n := len(ambientStack); n > 0 {
		return ambientStack[n-1]
	}
	return Default()
}

// Close releases the backend, if it supports it (spec §4.7: "context
// exit calls close() on the backend if supported").
func (gc *GraphContext) Close() error {
	return gc.backend.Close()
}

// Stats returns a snapshot of operations dispatched through this
// context, for observability by external layers (spec §4.7), grounded
// on the teacher's BadgerEngine NodeCount/EdgeCount counters.
func (gc *GraphContext) Stats() map[string]int64 {
	return map[string]int64{"operations": atomic.LoadInt64(&gc.opCount)}
}

func (gc *GraphContext) countOp() {
	atomic.AddInt64(&gc.opCount, 1)
}

// EnsureRoot creates the singleton Root node if absent (spec §3/§4.7).
func (gc *GraphContext) EnsureRoot(ctx context.Context) (*Node, error) {
	gc.rootOnce.Do(func() {
		rec, err := gc.backend.Get(ctx, NodeCollection, RootID)
		if err == storage.ErrNotFound {
			root := &Node{}
			root.InitNode(RootID, RootTypeName, map[string]any{}, nil)
			_, err = gc.backend.Save(ctx, NodeCollection, root.Export())
			if err != nil {
				gc.rootErr = &DatabaseError{Op: "ensure-root", Err: err}
			}
			return
		}
		if err != nil {
			gc.rootErr = &DatabaseError{Op: "ensure-root", Err: err}
			return
		}
		_ = rec
	})
	if gc.rootErr != nil {
		return nil, gc.rootErr
	}
	rec, err := gc.backend.Get(ctx, NodeCollection, RootID)
	if err != nil {
		return nil, &DatabaseError{Op: "get-root", Err: err}
	}
	return nodeFromRecord(rec), nil
}

// Save upserts e into its collection (spec §4.4). e must embed Node or
// Edge.
func (gc *GraphContext) Save(ctx context.Context, e Entity) error {
	s, ok := e.(storable)
	if !ok {
		return &ValidationError{Msg: "entity must embed jvspatial.Node or jvspatial.Edge"}
	}
	_, err := gc.backend.Save(ctx, s.collection(), e.Export())
	if err != nil {
		return &DatabaseError{Op: "save", Err: err}
	}
	gc.countOp()
	return nil
}

// Delete removes e from its collection; for Nodes, cascade (default
// true) also deletes every incident edge and removes that edge's id
// from the opposite endpoint's edge_ids (spec §4.4).
func (gc *GraphContext) Delete(ctx context.Context, e Entity, cascade bool) error {
	s, ok := e.(storable)
	if !ok {
		return &ValidationError{Msg: "entity must embed jvspatial.Node or jvspatial.Edge"}
	}
	if n, ok := e.(nodeLike); ok && cascade {
		for _, edgeID := range n.EdgeIDs() {
			edgeRec, err := gc.backend.Get(ctx, EdgeCollection, edgeID)
			if err == storage.ErrNotFound {
				continue
			}
			if err != nil {
				return &DatabaseError{Op: "cascade-delete", Err: err}
			}
			edge := edgeFromRecord(edgeRec)
			other := edge.OtherEndpoint(n.ID())
			if other != "" && other != n.ID() {
				if otherRec, err := gc.backend.Get(ctx, NodeCollection, other); err == nil {
					otherNode := nodeFromRecord(otherRec)
					otherNode.removeEdge(edgeID)
					if _, err := gc.backend.Save(ctx, NodeCollection, otherNode.Export()); err != nil {
						return &DatabaseError{Op: "cascade-delete", Err: err}
					}
				}
			}
			if err := gc.backend.Delete(ctx, EdgeCollection, edgeID); err != nil {
				return &DatabaseError{Op: "cascade-delete", Err: err}
			}
		}
	}
	if err := gc.backend.Delete(ctx, s.collection(), e.ID()); err != nil {
		return &DatabaseError{Op: "delete", Err: err}
	}
	gc.countOp()
	return nil
}

// decodeEntity instantiates the concrete registered subclass for
// rec["type_name"], falling back to the base Node or Edge type when
// unregistered (spec §4.3). collection tells it which base to fall
// back to and which loader interface the registered constructor must
// satisfy.
func decodeEntity(collection string, rec map[string]any) (Entity, error) {
	typeName, _ := rec["type_name"].(string)
	ctx, _ := rec["context"].(map[string]any)
	id, _ := rec["id"].(string)

	if inst := registry.Default.New(typeName); inst != nil {
		switch collection {
		case NodeCollection:
			if loader, ok := inst.(interface {
				InitNode(id, typeName string, ctx map[string]any, edgeIDs []string)
			}); ok {
				var edgeIDs []string
				if raw, ok := rec["edge_ids"].([]any); ok {
					for _, v := range raw {
						if s, ok := v.(string); ok {
							edgeIDs = append(edgeIDs, s)
						}
					}
				}
				loader.InitNode(id, typeName, ctx, edgeIDs)
				if e, ok := inst.(Entity); ok {
					return e, nil
				}
			}
		case EdgeCollection:
			if loader, ok := inst.(interface {
				InitEdge(id, typeName string, ctx map[string]any, sourceID, targetID string, directed bool)
			}); ok {
				source, _ := rec["source_id"].(string)
				target, _ := rec["target_id"].(string)
				directed, _ := rec["directed"].(bool)
				loader.InitEdge(id, typeName, ctx, source, target, directed)
				if e, ok := inst.(Entity); ok {
					return e, nil
				}
			}
		}
	}

	switch collection {
	case NodeCollection:
		return nodeFromRecord(rec), nil
	case EdgeCollection:
		return edgeFromRecord(rec), nil
	default:
		return nil, &ValidationError{Msg: "unknown collection " + collection}
	}
}
