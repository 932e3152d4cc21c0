package jvspatial

import (
	"context"
	"testing"
	"time"

	"github.com/TrueSelph/jvspatial-go/pkg/config"
	"github.com/TrueSelph/jvspatial-go/pkg/registry"
	"github.com/TrueSelph/jvspatial-go/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// City and Road are test-local Node/Edge subclasses embedding the base
// types, exercising the "application code embeds jvspatial.Node" story
// end to end (spec §3/§4.3).
type City struct {
	Node
}

type Road struct {
	Edge
}

func newTestGraph(t *testing.T) *GraphContext {
	t.Helper()
	return NewContext(storage.NewMemDB())
}

func newCity(ctx context.Context, gc *GraphContext, name string, population int) (*City, error) {
	return Create[City](ctx, gc, "City", map[string]any{"name": name, "population": population})
}

func TestConnectAndTraverse(t *testing.T) {
	ctx := context.Background()
	gc := newTestGraph(t)

	a, err := newCity(ctx, gc, "Alpha", 100)
	require.NoError(t, err)
	b, err := newCity(ctx, gc, "Beta", 200)
	require.NoError(t, err)

	edge, err := ConnectAs[Road](ctx, gc, a, b, "out", map[string]any{"distance_km": 42})
	require.NoError(t, err)
	assert.Equal(t, a.ID(), edge.SourceID())
	assert.Equal(t, b.ID(), edge.TargetID())
	assert.True(t, edge.Directed())

	neighbors, err := Nodes(ctx, gc, a, NodesOptions{Direction: "out"})
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, b.ID(), neighbors[0].ID())

	// Edge is invisible from the "in" side of a directed edge.
	none, err := Nodes(ctx, gc, b, NodesOptions{Direction: "out"})
	require.NoError(t, err)
	assert.Empty(t, none)

	back, err := Nodes(ctx, gc, b, NodesOptions{Direction: "in"})
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, a.ID(), back[0].ID())
}

func TestFilteredTraversal(t *testing.T) {
	ctx := context.Background()
	gc := newTestGraph(t)

	hub, err := newCity(ctx, gc, "Hub", 500)
	require.NoError(t, err)
	small, err := newCity(ctx, gc, "Smallville", 10)
	require.NoError(t, err)
	big, err := newCity(ctx, gc, "Bigtown", 900)
	require.NoError(t, err)

	_, err = ConnectAs[Road](ctx, gc, hub, small, "both", nil)
	require.NoError(t, err)
	_, err = ConnectAs[Road](ctx, gc, hub, big, "both", nil)
	require.NoError(t, err)

	got, err := Nodes(ctx, gc, hub, NodesOptions{
		Direction: "both",
		Where:     map[string]any{"population": map[string]any{"$gte": 500}},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, big.ID(), got[0].ID())
}

func TestCascadeDelete(t *testing.T) {
	ctx := context.Background()
	gc := newTestGraph(t)

	a, err := newCity(ctx, gc, "Alpha", 1)
	require.NoError(t, err)
	b, err := newCity(ctx, gc, "Beta", 2)
	require.NoError(t, err)
	edge, err := ConnectAs[Road](ctx, gc, a, b, "out", nil)
	require.NoError(t, err)

	require.NoError(t, gc.Delete(ctx, a, true))

	_, err = Get[City](ctx, gc, a.ID())
	assert.ErrorAs(t, err, new(*EntityNotFound))

	_, err = Get[Road](ctx, gc, edge.ID())
	assert.ErrorAs(t, err, new(*EntityNotFound))

	refreshedB, err := Get[City](ctx, gc, b.ID())
	require.NoError(t, err)
	assert.False(t, refreshedB.HasEdge(edge.ID()))
}

func TestProtectedAttribute(t *testing.T) {
	ctx := context.Background()
	gc := newTestGraph(t)

	a, err := newCity(ctx, gc, "Alpha", 1)
	require.NoError(t, err)

	origID := a.ID()
	err = a.SetID("n:City:hijacked")
	assert.ErrorAs(t, err, new(*AttributeProtectionError))
	assert.Equal(t, origID, a.ID()) // unchanged

	b, err := newCity(ctx, gc, "Beta", 2)
	require.NoError(t, err)
	edge, err := ConnectAs[Road](ctx, gc, a, b, "out", nil)
	require.NoError(t, err)

	assert.ErrorAs(t, edge.SetSourceID("n:City:other"), new(*AttributeProtectionError))
	assert.ErrorAs(t, edge.SetTargetID("n:City:other"), new(*AttributeProtectionError))
}

// CollectorWalker records every City it visits into its own Visited
// slice via a registered OnVisit hook, then continues the traversal by
// enqueueing every outbound neighbor (spec §4.6 demo shape). GC is set
// by the caller before Spawn since hooks receive only the walker and
// the visited entity, not an ambient context/GraphContext pair.
type CollectorWalker struct {
	Walker

	GC      *GraphContext
	Visited []string
}

func init() {
	registry.Default.Register("City", func() any { return &City{} })
	registry.Default.Register("Road", func() any { return &Road{} })

	OnVisit[CollectorWalker, City](func(w *CollectorWalker, here *City) error {
		w.Visited = append(w.Visited, here.ID())
		if w.GC == nil {
			return nil
		}
		neighbors, err := Nodes(context.Background(), w.GC, here, NodesOptions{Direction: "out"})
		if err != nil {
			return err
		}
		w.Visit(neighbors...)
		return nil
	})
}

func TestWalkerTraversal(t *testing.T) {
	ctx := context.Background()
	gc := newTestGraph(t)

	a, err := newCity(ctx, gc, "Alpha", 1)
	require.NoError(t, err)
	b, err := newCity(ctx, gc, "Beta", 2)
	require.NoError(t, err)
	c, err := newCity(ctx, gc, "Gamma", 3)
	require.NoError(t, err)
	_, err = ConnectAs[Road](ctx, gc, a, b, "out", nil)
	require.NoError(t, err)
	_, err = ConnectAs[Road](ctx, gc, a, c, "out", nil)
	require.NoError(t, err)

	w := &CollectorWalker{GC: gc}
	w.InitWalker(NewID(registry.KindObject, "CollectorWalker"), "CollectorWalker", nil, 0)

	cfg := config.WalkerConfig{
		ProtectionEnabled: true,
		MaxSteps:          10,
		MaxVisitsPerNode:  5,
		MaxExecutionTime:  5 * time.Second,
		MaxQueueSize:      100,
	}
	result, err := Spawn(ctx, gc, w, cfg, a)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID(), b.ID(), c.ID()}, result.Visited)
	assert.Equal(t, StateFinished, result.State())
	assert.Equal(t, 3, result.StepCount())
}

// RunawayWalker re-enqueues the very node it just visited, modeling a
// misbehaving walker that would loop forever without runaway
// protection (spec §4.6).
type RunawayWalker struct {
	Walker

	Hits int
}

func init() {
	OnVisit[RunawayWalker, City](func(w *RunawayWalker, here *City) error {
		w.Hits++
		w.Visit(here)
		return nil
	})
}

func TestWalkerProtectionHaltsOnMaxSteps(t *testing.T) {
	ctx := context.Background()
	gc := newTestGraph(t)

	a, err := newCity(ctx, gc, "Alpha", 1)
	require.NoError(t, err)

	w := &RunawayWalker{}
	w.InitWalker(NewID(registry.KindObject, "RunawayWalker"), "RunawayWalker", nil, 0)

	cfg := config.WalkerConfig{
		ProtectionEnabled: true,
		MaxSteps:          3,
		MaxVisitsPerNode:  1000,
		MaxExecutionTime:  5 * time.Second,
		MaxQueueSize:      100,
	}
	result, err := Spawn(ctx, gc, w, cfg, a)
	require.NoError(t, err)
	assert.Equal(t, StateDisengaged, result.State())
	assert.LessOrEqual(t, result.StepCount(), 3)
	assert.Contains(t, result.Response(), "_protection_halted")
}

func TestWalkerProtectionForcesDisengageOnOverVisitedNode(t *testing.T) {
	ctx := context.Background()
	gc := newTestGraph(t)

	a, err := newCity(ctx, gc, "Alpha", 1)
	require.NoError(t, err)

	w := &RunawayWalker{}
	w.InitWalker(NewID(registry.KindObject, "RunawayWalker"), "RunawayWalker", nil, 0)

	cfg := config.WalkerConfig{
		ProtectionEnabled: true,
		MaxSteps:          1000,
		MaxVisitsPerNode:  1,
		MaxExecutionTime:  5 * time.Second,
		MaxQueueSize:      100,
	}
	result, err := Spawn(ctx, gc, w, cfg, a)
	require.NoError(t, err)
	assert.Equal(t, StateDisengaged, result.State())
	assert.Equal(t, 1, result.Hits)
	assert.Equal(t, 1, result.StepCount())
	assert.Contains(t, result.Response(), "_protection_halted")
}

func TestQueryOperators(t *testing.T) {
	ctx := context.Background()
	gc := newTestGraph(t)

	_, err := newCity(ctx, gc, "Alpha", 10)
	require.NoError(t, err)
	_, err = newCity(ctx, gc, "Beta", 50)
	require.NoError(t, err)
	_, err = newCity(ctx, gc, "Gamma", 900)
	require.NoError(t, err)

	big, err := Find[City](ctx, gc, map[string]any{"context.population": map[string]any{"$gt": 100}}, storage.FindOptions{})
	require.NoError(t, err)
	require.Len(t, big, 1)
	assert.Equal(t, "Gamma", big[0].Get("name"))

	mid, err := FindBy[City](ctx, gc, map[string]any{"population": map[string]any{"$in": []any{10, 50}}})
	require.NoError(t, err)
	assert.Len(t, mid, 2)

	count, err := Count[City](ctx, gc, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
