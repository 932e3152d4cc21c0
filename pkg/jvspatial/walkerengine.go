package jvspatial

import (
	"context"
	"time"

	"github.com/TrueSelph/jvspatial-go/pkg/config"
	"github.com/TrueSelph/jvspatial-go/pkg/storage"
)

// baseWalkerOf recovers the embedded *Walker from a concrete subclass
// pointer *W via its promoted baseWalker method (spec §9's "static
// per-class hook index" design note extended to engine plumbing): no
// reflection needed, since the method is defined once on Walker and
// promoted onto every embedding type.
func baseWalkerOf[W any](w *W) (*Walker, bool) {
	b, ok := any(w).(interface{ baseWalker() *Walker })
	if !ok {
		return nil, false
	}
	return b.baseWalker(), true
}

// Spawn runs w's traversal loop against start (spec §4.6): seed the
// queue with start, then repeatedly pop the front entry, check runaway
// protection, append to the trail, dispatch edge-then-node hooks, and
// continue until the queue empties or the walker pauses/disengages.
// on_exit fires on every programmatic termination path but not when ctx
// is externally cancelled (spec §5/§7).
func Spawn[W any](ctx context.Context, gc *GraphContext, w *W, cfg config.WalkerConfig, start nodeLike) (*W, error) {
	base, ok := baseWalkerOf(w)
	if !ok {
		return w, &ValidationError{Msg: "walker type does not embed jvspatial.Walker"}
	}

	base.mu.Lock()
	base.protection = cfg
	base.state = StateRunning
	base.startTime = time.Now()
	base.stepCount = 0
	base.trail = nil
	base.visitCounts = map[string]int{}
	base.queue = []queueEntry{{node: start}}
	base.mu.Unlock()

	var loopErr error
	var previous nodeLike

runLoop:
	for {
		if err := ctx.Err(); err != nil {
			// External cancellation: the loop simply stops; on_exit is not
			// guaranteed to fire for it (spec §5).
			return w, err
		}

		base.mu.Lock()
		if base.state == StatePaused || base.state == StateDisengaged {
			base.mu.Unlock()
			break runLoop
		}
		if len(base.queue) == 0 {
			base.state = StateFinished
			base.mu.Unlock()
			break runLoop
		}
		if halted, reason := checkProtectionLocked(base, cfg); halted {
			haltLocked(base, reason)
			base.mu.Unlock()
			break runLoop
		}

		entry := base.queue[0]
		base.queue = base.queue[1:]
		nodeID := entry.node.ID()

		// spec §4.6: "visit_counts[current] >= max_visits_per_node → forced
		// disengage" — this halts the walker outright, the same as
		// max_steps/max_execution_time, not a silent skip of the entry.
		if cfg.ProtectionEnabled && cfg.MaxVisitsPerNode > 0 && base.visitCounts[nodeID] >= cfg.MaxVisitsPerNode {
			reason := (&WalkerProtectionError{Reason: "max_visits_per_node exceeded for " + nodeID}).Error()
			haltLocked(base, reason)
			base.mu.Unlock()
			walkerLog.Printf("walker %s halted by runaway protection: %s", base.ID(), reason)
			break runLoop
		}

		base.stepCount++
		base.visitCounts[nodeID]++
		base.mu.Unlock()

		// Transparent edge traversal (spec §4.6 hook-dispatch item 3): an
		// entry enqueued via VisitVia already carries its edge; otherwise,
		// when the previous step is known, locate the edge connecting it to
		// this node from the endpoints' own edge_ids, so a plain
		// nodes()-driven traversal still dispatches edge hooks and records
		// trail_edges correctly.
		edgeEntity := entry.edge
		if edgeEntity == nil && previous != nil {
			if here, ok := entry.node.(nodeLike); ok {
				found, err := locateEdgeBetween(ctx, gc, previous, here)
				if err != nil {
					loopErr = err
					base.mu.Lock()
					haltLocked(base, err.Error())
					base.mu.Unlock()
					break runLoop
				}
				edgeEntity = found
			}
		}

		edgeID := ""
		if edgeEntity != nil {
			edgeID = edgeEntity.ID()
		}
		base.mu.Lock()
		base.trail = append(base.trail, TrailEntry{NodeID: nodeID, EdgeID: edgeID, Metadata: map[string]any{}})
		if base.maxTrailLength > 0 && len(base.trail) > base.maxTrailLength {
			base.trail = base.trail[len(base.trail)-base.maxTrailLength:]
		}
		base.mu.Unlock()

		if edgeEntity != nil {
			if err := dispatchVisit(base, w, edgeEntity); err != nil {
				loopErr = err
				base.mu.Lock()
				base.state = StateDisengaged
				base.mu.Unlock()
				break runLoop
			}
		}
		if err := dispatchVisit(base, w, entry.node); err != nil {
			loopErr = err
			base.mu.Lock()
			base.state = StateDisengaged
			base.mu.Unlock()
			break runLoop
		}
		if here, ok := entry.node.(nodeLike); ok {
			previous = here
		} else {
			previous = nil
		}
	}

	if ctxErr := ctx.Err(); ctxErr == nil {
		if err := dispatchExit(w); err != nil && loopErr == nil {
			loopErr = err
		}
	}
	return w, loopErr
}

// haltLocked marks base disengaged and records why, for every forced-
// termination path (max_steps, max_execution_time, max_visits_per_node).
// Caller holds base.mu.
func haltLocked(base *Walker, reason string) {
	base.state = StateDisengaged
	if base.response == nil {
		base.response = map[string]any{}
	}
	base.response["_protection_halted"] = reason
}

// checkProtectionLocked reports whether max_steps or max_execution_time
// has tripped (spec §4.6). max_visits_per_node is checked separately in
// Spawn's loop body, once the current entry's node id is known. Caller
// holds base.mu.
func checkProtectionLocked(base *Walker, cfg config.WalkerConfig) (bool, string) {
	if !cfg.ProtectionEnabled {
		return false, ""
	}
	if cfg.MaxSteps > 0 && base.stepCount >= cfg.MaxSteps {
		return true, (&WalkerProtectionError{Reason: "max_steps exceeded"}).Error()
	}
	if cfg.MaxExecutionTime > 0 {
		elapsed := time.Since(base.startTime)
		if elapsed > cfg.MaxExecutionTime {
			return true, (&WalkerTimeoutError{Elapsed: elapsed.String(), Limit: cfg.MaxExecutionTime.String()}).Error()
		}
	}
	return false, ""
}

// locateEdgeBetween finds the edge connecting from and to, consulting
// only the ids already present in both endpoints' edge_ids sets (spec
// §4.6's transparent edge traversal over a nodes()-discovered step).
// Returns (nil, nil) if no such edge is found, tolerating ids that no
// longer resolve (spec's soft-missing edge tolerance, §9).
func locateEdgeBetween(ctx context.Context, gc *GraphContext, from, to nodeLike) (Entity, error) {
	toSet := make(map[string]struct{})
	for _, id := range to.EdgeIDs() {
		toSet[id] = struct{}{}
	}
	for _, id := range from.EdgeIDs() {
		if _, shared := toSet[id]; !shared {
			continue
		}
		rec, err := gc.backend.Get(ctx, EdgeCollection, id)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, &DatabaseError{Op: "locate-edge", Err: err}
		}
		edge := edgeFromRecord(rec)
		switch {
		case edge.SourceID() == from.ID() && edge.TargetID() == to.ID():
			return edge, nil
		case !edge.Directed() && edge.OtherEndpoint(from.ID()) == to.ID():
			return edge, nil
		}
	}
	return nil, nil
}
