package jvspatial

import (
	"sync"
	"time"

	"github.com/TrueSelph/jvspatial-go/internal/jvlog"
	"github.com/TrueSelph/jvspatial-go/pkg/config"
	"github.com/TrueSelph/jvspatial-go/pkg/query"
)

var walkerLog = jvlog.New("walker")

// WalkerState is one of the four lifecycle states a Walker can be in
// (spec §3).
type WalkerState string

const (
	StateRunning    WalkerState = "running"
	StatePaused     WalkerState = "paused"
	StateDisengaged WalkerState = "disengaged"
	StateFinished   WalkerState = "finished"
)

// TrailEntry records one visited step (spec §3: "queue/trail/metadata
// records of visited nodes").
type TrailEntry struct {
	NodeID   string
	EdgeID   string // "" if this step was not reached by crossing an edge
	Metadata map[string]any
}

// queueEntry pairs a queued node with the edge that would be crossed
// to reach it, if known — spec §9's design note: "represent each queue
// entry as a pair (node, optional incoming_edge) rather than just a
// node, so the engine can fire edge hooks before node hooks without a
// post-hoc lookup".
type queueEntry struct {
	node Entity
	edge Entity // nil if not reached via a known edge
}

// Walker is the in-memory traversal agent (spec §3). Persistence is
// optional and out of scope for this base type — nothing in this
// package ever saves one.
type Walker struct {
	Object

	mu             sync.Mutex
	queue          []queueEntry
	trail          []TrailEntry
	maxTrailLength int
	visitCounts    map[string]int
	state          WalkerState
	stepCount      int
	startTime      time.Time
	response       map[string]any
	skipRequested  bool
	protection     config.WalkerConfig
}

// InitWalker completes construction; concrete Walker subclasses call
// this instead of Object.Init directly.
func (w *Walker) InitWalker(id, typeName string, ctx map[string]any, maxTrailLength int) {
	w.Object.Init(id, typeName, ctx)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.maxTrailLength = maxTrailLength
	w.visitCounts = map[string]int{}
	w.state = StateFinished
	w.response = map[string]any{}
}

// baseWalker lets the generic engine recover the embedded *Walker from
// a concrete subclass *W via a promoted method, without needing to
// know W's type at the call site.
func (w *Walker) baseWalker() *Walker { return w }

// Response returns a defensive copy of the walker's result document.
func (w *Walker) Response() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return query.DeepCopy(w.response)
}

// SetResponse assigns a single response field by dot-path.
func (w *Walker) SetResponse(path string, value any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.response == nil {
		w.response = map[string]any{}
	}
	dotSet(w.response, path, value)
}

// State returns the walker's current lifecycle state.
func (w *Walker) State() WalkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// StepCount returns the number of steps taken so far.
func (w *Walker) StepCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stepCount
}

// VisitCount returns how many times nodeID has been dequeued by this
// walker.
func (w *Walker) VisitCount(nodeID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visitCounts[nodeID]
}

// --- Control actions (spec §4.6) ---

// admitLocked enforces WALKER_MAX_QUEUE_SIZE (spec §4.6 runaway
// protection: "if queue_size > max_queue_size, reject further queue
// additions (emit warning, continue)"); caller holds w.mu. Returns the
// prefix of entities that still fit.
func (w *Walker) admitLocked(entities []Entity) []Entity {
	if !w.protection.ProtectionEnabled || w.protection.MaxQueueSize <= 0 {
		return entities
	}
	room := w.protection.MaxQueueSize - len(w.queue)
	if room <= 0 {
		walkerLog.Printf("queue size limit %d reached, rejecting %d additions", w.protection.MaxQueueSize, len(entities))
		return nil
	}
	if room < len(entities) {
		walkerLog.Printf("queue size limit %d reached, admitting %d of %d additions", w.protection.MaxQueueSize, room, len(entities))
		return entities[:room]
	}
	return entities
}

// Visit enqueues entities at the back of the queue. Append is an
// alias, matching the two names spec §4.6 gives the same operation.
func (w *Walker) Visit(entities ...Entity) {
	w.enqueueBack(entities, nil)
}

// Append is an alias for Visit.
func (w *Walker) Append(entities ...Entity) {
	w.Visit(entities...)
}

// Prepend adds entities to the front of the queue.
func (w *Walker) Prepend(entities ...Entity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	entities = w.admitLocked(entities)
	entries := make([]queueEntry, len(entities))
	for i, e := range entities {
		entries[i] = queueEntry{node: e}
	}
	w.queue = append(entries, w.queue...)
}

// AddNext inserts entities immediately after the currently processing
// entity's position (i.e. at the very front of what remains).
func (w *Walker) AddNext(entities ...Entity) {
	w.Prepend(entities...)
}

// InsertBefore inserts entities immediately before target in the
// queue; returns ValidationError if target is not queued.
func (w *Walker) InsertBefore(target Entity, entities ...Entity) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := w.indexOfLocked(target)
	if idx < 0 {
		return &ValidationError{Msg: "insert_before: target is not queued"}
	}
	entities = w.admitLocked(entities)
	entries := make([]queueEntry, len(entities))
	for i, e := range entities {
		entries[i] = queueEntry{node: e}
	}
	w.queue = append(w.queue[:idx], append(entries, w.queue[idx:]...)...)
	return nil
}

// InsertAfter inserts entities immediately after target in the queue;
// returns ValidationError if target is not queued.
func (w *Walker) InsertAfter(target Entity, entities ...Entity) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := w.indexOfLocked(target)
	if idx < 0 {
		return &ValidationError{Msg: "insert_after: target is not queued"}
	}
	entities = w.admitLocked(entities)
	entries := make([]queueEntry, len(entities))
	for i, e := range entities {
		entries[i] = queueEntry{node: e}
	}
	w.queue = append(w.queue[:idx+1], append(entries, w.queue[idx+1:]...)...)
	return nil
}

// VisitVia enqueues entities at the back of the queue as reached via
// edge, so the engine dispatches edge hooks before node hooks for them
// (spec §4.6: "transparent edge traversal... fire edge hooks before
// node hooks when the step crossed a known edge").
func (w *Walker) VisitVia(edge Entity, entities ...Entity) {
	w.enqueueBack(entities, edge)
}

// Dequeue removes every queued occurrence of the given entities.
func (w *Walker) Dequeue(entities ...Entity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		ids[e.ID()] = struct{}{}
	}
	out := w.queue[:0:0]
	for _, q := range w.queue {
		if _, drop := ids[q.node.ID()]; !drop {
			out = append(out, q)
		}
	}
	w.queue = out
}

// Ignore removes specific queued nodes from future visitation without
// halting the current hook chain (supplemented feature, sugar over
// Dequeue — useful from inside a hook reacting to a sibling node).
func (w *Walker) Ignore(entities ...Entity) {
	w.Dequeue(entities...)
}

// ClearQueue empties the queue.
func (w *Walker) ClearQueue() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queue = nil
}

// IsQueued reports whether entity is currently queued.
func (w *Walker) IsQueued(entity Entity) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.indexOfLocked(entity) >= 0
}

// GetQueue returns a snapshot of queued entities, in order.
func (w *Walker) GetQueue() []Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Entity, len(w.queue))
	for i, q := range w.queue {
		out[i] = q.node
	}
	return out
}

// Skip abandons remaining hooks for the current entity; the loop
// proceeds to the next queued entry.
func (w *Walker) Skip() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.skipRequested = true
}

// Pause sets state to paused; the loop exits after the current entity
// finishes. Resume sets the state back to running (see Resume).
func (w *Walker) Pause(reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = StatePaused
	if reason != "" {
		if w.response == nil {
			w.response = map[string]any{}
		}
		w.response["_pause_reason"] = reason
	}
}

// Disengage sets state to disengaged; the loop exits and on_exit fires.
// Irreversible (spec §9 open-question decision: Resume after Disengage
// is an error).
func (w *Walker) Disengage() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = StateDisengaged
}

// Resume re-enters the running state after Pause. Returns
// WalkerProtectionError if the walker is not currently paused —
// per spec §9's decision, disengage is irreversible. Resume only
// changes the state: it does not run the traversal loop, and a later
// Spawn reseeds the queue with its start node, so entries still queued
// at the pause are not visited.
func (w *Walker) Resume() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StatePaused {
		return &WalkerProtectionError{Reason: "resume: walker is not paused (state=" + string(w.state) + ")"}
	}
	w.state = StateRunning
	return nil
}

// --- Trail API (spec §4.6: "read-only properties returning defensive
// copies") ---

// Trail returns the ordered list of visited node ids.
func (w *Walker) Trail() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.trail))
	for i, t := range w.trail {
		out[i] = t.NodeID
	}
	return out
}

// TrailEdges returns the ordered list of crossed edge ids ("" where
// none).
func (w *Walker) TrailEdges() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.trail))
	for i, t := range w.trail {
		out[i] = t.EdgeID
	}
	return out
}

// TrailMetadata returns the ordered list of per-step metadata maps.
func (w *Walker) TrailMetadata() []map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]map[string]any, len(w.trail))
	for i, t := range w.trail {
		out[i] = query.DeepCopy(t.Metadata)
	}
	return out
}

// GetRecentTrail returns the last count trail entries (fewer if the
// trail is shorter).
func (w *Walker) GetRecentTrail(count int) []TrailEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	if count <= 0 || count > len(w.trail) {
		count = len(w.trail)
	}
	start := len(w.trail) - count
	out := make([]TrailEntry, count)
	copy(out, w.trail[start:])
	return out
}

// GetTrailLength returns the number of recorded trail entries.
func (w *Walker) GetTrailLength() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.trail)
}

// GetTrailMetadata returns the metadata map at step (negative indexes
// from the end, as in step=-1 for the most recent step).
func (w *Walker) GetTrailMetadata(step int) map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := step
	if idx < 0 {
		idx = len(w.trail) + idx
	}
	if idx < 0 || idx >= len(w.trail) {
		return nil
	}
	return query.DeepCopy(w.trail[idx].Metadata)
}

// ClearTrail empties the trail.
func (w *Walker) ClearTrail() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trail = nil
}

// --- internal helpers used by the engine (walkerengine.go) ---

func (w *Walker) indexOfLocked(entity Entity) int {
	for i, q := range w.queue {
		if q.node.ID() == entity.ID() {
			return i
		}
	}
	return -1
}

func (w *Walker) enqueueBack(entities []Entity, edge Entity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	entities = w.admitLocked(entities)
	for _, e := range entities {
		w.queue = append(w.queue, queueEntry{node: e, edge: edge})
	}
}
