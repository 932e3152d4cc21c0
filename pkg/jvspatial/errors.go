package jvspatial

import "fmt"

// AttributeProtectionError is returned when code attempts to reassign a
// protected attribute after construction (Object.id, Edge.SourceID/
// TargetID, …).
type AttributeProtectionError struct {
	Attr string
	Type string
}

func (e *AttributeProtectionError) Error() string {
	return fmt.Sprintf("jvspatial: attribute %q is protected on %s and cannot be reassigned after construction", e.Attr, e.Type)
}

// EntityNotFound is returned by Get/FindOne when no record matches.
type EntityNotFound struct {
	Collection string
	ID         string
}

func (e *EntityNotFound) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("jvspatial: %s %q not found", e.Collection, e.ID)
	}
	return fmt.Sprintf("jvspatial: no %s matches the given filter", e.Collection)
}

// ValidationError signals malformed input to an entity-level operation
// (missing required field, bad direction string, …).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "jvspatial: " + e.Msg }

// DatabaseError wraps a backend-level failure (IO, corruption,
// backend-specific error) surfaced to the caller unchanged.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string { return fmt.Sprintf("jvspatial: database %s: %v", e.Op, e.Err) }
func (e *DatabaseError) Unwrap() error { return e.Err }

// WalkerTimeoutError is recorded when a walker's max_execution_time
// limit trips.
type WalkerTimeoutError struct {
	Elapsed string
	Limit   string
}

func (e *WalkerTimeoutError) Error() string {
	return fmt.Sprintf("jvspatial: walker exceeded max execution time (%s elapsed, limit %s)", e.Elapsed, e.Limit)
}

// WalkerProtectionError is recorded when a non-timeout runaway
// protection limit trips (max_steps, max_visits_per_node).
type WalkerProtectionError struct {
	Reason string
}

func (e *WalkerProtectionError) Error() string { return "jvspatial: walker protection tripped: " + e.Reason }

// QueryError signals a malformed filter or update document; re-exported
// here so callers of this package never need to import pkg/query
// directly to catch it.
type QueryError struct {
	Msg string
}

func (e *QueryError) Error() string { return "jvspatial: " + e.Msg }
