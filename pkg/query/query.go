// Package query implements jvspatial's unified filter/update document
// language (spec §4.1): a small, Mongo-shaped query language evaluated
// identically across every storage backend.
//
// A filter document is parsed once into a closed expression tree
// (Expr) and then evaluated against records with Match — the "tagged
// variant" approach spec §9 recommends over re-walking the raw map on
// every record, mirroring the AST-first shape of
// nornicdb/pkg/cypher/ast_builder.go, generalized from Cypher syntax to
// a document filter.
package query

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// QueryError is returned for malformed filter or update documents
// (spec §6): unknown operators, bad regex, non-numeric $inc targets.
type QueryError struct {
	Msg string
}

func (e *QueryError) Error() string { return "query: " + e.Msg }

func newQueryError(format string, args ...any) *QueryError {
	return &QueryError{Msg: fmt.Sprintf(format, args...)}
}

// missing is the sentinel returned by field resolution when a dot-path
// does not resolve to any value. It is distinct from a resolved nil.
type missingType struct{}

var missing = missingType{}

func isMissing(v any) bool {
	_, ok := v.(missingType)
	return ok
}

// resolveField walks doc along a dot-path (spec §4.1: "Field
// addressing"). At each step, a map is indexed by key; a slice is
// indexed by parsing the segment as a non-negative integer; anything
// else yields missing.
func resolveField(doc map[string]any, path string) any {
	var cur any = doc
	for _, seg := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return missing
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return missing
			}
			cur = v[idx]
		default:
			return missing
		}
	}
	return cur
}

// regexCache caches compiled patterns per filter evaluation, keyed by
// pattern+flags, as spec §4.1 requires ("Regex patterns are cached per
// filter evaluation"). Mirrors nornicdb/pkg/cypher/cache.go's
// compiled-plan cache.
type regexCache struct {
	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

func newRegexCache() *regexCache {
	return &regexCache{cache: make(map[string]*regexp.Regexp)}
}

func (c *regexCache) compile(pattern, options string) (*regexp.Regexp, error) {
	key := options + "\x00" + pattern
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.cache[key]; ok {
		return re, nil
	}
	goPattern := pattern
	if strings.Contains(options, "i") {
		goPattern = "(?i)" + goPattern
	}
	re, err := regexp.Compile(goPattern)
	if err != nil {
		return nil, err
	}
	c.cache[key] = re
	return re, nil
}

// collation order used only as a tie-break for $gt/$lt across mixed
// types (spec §4.1): numeric < string < sequence < mapping.
func collationRank(v any) int {
	switch v.(type) {
	case int, int64, float64, float32, int32:
		return 0
	case string:
		return 1
	case []any:
		return 2
	case map[string]any:
		return 3
	default:
		return -1
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

// valuesEqual implements the equality rule used by $eq/$ne/$in: missing
// never equals any value, including null.
func valuesEqual(a, b any) bool {
	if isMissing(a) || isMissing(b) {
		return false
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return a == b
}

// compareLess reports whether a < b under the total order spec §4.1
// defines: numbers and strings compare natively; comparison across
// incompatible types is false (not an error) unless both fall back to
// the collation-rank tie-break for equality-adjacent comparisons.
func compareLess(a, b any) (less, comparable bool) {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af < bf, true
		}
		return false, false
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return as < bs, true
		}
		return false, false
	}
	ra, rb := collationRank(a), collationRank(b)
	if ra < 0 || rb < 0 {
		return false, false
	}
	return ra < rb, true
}

func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func inSet(needle any, haystack []any) bool {
	for _, h := range haystack {
		if valuesEqual(needle, h) {
			return true
		}
	}
	return false
}

// sortedKeys returns m's keys sorted, for deterministic $and iteration
// order in error messages and logging.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var errEmptyUpdate = errors.New("query: update document has no operators")
