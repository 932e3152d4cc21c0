package jvspatial

import "strings"

// dotGet/dotSet give Object.Get/Object.Set dot-path addressing into the
// context sub-document: Get("a.b") reads the field a filter document
// addresses as "context.a.b". Unlike QueryEngine field resolution,
// every segment is a map key; a sequence is never indexed.

func dotGet(doc map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var cur any = doc
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		val, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = val
	}
	return cur, true
}

func dotSet(doc map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	cur := doc
	for i, seg := range segments {
		if i == len(segments)-1 {
			cur[seg] = value
			return
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
}
