package query

// updateOp is one compiled operator application: set a dot-path to a
// value, remove it, increment it, or mutate an array at it.
type updateOp interface {
	apply(doc map[string]any)
}

type setOp struct {
	path string
	val  any
}

func (o *setOp) apply(doc map[string]any) { setPath(doc, o.path, o.val) }

type unsetOp struct{ path string }

func (o *unsetOp) apply(doc map[string]any) { unsetPath(doc, o.path) }

type incOp struct {
	path string
	by   float64
}

func (o *incOp) apply(doc map[string]any) {
	cur := resolveField(doc, o.path)
	base := 0.0
	if f, ok := toFloat(cur); ok {
		base = f
	}
	setPath(doc, o.path, base+o.by)
}

type pushOp struct {
	path string
	val  any
}

func (o *pushOp) apply(doc map[string]any) {
	cur := resolveField(doc, o.path)
	if elems, ok := asSlice(cur); ok {
		setPath(doc, o.path, append(append([]any{}, elems...), o.val))
		return
	}
	setPath(doc, o.path, []any{o.val})
}

type pullOp struct {
	path string
	val  any
}

func (o *pullOp) apply(doc map[string]any) {
	cur := resolveField(doc, o.path)
	elems, ok := asSlice(cur)
	if !ok {
		return
	}
	kept := make([]any, 0, len(elems))
	for _, el := range elems {
		if !valuesEqual(el, o.val) {
			kept = append(kept, el)
		}
	}
	setPath(doc, o.path, kept)
}

// Update is a parsed, reusable update document.
type Update struct {
	ops []updateOp
	// replacement holds the context-replacement document when the
	// update had no operators (spec §4.1: "An update document with no
	// operators is treated as a full replacement of the context
	// sub-document, preserving id and type_name").
	replacement map[string]any
	isReplace   bool
}

// ParseUpdate compiles an update document. An empty document is an
// error (spec §8: "empty update is an error").
func ParseUpdate(doc map[string]any) (*Update, error) {
	if len(doc) == 0 {
		return nil, errEmptyUpdate
	}
	hasOperator := false
	for k := range doc {
		if len(k) > 0 && k[0] == '$' {
			hasOperator = true
			break
		}
	}
	if !hasOperator {
		return &Update{replacement: doc, isReplace: true}, nil
	}

	var ops []updateOp
	for _, key := range sortedKeys(doc) {
		val := doc[key]
		switch key {
		case "$set":
			m, ok := val.(map[string]any)
			if !ok {
				return nil, newQueryError("$set expects a document")
			}
			for path, v := range m {
				ops = append(ops, &setOp{path: path, val: v})
			}
		case "$unset":
			m, ok := val.(map[string]any)
			if !ok {
				return nil, newQueryError("$unset expects a document")
			}
			for path := range m {
				ops = append(ops, &unsetOp{path: path})
			}
		case "$inc":
			m, ok := val.(map[string]any)
			if !ok {
				return nil, newQueryError("$inc expects a document")
			}
			for path, v := range m {
				f, ok := toFloat(v)
				if !ok {
					return nil, newQueryError("$inc value for %q must be numeric", path)
				}
				ops = append(ops, &incOp{path: path, by: f})
			}
		case "$push":
			m, ok := val.(map[string]any)
			if !ok {
				return nil, newQueryError("$push expects a document")
			}
			for path, v := range m {
				ops = append(ops, &pushOp{path: path, val: v})
			}
		case "$pull":
			m, ok := val.(map[string]any)
			if !ok {
				return nil, newQueryError("$pull expects a document")
			}
			for path, v := range m {
				ops = append(ops, &pullOp{path: path, val: v})
			}
		default:
			return nil, newQueryError("unknown update operator %q", key)
		}
	}
	return &Update{ops: ops}, nil
}

// Apply returns a new document with u applied to doc. doc itself is
// left untouched.
func (u *Update) Apply(doc map[string]any) map[string]any {
	out := deepCopyMap(doc)
	if u.isReplace {
		id := out["id"]
		typeName := out["type_name"]
		result := map[string]any{"context": u.replacement}
		if id != nil {
			result["id"] = id
		}
		if typeName != nil {
			result["type_name"] = typeName
		}
		return result
	}
	for _, op := range u.ops {
		op.apply(out)
	}
	return out
}

// Apply is sugar for ParseUpdate(updateDoc).Apply(doc).
func Apply(doc, updateDoc map[string]any) (map[string]any, error) {
	u, err := ParseUpdate(updateDoc)
	if err != nil {
		return nil, err
	}
	return u.Apply(doc), nil
}

func setPath(doc map[string]any, path string, val any) {
	segs := splitPath(path)
	cur := doc
	for i, seg := range segs {
		if i == len(segs)-1 {
			cur[seg] = val
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

func unsetPath(doc map[string]any, path string) {
	segs := splitPath(path)
	cur := doc
	for i, seg := range segs {
		if i == len(segs)-1 {
			delete(cur, seg)
			return
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
}

func splitPath(path string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}
	segs = append(segs, path[start:])
	return segs
}

// DeepCopy returns a deep copy of a document, for backends that need
// to hand out records without letting a caller mutate stored state
// through the returned map.
func DeepCopy(m map[string]any) map[string]any {
	return deepCopyMap(m)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return deepCopyMap(x)
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = deepCopyValue(el)
		}
		return out
	default:
		return x
	}
}
