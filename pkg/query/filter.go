package query

// Expr is the closed set of filter expressions a filter document
// compiles to (spec §9: "tagged variant for filter/update operators").
// The concrete types below are jvspatial-internal; callers only ever
// see Filter and its Match/Parse entry points.
type Expr interface {
	eval(doc map[string]any, rc *regexCache) bool
}

type fieldExpr struct {
	path string
	op   Expr
}

func (e *fieldExpr) eval(doc map[string]any, rc *regexCache) bool {
	return e.op.eval(map[string]any{"": resolveField(doc, e.path)}, rc)
}

// scalar wraps a leaf value-comparison operator; it reads the resolved
// field value back out of the single-key map fieldExpr packs it into.
func scalarValue(doc map[string]any) any { return doc[""] }

type eqExpr struct{ v any }

func (e *eqExpr) eval(doc map[string]any, _ *regexCache) bool {
	return valuesEqual(scalarValue(doc), e.v)
}

type neExpr struct{ v any }

func (e *neExpr) eval(doc map[string]any, _ *regexCache) bool {
	return !valuesEqual(scalarValue(doc), e.v)
}

type cmpExpr struct {
	v       any
	gt      bool // false means the "less than" family
	orEqual bool
}

func (e *cmpExpr) eval(doc map[string]any, _ *regexCache) bool {
	actual := scalarValue(doc)
	if isMissing(actual) {
		return false
	}
	if e.gt {
		less, ok := compareLess(e.v, actual)
		if !ok {
			return false
		}
		if e.orEqual {
			return less || valuesEqual(actual, e.v)
		}
		return less
	}
	less, ok := compareLess(actual, e.v)
	if !ok {
		return false
	}
	if e.orEqual {
		return less || valuesEqual(actual, e.v)
	}
	return less
}

type inExpr struct {
	values []any
	negate bool
}

func (e *inExpr) eval(doc map[string]any, _ *regexCache) bool {
	actual := scalarValue(doc)
	var matched bool
	if elems, ok := asSlice(actual); ok {
		for _, el := range elems {
			if inSet(el, e.values) {
				matched = true
				break
			}
		}
	} else {
		matched = inSet(actual, e.values)
	}
	if e.negate {
		return !matched
	}
	return matched
}

type existsExpr struct{ want bool }

func (e *existsExpr) eval(doc map[string]any, _ *regexCache) bool {
	present := !isMissing(scalarValue(doc))
	return present == e.want
}

type regexExpr struct {
	pattern, options string
}

func (e *regexExpr) eval(doc map[string]any, rc *regexCache) bool {
	actual := scalarValue(doc)
	s, ok := actual.(string)
	if !ok {
		return false
	}
	re, err := rc.compile(e.pattern, e.options)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

type andExpr struct{ subs []Expr }

func (e *andExpr) eval(doc map[string]any, rc *regexCache) bool {
	for _, s := range e.subs {
		if !s.eval(doc, rc) {
			return false
		}
	}
	return true
}

type orExpr struct{ subs []Expr }

func (e *orExpr) eval(doc map[string]any, rc *regexCache) bool {
	for _, s := range e.subs {
		if s.eval(doc, rc) {
			return true
		}
	}
	return false
}

type norExpr struct{ subs []Expr }

func (e *norExpr) eval(doc map[string]any, rc *regexCache) bool {
	for _, s := range e.subs {
		if s.eval(doc, rc) {
			return false
		}
	}
	return true
}

type notExpr struct{ sub Expr }

func (e *notExpr) eval(doc map[string]any, rc *regexCache) bool {
	return !e.sub.eval(doc, rc)
}

// topExpr conjoins the implicit top-level field list (spec §4.1: "At
// the top level, multiple keys are implicitly conjoined").
type topExpr struct{ subs []Expr }

func (e *topExpr) eval(doc map[string]any, rc *regexCache) bool {
	for _, s := range e.subs {
		if !s.eval(doc, rc) {
			return false
		}
	}
	return true
}

// Filter is a parsed, reusable filter document.
type Filter struct {
	root Expr
}

// ParseFilter compiles a filter document into a reusable Filter.
// An empty document compiles to a Filter matching everything (spec §8:
// "Empty filter matches everything").
func ParseFilter(doc map[string]any) (*Filter, error) {
	root, err := parseTop(doc)
	if err != nil {
		return nil, err
	}
	return &Filter{root: root}, nil
}

// Match evaluates a pre-parsed filter against record.
func (f *Filter) Match(record map[string]any) bool {
	return f.root.eval(record, newRegexCache())
}

// Match is sugar for ParseFilter(filterDoc).Match(record), for callers
// that do not need to reuse a compiled filter across many records.
func Match(record, filterDoc map[string]any) (bool, error) {
	f, err := ParseFilter(filterDoc)
	if err != nil {
		return false, err
	}
	return f.Match(record), nil
}

func parseTop(doc map[string]any) (Expr, error) {
	if len(doc) == 0 {
		return &andExpr{}, nil
	}
	subs := make([]Expr, 0, len(doc))
	for _, key := range sortedKeys(doc) {
		val := doc[key]
		switch key {
		case "$and":
			e, err := parseExprList(val)
			if err != nil {
				return nil, err
			}
			subs = append(subs, &andExpr{subs: e})
		case "$or":
			e, err := parseExprList(val)
			if err != nil {
				return nil, err
			}
			subs = append(subs, &orExpr{subs: e})
		case "$nor":
			e, err := parseExprList(val)
			if err != nil {
				return nil, err
			}
			subs = append(subs, &norExpr{subs: e})
		case "$not":
			sub, ok := val.(map[string]any)
			if !ok {
				return nil, newQueryError("$not expects a filter document")
			}
			inner, err := parseTop(sub)
			if err != nil {
				return nil, err
			}
			subs = append(subs, &notExpr{sub: inner})
		default:
			fe, err := parseFieldFilter(key, val)
			if err != nil {
				return nil, err
			}
			subs = append(subs, fe)
		}
	}
	return &topExpr{subs: subs}, nil
}

func parseExprList(val any) ([]Expr, error) {
	list, ok := val.([]any)
	if !ok {
		return nil, newQueryError("expected an array of filter documents")
	}
	out := make([]Expr, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, newQueryError("expected a filter document in list")
		}
		e, err := parseTop(m)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// parseFieldFilter parses the value at a field key: either a bare
// scalar (equivalent to {"$eq": scalar}, spec §4.1) or an operator
// document.
func parseFieldFilter(path string, val any) (Expr, error) {
	opDoc, ok := val.(map[string]any)
	if !ok {
		return &fieldExpr{path: path, op: &eqExpr{v: val}}, nil
	}
	if isOperatorDoc(opDoc) {
		op, err := parseOperatorDoc(opDoc)
		if err != nil {
			return nil, err
		}
		return &fieldExpr{path: path, op: op}, nil
	}
	// A plain nested map with no operator keys is an equality match
	// against the whole sub-document.
	return &fieldExpr{path: path, op: &eqExpr{v: val}}, nil
}

func isOperatorDoc(m map[string]any) bool {
	for k := range m {
		if len(k) > 0 && k[0] == '$' {
			return true
		}
	}
	return false
}

func parseOperatorDoc(m map[string]any) (Expr, error) {
	var ops []Expr
	options, _ := m["$options"].(string)
	for key, val := range m {
		switch key {
		case "$eq":
			ops = append(ops, &eqExpr{v: val})
		case "$ne":
			ops = append(ops, &neExpr{v: val})
		case "$gt":
			ops = append(ops, &cmpExpr{v: val, gt: true})
		case "$gte":
			ops = append(ops, &cmpExpr{v: val, gt: true, orEqual: true})
		case "$lt":
			ops = append(ops, &cmpExpr{v: val})
		case "$lte":
			ops = append(ops, &cmpExpr{v: val, orEqual: true})
		case "$in":
			list, ok := asSlice(val)
			if !ok {
				return nil, newQueryError("$in expects an array")
			}
			ops = append(ops, &inExpr{values: list})
		case "$nin":
			list, ok := asSlice(val)
			if !ok {
				return nil, newQueryError("$nin expects an array")
			}
			ops = append(ops, &inExpr{values: list, negate: true})
		case "$exists":
			want, ok := val.(bool)
			if !ok {
				return nil, newQueryError("$exists expects a boolean")
			}
			ops = append(ops, &existsExpr{want: want})
		case "$regex":
			pattern, ok := val.(string)
			if !ok {
				return nil, newQueryError("$regex expects a string")
			}
			if _, err := newRegexCache().compile(pattern, options); err != nil {
				return nil, newQueryError("invalid $regex %q: %v", pattern, err)
			}
			ops = append(ops, &regexExpr{pattern: pattern, options: options})
		case "$options":
			// consumed alongside $regex
		default:
			return nil, newQueryError("unknown filter operator %q", key)
		}
	}
	if len(ops) == 1 {
		return ops[0], nil
	}
	return &andExpr{subs: ops}, nil
}
