package query

import "testing"

func doc(age int, skills []string) map[string]any {
	s := make([]any, len(skills))
	for i, v := range skills {
		s[i] = v
	}
	return map[string]any{
		"id":         "u1",
		"type_name":  "User",
		"context":    map[string]any{"age": age, "skills": s},
	}
}

func TestMatchEmptyFilterMatchesEverything(t *testing.T) {
	ok, err := Match(doc(30, nil), map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected empty filter to match")
	}
}

func TestMatchGteAndIn(t *testing.T) {
	record := doc(35, []string{"go", "rust"})
	filter := map[string]any{
		"$and": []any{
			map[string]any{"context.age": map[string]any{"$gte": 30}},
			map[string]any{"context.skills": map[string]any{"$in": []any{"rust", "go"}}},
		},
	}
	ok, err := Match(record, filter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected match")
	}
}

func TestMatchNeExcludesExactValueOnly(t *testing.T) {
	ages := []int{25, 30, 35, 40, 45}
	want := map[int]bool{25: true, 30: true, 40: true, 45: true}
	for _, age := range ages {
		ok, err := Match(doc(age, nil), map[string]any{"context.age": map[string]any{"$ne": 35}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok != want[age] {
			t.Errorf("age=%d: got match=%v, want %v", age, ok, want[age])
		}
	}
}

func TestMatchNeMatchesMissing(t *testing.T) {
	record := map[string]any{"id": "u1"}
	ok, err := Match(record, map[string]any{"context.age": map[string]any{"$ne": 10}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected $ne to match a missing field")
	}
}

func TestMatchExistsFalseMatchesMissing(t *testing.T) {
	record := map[string]any{"id": "u1"}
	ok, err := Match(record, map[string]any{"context.age": map[string]any{"$exists": false}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected $exists:false to match missing field")
	}

	record2 := map[string]any{"context": map[string]any{"age": nil}}
	ok2, err := Match(record2, map[string]any{"context.age": map[string]any{"$exists": true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok2 {
		t.Fatal("a present null should count as existing")
	}
}

func TestMatchRegexOnNonStringFieldIsFalse(t *testing.T) {
	record := map[string]any{"context": map[string]any{"age": 30}}
	ok, err := Match(record, map[string]any{"context.age": map[string]any{"$regex": "^3"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("regex on a non-string field must not match")
	}
}

func TestMatchRegexCaseInsensitive(t *testing.T) {
	record := map[string]any{"context": map[string]any{"name": "Alice"}}
	ok, err := Match(record, map[string]any{
		"context.name": map[string]any{"$regex": "alice", "$options": "i"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected case-insensitive regex match")
	}
}

func TestMatchUnknownOperatorErrors(t *testing.T) {
	_, err := Match(map[string]any{}, map[string]any{"context.age": map[string]any{"$bogus": 1}})
	if err == nil {
		t.Fatal("expected an error for an unknown operator")
	}
	if _, ok := err.(*QueryError); !ok {
		t.Fatalf("expected *QueryError, got %T", err)
	}
}

func TestFilterCompositionMatchesConjunction(t *testing.T) {
	record := doc(40, []string{"go"})
	a := map[string]any{"context.age": map[string]any{"$gte": 30}}
	b := map[string]any{"context.skills": map[string]any{"$in": []any{"go"}}}

	and := map[string]any{"$and": []any{a, b}}
	composed, err := Match(record, and)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ma, _ := Match(record, a)
	mb, _ := Match(record, b)
	if composed != (ma && mb) {
		t.Fatalf("match($and:[A,B]) must equal match(A) && match(B)")
	}
}

func TestCompareIncompatibleTypesIsFalse(t *testing.T) {
	record := map[string]any{"context": map[string]any{"age": "thirty"}}
	ok, err := Match(record, map[string]any{"context.age": map[string]any{"$gt": 10}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("comparing number to string must be false, not an error")
	}
}

func TestSequenceFieldInMatchesAnyElement(t *testing.T) {
	record := doc(0, []string{"python", "go"})
	ok, err := Match(record, map[string]any{"context.skills": map[string]any{"$in": []any{"go", "java"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected sequence field to match via any element")
	}
}
