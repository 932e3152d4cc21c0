package query

import "testing"

func TestApplySetCreatesIntermediateMaps(t *testing.T) {
	out, err := Apply(map[string]any{}, map[string]any{
		"$set": map[string]any{"context.profile.bio": "hi"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := out["context"].(map[string]any)
	profile := ctx["profile"].(map[string]any)
	if profile["bio"] != "hi" {
		t.Fatalf("got %v", profile)
	}
}

func TestApplyUnsetMissingIsNoop(t *testing.T) {
	doc := map[string]any{"context": map[string]any{"a": 1}}
	out, err := Apply(doc, map[string]any{"$unset": map[string]any{"context.b": ""}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := out["context"].(map[string]any)
	if ctx["a"] != 1 {
		t.Fatalf("unrelated field should survive: %v", ctx)
	}
}

func TestApplyIncCreatesFieldAsZero(t *testing.T) {
	out, err := Apply(map[string]any{}, map[string]any{"$inc": map[string]any{"context.count": 5}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := out["context"].(map[string]any)
	if ctx["count"] != 5.0 {
		t.Fatalf("got %v", ctx["count"])
	}
}

func TestApplyPushCreatesSingleElementSequence(t *testing.T) {
	out, err := Apply(map[string]any{}, map[string]any{"$push": map[string]any{"context.tags": "a"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := out["context"].(map[string]any)
	tags := ctx["tags"].([]any)
	if len(tags) != 1 || tags[0] != "a" {
		t.Fatalf("got %v", tags)
	}
}

func TestApplyPullRemovesMatchingElements(t *testing.T) {
	doc := map[string]any{"context": map[string]any{"tags": []any{"a", "b", "a"}}}
	out, err := Apply(doc, map[string]any{"$pull": map[string]any{"context.tags": "a"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := out["context"].(map[string]any)
	tags := ctx["tags"].([]any)
	if len(tags) != 1 || tags[0] != "b" {
		t.Fatalf("got %v", tags)
	}
}

func TestApplyNoOperatorsReplacesContext(t *testing.T) {
	doc := map[string]any{"id": "n1", "type_name": "Node", "context": map[string]any{"old": true}}
	out, err := Apply(doc, map[string]any{"new": "value"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["id"] != "n1" || out["type_name"] != "Node" {
		t.Fatalf("id/type_name must survive a full replacement: %v", out)
	}
	ctx := out["context"].(map[string]any)
	if ctx["new"] != "value" || ctx["old"] != nil {
		t.Fatalf("expected context fully replaced, got %v", ctx)
	}
}

func TestParseUpdateEmptyDocumentIsError(t *testing.T) {
	_, err := ParseUpdate(map[string]any{})
	if err == nil {
		t.Fatal("expected an error for an empty update document")
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	doc := map[string]any{"context": map[string]any{"a": 1}}
	_, err := Apply(doc, map[string]any{"$set": map[string]any{"context.a": 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := doc["context"].(map[string]any)
	if ctx["a"] != 1 {
		t.Fatalf("input document must not be mutated, got %v", ctx)
	}
}
