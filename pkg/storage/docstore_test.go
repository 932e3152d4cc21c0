package storage

import (
	"context"
	"testing"
)

func TestDocStoreEnsureIndexServesNatively(t *testing.T) {
	ctx := context.Background()
	d, err := NewDocStore(DocStoreOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewDocStore: %v", err)
	}
	defer d.Close()

	for _, tn := range []string{"User", "Admin", "User"} {
		if _, err := d.Save(ctx, "node", Record{"id": tn + "-" + randSuffix(), "type_name": tn}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if err := d.EnsureIndex(ctx, "node", "type_name"); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	recs, err := d.Find(ctx, "node", map[string]any{"type_name": "User"}, FindOptions{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
}

func TestDocStoreIndexToleratesDeletedRecord(t *testing.T) {
	ctx := context.Background()
	d, err := NewDocStore(DocStoreOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewDocStore: %v", err)
	}
	defer d.Close()

	d.Save(ctx, "node", Record{"id": "n1", "type_name": "User"})
	if err := d.EnsureIndex(ctx, "node", "type_name"); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if err := d.Delete(ctx, "node", "n1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	recs, err := d.Find(ctx, "node", map[string]any{"type_name": "User"}, FindOptions{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected deleted record gone from index-served find, got %v", recs)
	}
}

var suffixCounter int

func randSuffix() string {
	suffixCounter++
	return string(rune('a' + suffixCounter%26))
}
