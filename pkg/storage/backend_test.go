package storage

import (
	"context"
	"strconv"
	"testing"
)

// backends returns one fresh instance of every Backend implementation,
// so the shared behavior tests below run identically across all of
// them (spec §4.2: "Implementations MUST consume the QueryEngine's
// filter/update documents unchanged").
func backends(t *testing.T) map[string]Backend {
	t.Helper()
	fileDB, err := NewFileDB(FileDBOptions{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("NewFileDB: %v", err)
	}
	docStore, err := NewDocStore(DocStoreOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewDocStore: %v", err)
	}
	t.Cleanup(func() {
		fileDB.Close()
		docStore.Close()
	})
	return map[string]Backend{
		"memdb":    NewMemDB(),
		"filedb":   fileDB,
		"docstore": docStore,
	}
}

func TestBackendSaveGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			rec := Record{"id": "n1", "type_name": "Node", "context": map[string]any{"x": 1.0}}
			if _, err := b.Save(ctx, "node", rec); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := b.Get(ctx, "node", "n1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got["type_name"] != "Node" {
				t.Fatalf("got %v", got)
			}
		})
	}
}

func TestBackendGetMissingReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Get(ctx, "node", "nope")
			if err != ErrNotFound {
				t.Fatalf("got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestBackendDeleteIsNoopWhenMissing(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.Delete(ctx, "node", "nope"); err != nil {
				t.Fatalf("expected no error deleting a missing record, got %v", err)
			}
		})
	}
}

func TestBackendFindWithFilter(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, age := range []int{25, 30, 35, 40, 45} {
				rec := Record{
					"id":        "u-" + strconv.Itoa(age),
					"type_name": "User",
					"context":   map[string]any{"age": age},
				}
				if _, err := b.Save(ctx, "node", rec); err != nil {
					t.Fatalf("Save: %v", err)
				}
			}
			recs, err := b.Find(ctx, "node", map[string]any{"context.age": map[string]any{"$gte": 30}}, FindOptions{})
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			if len(recs) != 4 {
				t.Fatalf("got %d records, want 4", len(recs))
			}
		})
	}
}

func TestBackendSaveIsUpsert(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			rec := Record{"id": "n1", "type_name": "Node", "context": map[string]any{"v": 1.0}}
			if _, err := b.Save(ctx, "node", rec); err != nil {
				t.Fatalf("Save: %v", err)
			}
			rec["context"] = map[string]any{"v": 2.0}
			if _, err := b.Save(ctx, "node", rec); err != nil {
				t.Fatalf("Save (upsert): %v", err)
			}
			got, err := b.Get(ctx, "node", "n1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			ctxMap := got["context"].(map[string]any)
			if ctxMap["v"] != 2.0 {
				t.Fatalf("expected upsert to overwrite, got %v", ctxMap)
			}
			count, err := b.Count(ctx, "node", map[string]any{})
			if err != nil {
				t.Fatalf("Count: %v", err)
			}
			if count != 1 {
				t.Fatalf("expected exactly one record after upsert, got %d", count)
			}
		})
	}
}

func TestBackendDistinct(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b.Save(ctx, "node", Record{"id": "a", "type_name": "X"})
			b.Save(ctx, "node", Record{"id": "b", "type_name": "Y"})
			b.Save(ctx, "node", Record{"id": "c", "type_name": "X"})
			vals, err := b.Distinct(ctx, "node", "type_name", nil)
			if err != nil {
				t.Fatalf("Distinct: %v", err)
			}
			if len(vals) != 2 {
				t.Fatalf("got %v", vals)
			}
		})
	}
}
