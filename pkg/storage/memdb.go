package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/TrueSelph/jvspatial-go/pkg/query"
)

// MemDB is an in-memory Backend with no persistence: a map of
// collections, each a map of id -> Record, guarded by a single
// RWMutex. It exists for fast unit tests that exercise GraphOps and
// WalkerEngine without touching disk or Badger, mirroring the role
// nornicdb's own MemoryEngine plays in that codebase's test suite
// ("Unit testing (no disk I/O, fast cleanup)").
type MemDB struct {
	mu          sync.RWMutex
	collections map[string]map[string]Record
	closed      bool
}

// NewMemDB creates an empty in-memory backend.
func NewMemDB() *MemDB {
	return &MemDB{collections: make(map[string]map[string]Record)}
}

func (m *MemDB) coll(name string) map[string]Record {
	c, ok := m.collections[name]
	if !ok {
		c = make(map[string]Record)
		m.collections[name] = c
	}
	return c
}

func (m *MemDB) Get(_ context.Context, collection, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	rec, ok := m.coll(collection)[id]
	if !ok {
		return nil, ErrNotFound
	}
	return query.DeepCopy(rec), nil
}

func (m *MemDB) Save(_ context.Context, collection string, record Record) (Record, error) {
	id, _ := record["id"].(string)
	if id == "" {
		return nil, ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	copy := query.DeepCopy(record)
	m.coll(collection)[id] = copy
	return query.DeepCopy(copy), nil
}

func (m *MemDB) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.coll(collection), id)
	return nil
}

func (m *MemDB) Find(_ context.Context, collection string, filter map[string]any, opts FindOptions) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	f, err := query.ParseFilter(filter)
	if err != nil {
		return nil, wrapErr("find", err)
	}
	var out []Record
	for _, id := range sortedIDs(m.coll(collection)) {
		rec := m.coll(collection)[id]
		if f.Match(rec) {
			out = append(out, query.DeepCopy(rec))
		}
	}
	return applyFindOptions(out, opts), nil
}

func (m *MemDB) FindOne(ctx context.Context, collection string, filter map[string]any) (Record, error) {
	recs, err := m.Find(ctx, collection, filter, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

func (m *MemDB) Count(ctx context.Context, collection string, filter map[string]any) (int, error) {
	recs, err := m.Find(ctx, collection, filter, FindOptions{})
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (m *MemDB) Distinct(ctx context.Context, collection, field string, filter map[string]any) ([]any, error) {
	recs, err := m.Find(ctx, collection, filter, FindOptions{})
	if err != nil {
		return nil, err
	}
	return distinctValues(recs, field), nil
}

func (m *MemDB) BulkSave(ctx context.Context, collection string, records []Record) ([]Record, error) {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		saved, err := m.Save(ctx, collection, r)
		if err != nil {
			return nil, err
		}
		out = append(out, saved)
	}
	return out, nil
}

func (m *MemDB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func sortedIDs(coll map[string]Record) []string {
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// applyFindOptions applies Skip/Limit/Sort to an already-filtered,
// stable-ordered result set.
func applyFindOptions(recs []Record, opts FindOptions) []Record {
	if opts.Sort != "" {
		field := opts.Sort
		desc := false
		if len(field) > 0 && field[0] == '-' {
			desc = true
			field = field[1:]
		}
		sort.SliceStable(recs, func(i, j int) bool {
			a, b := recs[i][field], recs[j][field]
			if desc {
				a, b = b, a
			}
			var fa, fb float64
			if _, err := fmt.Sscan(fmt.Sprint(a), &fa); err == nil {
				if _, err := fmt.Sscan(fmt.Sprint(b), &fb); err == nil {
					return fa < fb
				}
			}
			return fmt.Sprint(a) < fmt.Sprint(b)
		})
	}
	if opts.Skip > 0 {
		if opts.Skip >= len(recs) {
			return nil
		}
		recs = recs[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < len(recs) {
		recs = recs[:opts.Limit]
	}
	return recs
}

func distinctValues(recs []Record, field string) []any {
	seen := make(map[string]bool)
	var out []any
	for _, r := range recs {
		v, ok := r[field]
		if !ok {
			continue
		}
		key := fmt.Sprint(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
