package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/TrueSelph/jvspatial-go/pkg/query"
)

// Key layout for the DocStore backend. Collections are namespaced by
// their name followed by a NUL separator rather than nornicdb's single
// fixed byte per entity kind (prefixNode/prefixEdge), since jvspatial's
// collections are open-ended (any Object subclass may define its own),
// not a fixed two-entity property graph.
const (
	recordKeyTag = byte(0x01) // record: <tag><coll>\x00<id>
	indexKeyTag  = byte(0x02) // index:  <tag><coll>\x00<field>\x00<value>\x00<id>
)

// DocStore is a Backend implementation standing in for "an external
// document database" (spec §4.2): an embedded, transactionally
// consistent BadgerDB engine with JSON-encoded records and lazily
// built secondary indexes, generalizing
// nornicdb/pkg/storage/badger.go's node/edge-specific key scheme
// (prefixNode/prefixLabelIndex/...) to arbitrary collections and
// fields.
//
// Find executes a filter natively against an index when one exists
// for an equality-constrained field; otherwise it falls back to a
// full-collection scan plus pkg/query.Match, which is the "naive
// index use" spec §1 explicitly scopes as sufficient.
type DocStore struct {
	db *badger.DB

	mu      sync.RWMutex
	indexed map[string]map[string]bool // collection -> field -> has-index
	closed  bool
}

// DocStoreOptions configures the embedded Badger instance.
type DocStoreOptions struct {
	// Path is the on-disk directory for the Badger files (DOCSTORE_URI
	// in pkg/config).
	Path string
	// InMemory runs Badger with no disk persistence, for tests.
	InMemory bool
}

// NewDocStore opens (or creates) a Badger-backed document store.
func NewDocStore(opts DocStoreOptions) (*DocStore, error) {
	badgerOpts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, wrapErr("open", err)
	}
	return &DocStore{
		db:      db,
		indexed: make(map[string]map[string]bool),
	}, nil
}

func recordKey(collection, id string) []byte {
	return []byte(fmt.Sprintf("%c%s\x00%s", recordKeyTag, collection, id))
}

func recordKeyPrefix(collection string) []byte {
	return []byte(fmt.Sprintf("%c%s\x00", recordKeyTag, collection))
}

func indexKey(collection, field string, value any, id string) []byte {
	return []byte(fmt.Sprintf("%c%s\x00%s\x00%v\x00%s", indexKeyTag, collection, field, value, id))
}

func indexPrefixForValue(collection, field string, value any) []byte {
	return []byte(fmt.Sprintf("%c%s\x00%s\x00%v\x00", indexKeyTag, collection, field, value))
}

func idFromIndexKey(key []byte) string {
	parts := strings.Split(string(key), "\x00")
	return parts[len(parts)-1]
}

func idFromRecordKey(key []byte, collection string) string {
	return strings.TrimPrefix(string(key), string(recordKeyPrefix(collection)))
}

func (d *DocStore) hasIndex(collection, field string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.indexed[collection][field]
}

// EnsureIndex builds (or marks as built) a secondary index over
// collection.field from the records already stored, so future
// equality filters on that field can be served natively rather than
// by a full scan.
func (d *DocStore) EnsureIndex(ctx context.Context, collection, field string) error {
	d.mu.Lock()
	if d.indexed[collection] == nil {
		d.indexed[collection] = make(map[string]bool)
	}
	if d.indexed[collection][field] {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	recs, err := d.scanCollection(collection)
	if err != nil {
		return err
	}
	err = d.db.Update(func(txn *badger.Txn) error {
		for id, rec := range recs {
			if v, ok := rec[field]; ok {
				if err := txn.Set(indexKey(collection, field, v, id), []byte{}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return wrapErr("index", err)
	}

	d.mu.Lock()
	d.indexed[collection][field] = true
	d.mu.Unlock()
	return nil
}

func (d *DocStore) scanCollection(collection string) (map[string]Record, error) {
	out := make(map[string]Record)
	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := recordKeyPrefix(collection)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id := idFromRecordKey(item.Key(), collection)
			err := item.Value(func(val []byte) error {
				var rec Record
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				out[id] = rec
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (d *DocStore) Get(_ context.Context, collection, id string) (Record, error) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil, ErrClosed
	}
	d.mu.RUnlock()

	var rec Record
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(collection, id))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, wrapErr("get", err)
	}
	return rec, nil
}

func (d *DocStore) Save(_ context.Context, collection string, record Record) (Record, error) {
	id, _ := record["id"].(string)
	if id == "" {
		return nil, ErrInvalidID
	}
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil, ErrClosed
	}
	indexedFields := d.indexed[collection]
	d.mu.RUnlock()

	data, err := json.Marshal(record)
	if err != nil {
		return nil, wrapErr("save", err)
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		// Drop stale index entries for this id before re-indexing, in
		// case an indexed field's value changed.
		if prev, perr := txn.Get(recordKey(collection, id)); perr == nil {
			var prevRec Record
			if verr := prev.Value(func(val []byte) error {
				return json.Unmarshal(val, &prevRec)
			}); verr == nil {
				for field := range indexedFields {
					if v, ok := prevRec[field]; ok {
						txn.Delete(indexKey(collection, field, v, id))
					}
				}
			}
		}
		if err := txn.Set(recordKey(collection, id), data); err != nil {
			return err
		}
		for field := range indexedFields {
			if v, ok := record[field]; ok {
				if err := txn.Set(indexKey(collection, field, v, id), []byte{}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("save", err)
	}
	return query.DeepCopy(record), nil
}

func (d *DocStore) Delete(_ context.Context, collection, id string) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrClosed
	}
	indexedFields := d.indexed[collection]
	d.mu.RUnlock()

	return wrapErr("delete", d.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(collection, id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var rec Record
		if verr := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); verr == nil {
			for field := range indexedFields {
				if v, ok := rec[field]; ok {
					txn.Delete(indexKey(collection, field, v, id))
				}
			}
		}
		return txn.Delete(recordKey(collection, id))
	}))
}

// Find evaluates filter against every record in collection. When
// filter is a single top-level equality constraint on an indexed
// field, the index is consulted directly instead of scanning.
func (d *DocStore) Find(_ context.Context, collection string, filter map[string]any, opts FindOptions) ([]Record, error) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil, ErrClosed
	}
	d.mu.RUnlock()

	if field, value, ok := singleEqualityField(filter); ok && d.hasIndex(collection, field) {
		recs, err := d.findByIndex(collection, field, value)
		if err != nil {
			return nil, err
		}
		return applyFindOptions(recs, opts), nil
	}

	all, err := d.scanCollection(collection)
	if err != nil {
		return nil, wrapErr("find", err)
	}
	f, err := query.ParseFilter(filter)
	if err != nil {
		return nil, wrapErr("find", err)
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []Record
	for _, id := range ids {
		if f.Match(all[id]) {
			out = append(out, all[id])
		}
	}
	return applyFindOptions(out, opts), nil
}

func (d *DocStore) findByIndex(collection, field string, value any) ([]Record, error) {
	var out []Record
	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := indexPrefixForValue(collection, field, value)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := idFromIndexKey(it.Item().Key())
			item, err := txn.Get(recordKey(collection, id))
			if err != nil {
				continue // soft-missing: index entry outlived its record
			}
			var rec Record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, wrapErr("find", err)
}

// singleEqualityField detects the common-case filter
// {"field": {"$eq": v}} or {"field": v}, the only shape the index can
// serve natively.
func singleEqualityField(filter map[string]any) (string, any, bool) {
	if len(filter) != 1 {
		return "", nil, false
	}
	for k, v := range filter {
		if len(k) > 0 && k[0] == '$' {
			return "", nil, false
		}
		if m, ok := v.(map[string]any); ok {
			if len(m) == 1 {
				if eq, ok := m["$eq"]; ok {
					return k, eq, true
				}
			}
			return "", nil, false
		}
		return k, v, true
	}
	return "", nil, false
}

func (d *DocStore) FindOne(ctx context.Context, collection string, filter map[string]any) (Record, error) {
	recs, err := d.Find(ctx, collection, filter, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

func (d *DocStore) Count(ctx context.Context, collection string, filter map[string]any) (int, error) {
	recs, err := d.Find(ctx, collection, filter, FindOptions{})
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (d *DocStore) Distinct(ctx context.Context, collection, field string, filter map[string]any) ([]any, error) {
	recs, err := d.Find(ctx, collection, filter, FindOptions{})
	if err != nil {
		return nil, err
	}
	return distinctValues(recs, field), nil
}

func (d *DocStore) BulkSave(ctx context.Context, collection string, records []Record) ([]Record, error) {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		saved, err := d.Save(ctx, collection, r)
		if err != nil {
			return nil, err
		}
		out = append(out, saved)
	}
	return out, nil
}

func (d *DocStore) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return wrapErr("close", d.db.Close())
}
