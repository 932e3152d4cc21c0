package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/TrueSelph/jvspatial-go/pkg/query"
	"golang.org/x/crypto/pbkdf2"
)

// FileDB is a JSON-file-backed Backend (spec §4.2, "File-backed"):
// each collection is a single JSON array on disk at
// <root>/<collection>.json, loaded into memory on first access and
// flushed with a write-temp-fsync-rename, exactly the atomic-write
// routine nornicdb/pkg/storage/wal.go uses for its own snapshots,
// generalized here from "periodic snapshot of the whole engine" to
// "the collection file is the only copy".
//
// FileDB tolerates a single process; concurrent writers within that
// process are serialized by one in-process mutex shared by every
// collection, so writes to different collections are serialized too.
type FileDB struct {
	root string
	key  []byte // nil unless at-rest encryption is enabled

	mu     sync.Mutex // guards collections + file I/O together
	loaded map[string]bool
	data   map[string]map[string]Record
	closed bool
}

// FileDBOptions configures FileDB.
type FileDBOptions struct {
	// Root is the directory holding "<collection>.json" files.
	Root string
	// EncryptionPassphrase, if non-empty, enables AES-256-GCM at-rest
	// encryption keyed by a PBKDF2-derived key (SPEC_FULL.md "DOMAIN
	// STACK": FILE_DB_ENCRYPTION_KEY), the same derive-then-encrypt
	// shape as nornicdb/pkg/encryption/encryption.go.
	EncryptionPassphrase string
}

const pbkdf2Iterations = 100_000
const pbkdf2KeyLen = 32 // AES-256

// saltSuffix is the fixed PBKDF2 salt used for every FileDB; nothing
// is written to the data files for it, so a given passphrase derives
// the same key in every deployment. Changing the passphrase changes
// the derived key.
var saltSuffix = []byte("jvspatial-filedb-v1")

func deriveKey(passphrase string) []byte {
	return pbkdf2.Key([]byte(passphrase), saltSuffix, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
}

// NewFileDB creates a FileDB rooted at opts.Root, creating the
// directory if needed.
func NewFileDB(opts FileDBOptions) (*FileDB, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("storage: FileDB root directory is required")
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, wrapErr("open", err)
	}
	db := &FileDB{
		root:   opts.Root,
		loaded: make(map[string]bool),
		data:   make(map[string]map[string]Record),
	}
	if opts.EncryptionPassphrase != "" {
		db.key = deriveKey(opts.EncryptionPassphrase)
	}
	return db, nil
}

func (db *FileDB) path(collection string) string {
	return filepath.Join(db.root, collection+".json")
}

// ensureLoaded lazily reads <collection>.json into memory. Caller
// holds db.mu.
func (db *FileDB) ensureLoaded(collection string) error {
	if db.loaded[collection] {
		return nil
	}
	plain, err := db.readFile(db.path(collection))
	if os.IsNotExist(err) {
		db.data[collection] = make(map[string]Record)
		db.loaded[collection] = true
		return nil
	}
	if err != nil {
		return wrapErr("load", err)
	}
	var records []Record
	if len(plain) > 0 {
		if err := json.Unmarshal(plain, &records); err != nil {
			return wrapErr("load", fmt.Errorf("%s: %w", collection, err))
		}
	}
	byID := make(map[string]Record, len(records))
	for _, r := range records {
		id, _ := r["id"].(string)
		if id != "" {
			byID[id] = r
		}
	}
	db.data[collection] = byID
	db.loaded[collection] = true
	return nil
}

// flush writes the in-memory collection back to disk atomically:
// write to "<collection>.json.tmp", fsync, rename over the real path
// (spec §4.2/§6). Caller holds db.mu.
func (db *FileDB) flush(collection string) error {
	records := make([]Record, 0, len(db.data[collection]))
	for _, id := range sortedIDs(db.data[collection]) {
		records = append(records, db.data[collection][id])
	}
	plain, err := json.Marshal(records)
	if err != nil {
		return wrapErr("flush", err)
	}

	path := db.path(collection)
	tmpPath := path + ".tmp"
	out, err := db.encode(plain)
	if err != nil {
		return wrapErr("flush", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return wrapErr("flush", err)
	}
	if _, err := f.Write(out); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return wrapErr("flush", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return wrapErr("flush", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return wrapErr("flush", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return wrapErr("flush", err)
	}
	return nil
}

func (db *FileDB) readFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return raw, nil
	}
	return db.decode(raw)
}

// encode/decode apply the optional AES-256-GCM at-rest encryption
// layer. With no key configured, both are the identity function.
func (db *FileDB) encode(plain []byte) ([]byte, error) {
	if db.key == nil {
		return plain, nil
	}
	block, err := aes.NewCipher(db.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func (db *FileDB) decode(ciphertext []byte) ([]byte, error) {
	if db.key == nil {
		return ciphertext, nil
	}
	block, err := aes.NewCipher(db.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("storage: ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func (db *FileDB) Get(_ context.Context, collection, id string) (Record, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}
	if err := db.ensureLoaded(collection); err != nil {
		return nil, err
	}
	rec, ok := db.data[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return query.DeepCopy(rec), nil
}

func (db *FileDB) Save(_ context.Context, collection string, record Record) (Record, error) {
	id, _ := record["id"].(string)
	if id == "" {
		return nil, ErrInvalidID
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}
	if err := db.ensureLoaded(collection); err != nil {
		return nil, err
	}
	copy := query.DeepCopy(record)
	db.data[collection][id] = copy
	if err := db.flush(collection); err != nil {
		return nil, err
	}
	return query.DeepCopy(copy), nil
}

func (db *FileDB) Delete(_ context.Context, collection, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	if err := db.ensureLoaded(collection); err != nil {
		return err
	}
	if _, ok := db.data[collection][id]; !ok {
		return nil
	}
	delete(db.data[collection], id)
	return db.flush(collection)
}

func (db *FileDB) Find(_ context.Context, collection string, filter map[string]any, opts FindOptions) ([]Record, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}
	if err := db.ensureLoaded(collection); err != nil {
		return nil, err
	}
	f, err := query.ParseFilter(filter)
	if err != nil {
		return nil, wrapErr("find", err)
	}
	var out []Record
	for _, id := range sortedIDs(db.data[collection]) {
		rec := db.data[collection][id]
		if f.Match(rec) {
			out = append(out, query.DeepCopy(rec))
		}
	}
	return applyFindOptions(out, opts), nil
}

func (db *FileDB) FindOne(ctx context.Context, collection string, filter map[string]any) (Record, error) {
	recs, err := db.Find(ctx, collection, filter, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

func (db *FileDB) Count(ctx context.Context, collection string, filter map[string]any) (int, error) {
	recs, err := db.Find(ctx, collection, filter, FindOptions{})
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (db *FileDB) Distinct(ctx context.Context, collection, field string, filter map[string]any) ([]any, error) {
	recs, err := db.Find(ctx, collection, filter, FindOptions{})
	if err != nil {
		return nil, err
	}
	return distinctValues(recs, field), nil
}

func (db *FileDB) BulkSave(_ context.Context, collection string, records []Record) ([]Record, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}
	if err := db.ensureLoaded(collection); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		id, _ := r["id"].(string)
		if id == "" {
			return nil, ErrInvalidID
		}
		copy := query.DeepCopy(r)
		db.data[collection][id] = copy
		out = append(out, query.DeepCopy(copy))
	}
	if err := db.flush(collection); err != nil {
		return nil, err
	}
	return out, nil
}

func (db *FileDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.closed = true
	return nil
}
