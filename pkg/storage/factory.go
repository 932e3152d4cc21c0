package storage

import "fmt"

// Open constructs a Backend from process configuration (spec §4.2:
// "Backend selection is a process-wide configuration"), generalizing
// nornicdb's unexported backend switch in cmd/nornicdb/main.go's
// runServe into an exported, reusable factory.
func Open(dbType string, fileRoot, fileEncryptionKey, docstorePath string, docstoreInMemory bool) (Backend, error) {
	switch dbType {
	case "", "file":
		return NewFileDB(FileDBOptions{Root: fileRoot, EncryptionPassphrase: fileEncryptionKey})
	case "docstore":
		return NewDocStore(DocStoreOptions{Path: docstorePath, InMemory: docstoreInMemory})
	case "memory":
		return NewMemDB(), nil
	default:
		return nil, fmt.Errorf("storage: unknown DB_TYPE %q", dbType)
	}
}
