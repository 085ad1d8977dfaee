package fs

import (
	"os"
	"path/filepath"
	"time"
)

// FSIndexEntry reserves a unique key (a username, an email or a provider
// account) for one record ID.
type FSIndexEntry struct {
	Key       string    `json:"key"`
	RecordID  string    `json:"record_id"`
	CreatedAt time.Time `json:"created_at"`
}

// fsIndex is a directory of FSIndexEntry files, one per key.
//
//	{StoragePath}/
//	└── {name}/
//	    ├── 6a6f686e.json    # {"key": "john", "record_id": "..."}
//	    └── ...
//
// Callers serialize access through the owning store's mutex.
type fsIndex struct {
	dir string
}

func (x fsIndex) path(key string) string {
	return filepath.Join(x.dir, safeName(key))
}

// lookup returns the record ID owning key, or "" if unreserved
func (x fsIndex) lookup(key string) (string, error) {
	var entry FSIndexEntry
	found, err := readJSON(x.path(key), &entry)
	if err != nil || !found {
		return "", err
	}
	return entry.RecordID, nil
}

// reserve claims key for recordID.  It reports false if another record owns it.
func (x fsIndex) reserve(key, recordID string) (bool, error) {
	owner, err := x.lookup(key)
	if err != nil {
		return false, err
	}
	if owner != "" {
		return owner == recordID, nil
	}
	return true, writeJSON(x.path(key), &FSIndexEntry{Key: key, RecordID: recordID, CreatedAt: time.Now()})
}

// release drops key if recordID owns it
func (x fsIndex) release(key, recordID string) error {
	owner, err := x.lookup(key)
	if err != nil || owner != recordID {
		return err
	}
	err = os.Remove(x.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
