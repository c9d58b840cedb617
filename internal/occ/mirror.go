package occ

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var versionBucket = []byte("versions")

// Mirror is a best-effort bbolt-backed persistence layer for the version
// tracker, resolving the Open Question spec §9 raises about durable
// monotonicity: it is explicitly a cache the tracker warms itself from at
// startup, not a source of truth — a mirror write failure never fails the
// mutation it shadows.
type Mirror struct {
	db *bolt.DB
}

// OpenMirror opens (creating if absent) a bbolt database at path to back
// the version tracker.
func OpenMirror(path string) (*Mirror, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("occ: open version mirror %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(versionBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("occ: init version mirror: %w", err)
	}
	return &Mirror{db: db}, nil
}

// Close releases the bbolt handle.
func (m *Mirror) Close() error {
	return m.db.Close()
}

// LoadAll reads every (document_id, branch) -> version pair currently
// persisted, used to warm a fresh VersionTracker at process start.
func (m *Mirror) LoadAll() map[string]int {
	out := make(map[string]int)
	_ = m.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(versionBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if len(v) == 8 {
				out[string(k)] = int(binary.BigEndian.Uint64(v))
			}
			return nil
		})
	})
	return out
}

// Save persists a single counter value. Failures are swallowed here on
// purpose, so VersionTracker.IncrementVersion never sees them: the
// in-memory value remains authoritative for the life of the process.
func (m *Mirror) Save(documentID, branch string, version int) {
	_ = m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(versionBucket)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(version))
		return b.Put([]byte(key(documentID, branch)), buf[:])
	})
}
