package repository

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const snapshotSchemaVersion = 1

var snapshotBucket = []byte("Facts")

var ErrStoreClosed = errors.New("store closed")

// snapshot is the envelope written for every project/domain pair
type snapshot struct {
	SchemaVersion int
	SavedAt       time.Time
	Payload       []byte
}

// Store persists repository items in a bbolt file so a restarted server can
// answer before the first load completes.
type Store struct {
	db     *bbolt.DB
	logger *slog.Logger
}

// OpenStore opens or creates the snapshot database at path.
func OpenStore(path string, timeout time.Duration, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure store bucket: %w", err)
	}

	logger = logger.With("component", "store")
	logger.Info("Using bbolt snapshot store", "path", path, "schema_version", snapshotSchemaVersion)
	return &Store{db: db, logger: logger}, nil
}

func snapshotKey(root, domain string) []byte {
	return []byte(root + "::" + domain)
}

// Save gob-encodes v under root and domain.
func (s *Store) Save(root, domain string, v any) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}

	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(v); err != nil {
		return fmt.Errorf("encode %s snapshot: %w", domain, err)
	}
	var entry bytes.Buffer
	env := snapshot{SchemaVersion: snapshotSchemaVersion, SavedAt: time.Now(), Payload: payload.Bytes()}
	if err := gob.NewEncoder(&entry).Encode(&env); err != nil {
		return fmt.Errorf("encode %s snapshot envelope: %w", domain, err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(snapshotBucket).Put(snapshotKey(root, domain), entry.Bytes())
	})
}

// LoadInto decodes a saved snapshot into dst. It reports false when no
// usable snapshot exists, including one written by an older schema.
func (s *Store) LoadInto(root, domain string, dst any) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrStoreClosed
	}

	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(snapshotBucket).Get(snapshotKey(root, domain)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return false, err
	}

	var env snapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&env); err != nil {
		return false, fmt.Errorf("decode %s snapshot envelope: %w", domain, err)
	}
	if env.SchemaVersion != snapshotSchemaVersion {
		s.logger.Warn("Snapshot has old schema version. Ignoring.", "domain", domain, "cached_version", env.SchemaVersion, "expected_version", snapshotSchemaVersion)
		return false, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(env.Payload)).Decode(dst); err != nil {
		return false, fmt.Errorf("decode %s snapshot: %w", domain, err)
	}
	return true, nil
}

// Delete removes every snapshot of root.
func (s *Store) Delete(root string) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	prefix := []byte(root + "::")
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(snapshotBucket)
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Path returns the database file path.
func (s *Store) Path() string {
	if s == nil || s.db == nil {
		return ""
	}
	return s.db.Path()
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.logger.Info("Closing bbolt snapshot store.")
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("bbolt close failed: %w", err)
	}
	return nil
}
