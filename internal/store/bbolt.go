package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// namespaces is the fixed set of top-level buckets created on Open,
// mirroring the teacher's bucket-per-namespace layout
// (node/store/db.go's bucketHeaders/bucketBlocks/... set).
var namespaces = []string{
	NamespaceRoutingTable,
	NamespacePriorityQueue,
	NamespaceTransmissionLog,
	NamespaceReassemblySession,
}

// BoltStore is the bbolt-backed KV implementation used by a running mesh
// node. One *bolt.DB is shared across namespaces as distinct buckets.
type BoltStore struct {
	db *bolt.DB
}

// Open creates or opens the node's persistence file under dataDir,
// creating every recognised namespace bucket if absent.
func Open(dataDir string) (*BoltStore, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("store: data dir required")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	path := filepath.Join(dataDir, "mesh.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt: %w", err)
	}
	s := &BoltStore{db: db}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, ns := range namespaces {
			if _, err := tx.CreateBucketIfNotExists([]byte(ns)); err != nil {
				return fmt.Errorf("store: create bucket %s: %w", ns, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

var _ KV = (*BoltStore)(nil)

func (s *BoltStore) Put(namespace, key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return fmt.Errorf("store: unknown namespace %q", namespace)
		}
		return b.Put([]byte(key), value)
	})
}

func (s *BoltStore) Get(namespace, key string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return fmt.Errorf("store: unknown namespace %q", namespace)
		}
		v := b.Get([]byte(key))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (s *BoltStore) Delete(namespace, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return fmt.Errorf("store: unknown namespace %q", namespace)
		}
		return b.Delete([]byte(key))
	})
}

func (s *BoltStore) ForEach(namespace string, fn func(key string, value []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return fmt.Errorf("store: unknown namespace %q", namespace)
		}
		return b.ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
}

func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
