package store

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketStats = []byte("stats")
	bucketMeta  = []byte("block_meta")
)

// sideIndex is a bbolt-backed companion to the .zeta files on disk: it
// persists lifetime counters and block metadata across restarts, the way
// the directory scan alone cannot (file mtimes are not a reliable source of
// last_access or cumulative hit/miss counts).
type sideIndex struct {
	db *bolt.DB
}

func openSideIndex(path string) (*sideIndex, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketStats, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sideIndex{db: db}, nil
}

func (idx *sideIndex) close() error {
	if idx == nil || idx.db == nil {
		return nil
	}
	return idx.db.Close()
}

// PutLifetimeCounter persists a named monotonic counter (e.g. "blocks_ingested_total").
func (idx *sideIndex) PutLifetimeCounter(name string, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStats).Put([]byte(name), buf[:])
	})
}

// LifetimeCounter reads a previously-persisted counter, or 0 if absent.
func (idx *sideIndex) LifetimeCounter(name string) (uint64, error) {
	var v uint64
	err := idx.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStats).Get([]byte(name))
		if b == nil {
			return nil
		}
		if len(b) != 8 {
			return fmt.Errorf("stats: counter %q has bad length %d", name, len(b))
		}
		v = binary.LittleEndian.Uint64(b)
		return nil
	})
	return v, err
}

// blockMeta is the cross-session metadata kept for a block beyond what its
// .zeta header encodes: the last step it was touched, so retrieval's
// temporal decay survives a restart instead of resetting to zero.
type blockMeta struct {
	LastAccess int64
}

func (idx *sideIndex) PutBlockMeta(blockID int64, m blockMeta) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(m.LastAccess))
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(blockIDKey(blockID), buf[:])
	})
}

func (idx *sideIndex) BlockMeta(blockID int64) (blockMeta, bool, error) {
	var m blockMeta
	var found bool
	err := idx.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta).Get(blockIDKey(blockID))
		if b == nil {
			return nil
		}
		if len(b) != 8 {
			return fmt.Errorf("block_meta: block %d has bad length %d", blockID, len(b))
		}
		m.LastAccess = int64(binary.LittleEndian.Uint64(b))
		found = true
		return nil
	})
	return m, found, err
}

func blockIDKey(id int64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(id))
	return buf[:]
}
