package selector

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/cuemby/sokovan/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var bucketRoundRobinCursors = []byte("roundrobin_cursors")

// BoltStateStore persists the ROUNDROBIN cursor per resource group so
// picks survive a manager restart rather than resetting to the start of
// the candidate list every time.
type BoltStateStore struct {
	db *bolt.DB
}

// NewBoltStateStore opens (creating if absent) a state-store database
// under dataDir.
func NewBoltStateStore(dataDir string) (*BoltStateStore, error) {
	dbPath := filepath.Join(dataDir, "selector_state.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open selector state database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRoundRobinCursors)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStateStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStateStore) Close() error { return s.db.Close() }

func (s *BoltStateStore) RoundRobinCursor(ctx context.Context, scalingGroup types.ScalingGroupName) (int, error) {
	var idx int
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRoundRobinCursors)
		data := b.Get([]byte(scalingGroup))
		if data == nil {
			return nil
		}
		idx = int(binary.BigEndian.Uint64(data))
		return nil
	})
	return idx, err
}

func (s *BoltStateStore) SetRoundRobinCursor(ctx context.Context, scalingGroup types.ScalingGroupName, idx int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRoundRobinCursors)
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(idx))
		return b.Put([]byte(scalingGroup), buf)
	})
}
