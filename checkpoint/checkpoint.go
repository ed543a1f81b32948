// Package checkpoint stores model snapshots in a bolt database.
package checkpoint

import (
	"time"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"
)

// log is the global logging variable.
var log = logging.MustGetLogger("checkpoint")

// MAIN is the bucket name for all snapshots.
var MAIN = []byte("main")

// CheckpointIO saves and loads snapshots. A nil database disables
// checkpointing.
type CheckpointIO struct {
	db      *bolt.DB
	last    time.Time
	seconds float64
}

// NewCheckpointIO creates a new CheckpointIO. Old reports true if the
// last save was more than seconds ago.
func NewCheckpointIO(db *bolt.DB, seconds float64) (s *CheckpointIO) {
	s = &CheckpointIO{
		db:      db,
		seconds: seconds,
	}
	return
}

// Open opens (or creates) a checkpoint database file.
func Open(path string, seconds float64) (*CheckpointIO, error) {
	db, err := bolt.Open(path, 0666, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	log.Infof("Using checkpoint database %s", path)
	return NewCheckpointIO(db, seconds), nil
}

// Close closes the database.
func (s *CheckpointIO) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save stores data under a key.
func (s *CheckpointIO) Save(key, data []byte) error {
	// Even if saving fails, we do not want to run this code too often.
	s.SetNow()
	err := SaveData(s.db, key, data)
	if err != nil {
		log.Error("Error saving checkpoint", err)
		return err
	}
	log.Debugf("Saved checkpoint %s (%d bytes)", key, len(data))
	return nil
}

// Load returns data stored under a key, or nil.
func (s *CheckpointIO) Load(key []byte) ([]byte, error) {
	return LoadData(s.db, key)
}

// Old returns true if last checkpoint save time too long ago.
func (s *CheckpointIO) Old() bool {
	return time.Since(s.last).Seconds() > s.seconds
}

// SetNow sets last checkpoint time to now.
func (s *CheckpointIO) SetNow() {
	s.last = time.Now()
}

// SaveData saves values in bolt database.
func SaveData(db *bolt.DB, key []byte, data []byte) error {
	if db == nil {
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(MAIN)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// LoadData loads data from bolt database.
func LoadData(db *bolt.DB, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(MAIN)
		if b == nil {
			return nil
		}
		// values are only valid during the transaction
		if v := b.Get(key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
