package dataset

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	datasetBucketName = "dataset"
	cacheBucketName   = "cache"
	entriesKey        = "entries"
)

// BoltStore implements Store and KV using BoltDB. The entry log is a single
// JSON array value, so every Append is one atomic read-modify-write
// transaction and readers never see a partial write.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore creates a new BoltStore instance
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(datasetBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(cacheBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Append prepends the entry and prunes the log
func (b *BoltStore) Append(entry Entry) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(datasetBucketName))
		entries, err := decodeEntries(bucket.Get([]byte(entriesKey)))
		if err != nil {
			return err
		}
		return putEntries(bucket, prependCapped(entries, entry))
	})
}

// All returns every entry, creating the empty log on first access
func (b *BoltStore) All() ([]Entry, error) {
	var (
		entries []Entry
		missing bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(datasetBucketName)).Get([]byte(entriesKey))
		if data == nil {
			missing = true
			return nil
		}
		var err error
		entries, err = decodeEntries(data)
		return err
	})
	if err != nil {
		return nil, err
	}

	if missing {
		err = b.db.Update(func(tx *bbolt.Tx) error {
			bucket := tx.Bucket([]byte(datasetBucketName))
			if bucket.Get([]byte(entriesKey)) != nil {
				var err error
				entries, err = decodeEntries(bucket.Get([]byte(entriesKey)))
				return err
			}
			entries = []Entry{}
			return putEntries(bucket, entries)
		})
		if err != nil {
			return nil, fmt.Errorf("initializing dataset: %w", err)
		}
	}

	return entries, nil
}

// Clear replaces the log with an empty collection
func (b *BoltStore) Clear() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return putEntries(tx.Bucket([]byte(datasetBucketName)), []Entry{})
	})
}

func putEntries(bucket *bbolt.Bucket, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling entries: %w", err)
	}
	return bucket.Put([]byte(entriesKey), data)
}

// Put stores v as JSON under key
func (b *BoltStore) Put(key string, v any) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", key, err)
		}
		return tx.Bucket([]byte(cacheBucketName)).Put([]byte(key), data)
	})
}

// Get decodes the value stored under key into v
func (b *BoltStore) Get(key string, v any) (bool, error) {
	found := false
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(cacheBucketName)).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("unmarshaling %s: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// Delete removes key from the cache bucket
func (b *BoltStore) Delete(key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(cacheBucketName)).Delete([]byte(key))
	})
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}
