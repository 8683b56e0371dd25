package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// FileStore implements Store as a single JSON array document on disk.
// Writes go to a temp file that is synced and renamed over the document, and
// the read-modify-write cycle holds both an in-process mutex and a file lock
// so concurrent appends are never lost.
type FileStore struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewFileStore creates a new FileStore for the document at path
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating dataset directory: %w", err)
	}
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Append prepends the entry and prunes the document
func (f *FileStore) Append(entry Entry) error {
	return f.locked(func() error {
		entries, err := f.read()
		if err != nil {
			return err
		}
		return f.write(prependCapped(entries, entry))
	})
}

// All returns every entry, creating an empty document on first access
func (f *FileStore) All() ([]Entry, error) {
	var entries []Entry
	err := f.locked(func() error {
		if _, err := os.Stat(f.path); errors.Is(err, os.ErrNotExist) {
			entries = []Entry{}
			return f.write(entries)
		}
		var err error
		entries, err = f.read()
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Clear replaces the document with an empty array
func (f *FileStore) Clear() error {
	return f.locked(func() error {
		return f.write([]Entry{})
	})
}

func (f *FileStore) locked(fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("locking dataset: %w", err)
	}
	defer f.lock.Unlock()

	return fn()
}

func (f *FileStore) read() ([]Entry, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	return decodeEntries(data)
}

// Put stores v as a JSON document next to the dataset
func (f *FileStore) Put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	return f.locked(func() error {
		return replaceFile(f.keyPath(key), data)
	})
}

// Get decodes the document stored under key into v
func (f *FileStore) Get(key string, v any) (bool, error) {
	var found bool
	err := f.locked(func() error {
		data, err := os.ReadFile(f.keyPath(key))
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", key, err)
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("unmarshaling %s: %w", key, err)
		}
		found = true
		return nil
	})
	return found, err
}

// Delete removes the document stored under key
func (f *FileStore) Delete(key string) error {
	return f.locked(func() error {
		err := os.Remove(f.keyPath(key))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("deleting %s: %w", key, err)
		}
		return nil
	})
}

func (f *FileStore) keyPath(key string) string {
	return filepath.Join(filepath.Dir(f.path), key+".json")
}

func (f *FileStore) write(entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling entries: %w", err)
	}
	return replaceFile(f.path, data)
}

// replaceFile atomically swaps the contents of path for data
func replaceFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
