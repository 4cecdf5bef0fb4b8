// Package keystore persists named secrets, such as cloud OCR API keys, in a
// local BoltDB file.
package keystore

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "api_keys"

var (
	// ErrNotFound is returned when no value is stored under a name.
	ErrNotFound = errors.New("key not found")
	// ErrEmptyName is returned for blank names.
	ErrEmptyName = errors.New("key name required")
)

// Store is a get/set-by-name key store.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the store file.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening keystore: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	return name, nil
}

// Get returns the value stored under name.
func (s *Store) Get(name string) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}
	var val string
	err = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(name))
		if v == nil {
			return ErrNotFound
		}
		val = string(v)
		return nil
	})
	return val, err
}

// Set stores value under name, replacing any previous value.
func (s *Store) Set(name, value string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(name), []byte(value))
	})
}

// Delete removes name. Deleting a missing name returns ErrNotFound.
func (s *Store) Delete(name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b.Get([]byte(name)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(name))
	})
}

// Names returns the stored names in sorted order.
func (s *Store) Names() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// KeyFunc returns a lookup bound to name. A missing entry yields an empty key
// so the caller can report it as unconfigured.
func (s *Store) KeyFunc(name string) func() (string, error) {
	return func() (string, error) {
		v, err := s.Get(name)
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return v, err
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
