package storage

import (
	"errors"
	"fmt"

	"go.mills.io/bitcask/v2"
)

// BitcaskStore is a Store backed by an embedded bitcask database.
type BitcaskStore struct {
	db *bitcask.Bitcask
}

// OpenBitcask opens (or creates) a bitcask database at the given path.
func OpenBitcask(path string) (*BitcaskStore, error) {
	db, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("storage: open bitcask at %s: %w", path, err)
	}
	return &BitcaskStore{db: db}, nil
}

// Get reads a value by key.
func (s *BitcaskStore) Get(key string) ([]byte, error) {
	value, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: get %q: %w", key, err)
	}
	return value, nil
}

// Put writes a value by key.
func (s *BitcaskStore) Put(key string, value []byte) error {
	if err := s.db.Put([]byte(key), value); err != nil {
		return fmt.Errorf("storage: put %q: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *BitcaskStore) Delete(key string) error {
	if !s.db.Has([]byte(key)) {
		return nil
	}
	if err := s.db.Delete([]byte(key)); err != nil {
		return fmt.Errorf("storage: delete %q: %w", key, err)
	}
	return nil
}

// Keys returns all stored keys with the given prefix.
func (s *BitcaskStore) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.Scan([]byte(prefix), func(key bitcask.Key) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan %q: %w", prefix, err)
	}
	return keys, nil
}

// Close flushes and closes the database.
func (s *BitcaskStore) Close() error {
	return s.db.Close()
}
