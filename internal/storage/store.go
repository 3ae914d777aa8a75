// Package storage provides the durable string-keyed store shared by the
// cache layer and the sync queue. Each component owns a key prefix and must
// not touch keys outside it; Namespace enforces that convention.
package storage

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("storage: key not found")

// Store is a string-keyed, byte-valued persistent store.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	// Keys returns all stored keys with the given prefix.
	Keys(prefix string) ([]string, error)
	Close() error
}

// Namespace restricts a Store to keys under a fixed prefix.
type Namespace struct {
	store  Store
	prefix string
}

// NewNamespace wraps a store so all keys are transparently prefixed.
func NewNamespace(store Store, prefix string) *Namespace {
	return &Namespace{store: store, prefix: prefix}
}

// Get reads a value from the namespace.
func (n *Namespace) Get(key string) ([]byte, error) {
	return n.store.Get(n.prefix + key)
}

// Put writes a value into the namespace.
func (n *Namespace) Put(key string, value []byte) error {
	return n.store.Put(n.prefix+key, value)
}

// Delete removes a key from the namespace.
func (n *Namespace) Delete(key string) error {
	return n.store.Delete(n.prefix + key)
}

// Keys returns all keys in the namespace, with the prefix stripped.
func (n *Namespace) Keys() ([]string, error) {
	keys, err := n.store.Keys(n.prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, n.prefix))
	}
	return out, nil
}
