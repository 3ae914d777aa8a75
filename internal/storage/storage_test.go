package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract exercises the behavior every Store implementation must share.
func storeContract(t *testing.T, store Store) {
	t.Helper()

	_, err := store.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put("a", []byte("1")))
	require.NoError(t, store.Put("ab", []byte("2")))
	require.NoError(t, store.Put("b", []byte("3")))

	value, err := store.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), value)

	keys, err := store.Keys("a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "ab"}, keys)

	require.NoError(t, store.Delete("a"))
	_, err = store.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent key is not an error.
	assert.NoError(t, store.Delete("a"))
}

func TestMemoryStore_Contract(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestBitcaskStore_Contract(t *testing.T) {
	store, err := OpenBitcask(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	storeContract(t, store)
}

func TestBitcaskStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	store, err := OpenBitcask(path)
	require.NoError(t, err)
	require.NoError(t, store.Put("sync_queue", []byte("[]")))
	require.NoError(t, store.Close())

	reopened, err := OpenBitcask(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get("sync_queue")
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), value)
}

func TestNamespace_Isolation(t *testing.T) {
	store := NewMemoryStore()
	cacheNS := NewNamespace(store, "cache:")
	syncNS := NewNamespace(store, "sync:")

	require.NoError(t, cacheNS.Put("k", []byte("cached")))
	require.NoError(t, syncNS.Put("k", []byte("queued")))

	cached, err := cacheNS.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), cached)

	queued, err := syncNS.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("queued"), queued)

	keys, err := cacheNS.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)

	require.NoError(t, cacheNS.Delete("k"))
	_, err = cacheNS.Get("k")
	assert.ErrorIs(t, err, ErrNotFound)

	// The other namespace is untouched.
	_, err = syncNS.Get("k")
	assert.NoError(t, err)
}

func TestMemoryStore_SimulatedFailures(t *testing.T) {
	store := NewMemoryStore()
	store.FailWrites = true

	assert.Error(t, store.Put("k", []byte("v")))
	assert.Error(t, store.Delete("k"))

	store.FailWrites = false
	require.NoError(t, store.Put("k", []byte("v")))

	store.FailReads = true
	_, err := store.Get("k")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
