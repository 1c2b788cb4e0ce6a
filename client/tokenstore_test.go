package client

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_PersistentStore_Roundtrip(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "nested", "token")
	store := NewPersistentStore(path)

	// Empty before any save, not an error
	token, err := store.Load()
	req.NoError(err)
	req.Empty(token)

	req.NoError(store.Save("jwt-value"))

	token, err = store.Load()
	req.NoError(err)
	req.Equal("jwt-value", token)

	// A second process would read the same file
	token, err = NewPersistentStore(path).Load()
	req.NoError(err)
	req.Equal("jwt-value", token)

	req.NoError(store.Clear())
	token, err = store.Load()
	req.NoError(err)
	req.Empty(token)

	// Clearing twice is a no-op
	req.NoError(store.Clear())
}

func Test_EphemeralStore_Scoped_To_Process(t *testing.T) {
	req := require.New(t)
	store := NewEphemeralStore()

	req.NoError(store.Save("jwt-value"))
	token, err := store.Load()
	req.NoError(err)
	req.Equal("jwt-value", token)

	req.NoError(store.Clear())
	token, err = store.Load()
	req.NoError(err)
	req.Empty(token)
}

func Test_StoreFor_Honours_RememberMe(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "token")

	req.IsType(&PersistentStore{}, StoreFor(true, path))
	req.IsType(&EphemeralStore{}, StoreFor(false, path))
}
