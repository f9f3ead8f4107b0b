package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	t.Run("creates directory with correct permissions", func(t *testing.T) {
		tmpDir := t.TempDir()
		credDir := filepath.Join(tmpDir, "creds")

		store, err := NewStore(credDir)
		require.NoError(t, err)
		assert.NotNil(t, store)

		info, err := os.Stat(credDir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
	})

	t.Run("creates config.json on initialization", func(t *testing.T) {
		tmpDir := t.TempDir()
		store, err := NewStore(tmpDir)
		require.NoError(t, err)

		info, err := os.Stat(filepath.Join(tmpDir, "config.json"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

		cfg, err := store.loadConfig()
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.Version)
		assert.Empty(t, cfg.DefaultCredential)
		assert.Empty(t, cfg.Credentials)
	})
}

func TestStore_Save(t *testing.T) {
	t.Run("first credential becomes default", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		_, err = store.Save(Credential{Name: "work", ServerURL: "https://poker.example.com", Token: "t1"})
		require.NoError(t, err)
		_, err = store.Save(Credential{Name: "local", ServerURL: "http://localhost:8080", UserID: "alice"})
		require.NoError(t, err)

		def, err := store.GetDefault()
		require.NoError(t, err)
		assert.Equal(t, "work", def.Name)

		list, err := store.List()
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "local", list[0].Name)
		assert.Equal(t, "work", list[1].Name)
	})

	t.Run("replacing keeps created time", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		first, err := store.Save(Credential{Name: "work", ServerURL: "https://a", Token: "t1"})
		require.NoError(t, err)
		second, err := store.Save(Credential{Name: "work", ServerURL: "https://b", Token: "t2"})
		require.NoError(t, err)

		assert.Equal(t, first.CreatedAt, second.CreatedAt)

		got, err := store.Get("work")
		require.NoError(t, err)
		assert.Equal(t, "https://b", got.ServerURL)
		assert.Equal(t, "t2", got.Token)
	})

	t.Run("rejects incomplete credentials", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		tests := []Credential{
			{ServerURL: "https://a", Token: "t"},
			{Name: "x", Token: "t"},
			{Name: "x", ServerURL: "https://a"},
		}
		for _, cred := range tests {
			_, err := store.Save(cred)
			require.ErrorIs(t, err, ErrInvalidCredential)
		}
	})
}

func TestStore_DefaultAndDelete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.GetDefault()
	require.ErrorIs(t, err, ErrNoDefaultCredential)

	_, err = store.Save(Credential{Name: "a", ServerURL: "https://a", Token: "t"})
	require.NoError(t, err)
	_, err = store.Save(Credential{Name: "b", ServerURL: "https://b", Token: "t"})
	require.NoError(t, err)

	require.NoError(t, store.SetDefault("b"))
	require.ErrorIs(t, store.SetDefault("missing"), ErrCredentialNotFound)

	require.NoError(t, store.Delete("b"))
	_, err = store.GetDefault()
	require.ErrorIs(t, err, ErrNoDefaultCredential)

	require.ErrorIs(t, store.Delete("b"), ErrCredentialNotFound)

	_, err = store.Get("a")
	require.NoError(t, err)
}
