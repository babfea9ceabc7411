package store_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"prekeyd/internal/domain"
	"prekeyd/internal/store"
)

// Ensure that data survives a reopen.
func TestBoltStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prekeyd.db")

	s, err := store.OpenBoltStore(path, store.WithNoSync(true))
	require.NoError(t, err)
	account := testAccount()
	require.NoError(t, s.PutAccount(ctx, account))
	require.NoError(t, s.ReplaceAll(ctx, account.UUID, 1, preKeys(5, 6)))
	_, err = s.ConsumeOne(ctx, account.UUID, 1)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.OpenBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, ok, err := s.GetAccount(ctx, domain.NumberIdentifier(account.Number))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, account.UUID, got.UUID)

	key, err := s.ConsumeOne(ctx, account.UUID, 1)
	require.NoError(t, err)
	require.Equal(t, uint32(6), key.KeyID)
}

// Ensure that a sealed store hides account records and refuses the wrong
// passphrase.
func TestBoltStorePassphrase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sealed.db")

	s, err := store.OpenBoltStore(path, store.WithPassphrase("correct horse"))
	require.NoError(t, err)
	require.NoError(t, s.PutAccount(ctx, testAccount()))
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.False(t, strings.Contains(string(raw), "existsidentitykey"))

	_, err = store.OpenBoltStore(path, store.WithPassphrase("wrong"))
	require.Error(t, err)

	_, err = store.OpenBoltStore(path)
	require.Error(t, err)

	s, err = store.OpenBoltStore(path, store.WithPassphrase("correct horse"))
	require.NoError(t, err)
	defer s.Close()
	got, ok, err := s.GetAccount(ctx, domain.NumberIdentifier("+14152222222"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "existsidentitykey", *got.IdentityKey)
}

func TestBoltStoreRefusesLateSealing(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "plain.db")

	s, err := store.OpenBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, s.PutAccount(ctx, testAccount()))
	require.NoError(t, s.Close())

	_, err = store.OpenBoltStore(path, store.WithPassphrase("late"))
	require.Error(t, err)
}
