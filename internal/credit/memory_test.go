package credit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLoadUnknownUser(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreVersionedSave(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "u1", Account{Free: 30}))

	acct, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), acct.Version)

	acct.Free = 25
	require.NoError(t, store.Save(ctx, "u1", acct))

	// A writer holding the old snapshot must lose.
	stale := acct
	stale.Free = 10
	assert.ErrorIs(t, store.Save(ctx, "u1", stale), ErrConflict)
}

func TestMemoryStoreRejectsBlindCreate(t *testing.T) {
	store := NewMemoryStore()
	err := store.Save(context.Background(), "u1", Account{Free: 30, Version: 5})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStoreUsersSorted(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"charlie", "alice", "bob"} {
		require.NoError(t, store.Save(ctx, id, Account{Free: 1}))
	}

	users, err := store.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "charlie"}, users)
}
