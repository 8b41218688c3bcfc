package credit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chofesh/model-gateway/internal/logging"
)

func newTestLedger(t *testing.T) (*Ledger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewLedger(store, 30, logging.WithComponent("test")), store
}

func seedAccount(t *testing.T, store *MemoryStore, userID string, free, purchased int64) {
	t.Helper()
	err := store.Save(context.Background(), userID, Account{
		Free:            free,
		Purchased:       purchased,
		LastFreeRefresh: time.Now(),
	})
	require.NoError(t, err)
}

func TestReserveDrawsFreeBeforePurchased(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedAccount(t, store, "u1", 5, 100)

	res, err := ledger.Reserve(ctx, "u1", 8)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.FromFree)
	assert.Equal(t, int64(3), res.FromPurchased)
	require.NoError(t, ledger.Commit(ctx, res))

	acct, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acct.Free)
	assert.Equal(t, int64(97), acct.Purchased)
}

func TestReleaseRestoresTheSplit(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedAccount(t, store, "u1", 5, 100)

	res, err := ledger.Reserve(ctx, "u1", 8)
	require.NoError(t, err)
	require.NoError(t, ledger.Release(ctx, res))

	acct, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), acct.Free)
	assert.Equal(t, int64(100), acct.Purchased)
}

func TestInsufficientCreditsLeavesAccountUntouched(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedAccount(t, store, "u1", 1, 2)

	_, err := ledger.Reserve(ctx, "u1", 5)
	assert.ErrorIs(t, err, ErrInsufficient)

	acct, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), acct.Free)
	assert.Equal(t, int64(2), acct.Purchased)
}

func TestReserveRejectsNonPositiveCost(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.Reserve(context.Background(), "u1", 0)
	assert.Error(t, err)
}

func TestNewUserGetsAllotmentOnFirstReserve(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	res, err := ledger.Reserve(ctx, "fresh", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.FromFree)

	acct, err := store.Load(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, int64(26), acct.Free)
}

func TestRefreshOverwritesInsteadOfAdding(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	err := store.Save(ctx, "u1", Account{
		Free:            2,
		Purchased:       10,
		LastFreeRefresh: time.Now().Add(-25 * time.Hour),
	})
	require.NoError(t, err)

	refreshed, err := ledger.RefreshIfDue(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, refreshed)

	acct, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), acct.Free, "refresh resets, never accumulates")
	assert.Equal(t, int64(10), acct.Purchased)
}

func TestRefreshIsIdempotentWithinWindow(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedAccount(t, store, "u1", 12, 0)

	refreshed, err := ledger.RefreshIfDue(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, refreshed)

	acct, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), acct.Free)
}

func TestReserveAppliesDueRefresh(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	err := store.Save(ctx, "u1", Account{
		Free:            0,
		Purchased:       0,
		LastFreeRefresh: time.Now().Add(-48 * time.Hour),
	})
	require.NoError(t, err)

	// Broke yesterday, but the lapsed window grants a fresh allotment.
	res, err := ledger.Reserve(ctx, "u1", 8)
	require.NoError(t, err)
	assert.Equal(t, int64(8), res.FromFree)
}

func TestDoubleSettlementIsRejected(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedAccount(t, store, "u1", 10, 0)

	res, err := ledger.Reserve(ctx, "u1", 3)
	require.NoError(t, err)
	require.NoError(t, ledger.Commit(ctx, res))

	assert.ErrorIs(t, ledger.Commit(ctx, res), ErrSettled)
	assert.ErrorIs(t, ledger.Release(ctx, res), ErrSettled)
}

func TestConcurrentReservesNeverOverspend(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedAccount(t, store, "u1", 10, 0)

	const workers = 8
	var wg sync.WaitGroup
	granted := make(chan *Reservation, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res, err := ledger.Reserve(ctx, "u1", 3); err == nil {
				granted <- res
			}
		}()
	}
	wg.Wait()
	close(granted)

	var held int64
	for res := range granted {
		held += res.Cost()
	}
	acct, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), held+acct.Total(), "reserved plus remaining must equal the starting balance")
	assert.LessOrEqual(t, held, int64(10))
}

func TestRefreshAllSweepsKnownAccounts(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		err := store.Save(ctx, id, Account{
			Free:            1,
			LastFreeRefresh: time.Now().Add(-30 * time.Hour),
		})
		require.NoError(t, err)
	}

	require.NoError(t, ledger.RefreshAll(ctx))

	for _, id := range []string{"a", "b"} {
		acct, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(30), acct.Free)
	}
}
