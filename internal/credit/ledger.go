package credit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chofesh/model-gateway/internal/metrics"
)

// refreshInterval is how long a free-balance grant lasts before the daily
// allotment overwrites it.
const refreshInterval = 24 * time.Hour

// casAttempts bounds the optimistic-concurrency retry loops.
const casAttempts = 10

// ErrInsufficient means the account cannot cover the requested cost. No
// mutation happens on this path.
var ErrInsufficient = errors.New("insufficient credits")

// ErrSettled means a reservation was already committed or released.
var ErrSettled = errors.New("reservation already settled")

// Reservation records exactly how much a reserve took from each bucket so a
// release can restore the split, not just the sum.
type Reservation struct {
	UserID        string
	FromFree      int64
	FromPurchased int64
	settled       bool
}

// Cost is the total amount held by the reservation.
func (r *Reservation) Cost() int64 { return r.FromFree + r.FromPurchased }

// Ledger authorizes, holds and settles credit costs around invocation
// attempts. Per-account serialization comes from the store's versioned
// writes: a losing writer reloads and retries, so no two reserves can spend
// the same snapshot.
type Ledger struct {
	store     Store
	allotment int64
	now       func() time.Time
	logger    *slog.Logger
}

// NewLedger creates a ledger granting allotment free credits per day.
func NewLedger(store Store, allotment int64, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:     store,
		allotment: allotment,
		now:       time.Now,
		logger:    logger,
	}
}

// Reserve atomically checks and decrements the account, free balance first.
// On ErrInsufficient the account is left untouched.
func (l *Ledger) Reserve(ctx context.Context, userID string, cost int64) (*Reservation, error) {
	if cost <= 0 {
		return nil, fmt.Errorf("reserve cost must be positive, got %d", cost)
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		acct, err := l.loadOrInit(ctx, userID)
		if err != nil {
			return nil, err
		}
		refreshed := l.applyRefresh(&acct)

		if acct.Total() < cost {
			if refreshed {
				// The refresh stands on its own even when the reserve fails.
				if err := l.store.Save(ctx, userID, acct); errors.Is(err, ErrConflict) {
					continue
				} else if err != nil {
					return nil, err
				}
			}
			metrics.InsufficientCredits.Inc()
			return nil, ErrInsufficient
		}

		fromFree := acct.Free
		if fromFree > cost {
			fromFree = cost
		}
		fromPurchased := cost - fromFree
		acct.Free -= fromFree
		acct.Purchased -= fromPurchased

		err = l.store.Save(ctx, userID, acct)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		metrics.CreditsReserved.Add(float64(cost))
		l.logger.Debug("credits reserved", "user", userID,
			"from_free", fromFree, "from_purchased", fromPurchased)
		return &Reservation{
			UserID:        userID,
			FromFree:      fromFree,
			FromPurchased: fromPurchased,
		}, nil
	}
	return nil, fmt.Errorf("reserve for %s: %w", userID, ErrConflict)
}

// Commit settles a reservation. The balances already moved at reserve time;
// this finalizes the hold for audit.
func (l *Ledger) Commit(ctx context.Context, r *Reservation) error {
	if r.settled {
		return ErrSettled
	}
	r.settled = true
	metrics.CreditsCommitted.Add(float64(r.Cost()))
	l.logger.Info("reservation committed", "user", r.UserID,
		"from_free", r.FromFree, "from_purchased", r.FromPurchased)
	return nil
}

// Release returns the reserved amounts to the buckets they came from.
func (l *Ledger) Release(ctx context.Context, r *Reservation) error {
	if r.settled {
		return ErrSettled
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		acct, err := l.store.Load(ctx, r.UserID)
		if err != nil {
			return fmt.Errorf("release for %s: %w", r.UserID, err)
		}
		acct.Free += r.FromFree
		acct.Purchased += r.FromPurchased

		err = l.store.Save(ctx, r.UserID, acct)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return err
		}

		r.settled = true
		metrics.CreditsReleased.Add(float64(r.Cost()))
		l.logger.Debug("reservation released", "user", r.UserID,
			"from_free", r.FromFree, "from_purchased", r.FromPurchased)
		return nil
	}
	return fmt.Errorf("release for %s: %w", r.UserID, ErrConflict)
}

// RefreshIfDue overwrites the free balance with the daily allotment once
// per 24h window. Idempotent inside the window.
func (l *Ledger) RefreshIfDue(ctx context.Context, userID string) (bool, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		acct, err := l.loadOrInit(ctx, userID)
		if err != nil {
			return false, err
		}
		if !l.applyRefresh(&acct) {
			return false, nil
		}
		err = l.store.Save(ctx, userID, acct)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return false, err
		}
		l.logger.Info("free credits refreshed", "user", userID, "allotment", l.allotment)
		return true, nil
	}
	return false, fmt.Errorf("refresh for %s: %w", userID, ErrConflict)
}

// RefreshAll sweeps every known account. Used by the scheduler so idle
// accounts stay fresh without waiting for their next request.
func (l *Ledger) RefreshAll(ctx context.Context) error {
	users, err := l.store.Users(ctx)
	if err != nil {
		return err
	}
	for _, userID := range users {
		if _, err := l.RefreshIfDue(ctx, userID); err != nil {
			l.logger.Error("refresh failed", "user", userID, "error", err.Error())
		}
	}
	return nil
}

// Balance reports the current account state, applying any due refresh.
func (l *Ledger) Balance(ctx context.Context, userID string) (Account, error) {
	if _, err := l.RefreshIfDue(ctx, userID); err != nil {
		return Account{}, err
	}
	return l.loadOrInit(ctx, userID)
}

// loadOrInit returns the stored account, or a fresh one carrying the full
// allotment for users the store has never seen. The fresh account is not
// persisted here; the first successful Save creates it.
func (l *Ledger) loadOrInit(ctx context.Context, userID string) (Account, error) {
	acct, err := l.store.Load(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Account{
			Free:            l.allotment,
			LastFreeRefresh: l.now(),
		}, nil
	}
	if err != nil {
		return Account{}, err
	}
	return acct, nil
}

// applyRefresh overwrites the free balance in place when the window lapsed.
// Overwrite, not add: unused free credits do not carry over.
func (l *Ledger) applyRefresh(acct *Account) bool {
	if l.now().Sub(acct.LastFreeRefresh) < refreshInterval {
		return false
	}
	acct.Free = l.allotment
	acct.LastFreeRefresh = l.now()
	return true
}
