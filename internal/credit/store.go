// Package credit implements the reservation ledger over a versioned
// account store. Free balance always drains before purchased balance, and
// every reservation is either committed or released exactly once.
package credit

import (
	"context"
	"errors"
	"time"
)

// Account is one user's credit record as persisted in the store.
type Account struct {
	Free            int64     `json:"free"`
	Purchased       int64     `json:"purchased"`
	LastFreeRefresh time.Time `json:"last_free_refresh"`

	// Version implements optimistic concurrency: Save succeeds only when
	// the caller holds the current version.
	Version int64 `json:"version"`
}

// Total is the spendable balance.
func (a Account) Total() int64 { return a.Free + a.Purchased }

var (
	// ErrNotFound means the user has no account record yet.
	ErrNotFound = errors.New("credit account not found")
	// ErrConflict means a concurrent writer won; reload and retry.
	ErrConflict = errors.New("credit account version conflict")
)

// Store persists accounts. Save must be compare-and-swap on Version so two
// writers can never both pass a balance check against the same snapshot.
type Store interface {
	Load(ctx context.Context, userID string) (Account, error)
	Save(ctx context.Context, userID string, acct Account) error
	Users(ctx context.Context) ([]string, error)
}
