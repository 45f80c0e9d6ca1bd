// Package store defines the unified storage interface for the credits
// engine and the batch types shared by its drivers.
package store

import (
	"context"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/balance"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/subscription"
)

// Store is the unified storage interface for all credits entities.
// Instead of embedding the sub-interfaces, we explicitly declare all
// methods to avoid naming conflicts.
type Store interface {
	// Balance methods
	GetBalance(ctx context.Context, userID string) (*balance.Balance, error)
	GetBalances(ctx context.Context, userIDs []string) (map[string]*balance.Balance, error)
	SetBalance(ctx context.Context, userID string, credits int64) error
	SetLastRefresh(ctx context.Context, userID string, at time.Time) error

	// Entry methods
	AppendEntry(ctx context.Context, e *entry.Entry) error
	ListConsumableEntries(ctx context.Context, userID string, now time.Time) ([]*entry.Entry, error)
	ListExpiredEntries(ctx context.Context, userID string, now time.Time) ([]*entry.Entry, error)
	SetEntryRemaining(ctx context.Context, entryID id.EntryID, remaining int64) error
	MarkEntryExpired(ctx context.Context, entryID id.EntryID, processedAt time.Time) error
	HasEntryOfType(ctx context.Context, userID string, typ entry.Type) (bool, error)
	ListEntries(ctx context.Context, userID string, opts entry.ListOpts) ([]*entry.Entry, error)

	// Account methods
	CreateAccount(ctx context.Context, a *account.Account) error
	GetAccount(ctx context.Context, userID string) (*account.Account, error)
	SetAccountBanned(ctx context.Context, userID string, banned bool) error

	// Payment methods
	CreatePayment(ctx context.Context, r *subscription.Record) error
	ActiveSnapshot(ctx context.Context) ([]subscription.Snapshot, error)

	// ApplyRefreshBatch applies one distribution batch: append the
	// batch's earn entries and apply each balance credit (create the
	// row at the delta when absent, else add the delta and stamp
	// last_refresh_at). Atomic where the backend supports it; an error
	// means the whole batch must be treated as failed.
	ApplyRefreshBatch(ctx context.Context, batch *RefreshBatch) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// RefreshBatch is the unit of work the distributor hands a driver.
type RefreshBatch struct {
	Entries []*entry.Entry
	Credits []BalanceCredit
	Now     time.Time // stamped as last_refresh_at on every credited row
}

// BalanceCredit is a relative balance increment for one user.
type BalanceCredit struct {
	UserID string
	Delta  int64
}
