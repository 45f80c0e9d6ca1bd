package balance

import (
	"context"
	"time"
)

// Store is the per-entity persistence contract for balance rows.
type Store interface {
	// Get returns the user's balance row, or a not-found error when
	// none exists.
	Get(ctx context.Context, userID string) (*Balance, error)

	// GetBulk returns existing balance rows for the given users, keyed
	// by user id. Missing users are simply absent from the map.
	GetBulk(ctx context.Context, userIDs []string) (map[string]*Balance, error)

	// SetCredits upserts: creates the row when absent, otherwise
	// overwrites current credits and touches updated_at.
	SetCredits(ctx context.Context, userID string, credits int64) error

	// SetLastRefresh updates only last_refresh_at on an existing row.
	SetLastRefresh(ctx context.Context, userID string, at time.Time) error
}
