// Package balance holds the denormalized per-user credit balance. One
// row per user, created lazily on first grant, kept in lockstep with
// every ledger mutation.
package balance

import (
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Balance is the single current-credits row for a user.
type Balance struct {
	types.Entity
	ID             id.BalanceID `json:"id"`
	UserID         string       `json:"user_id"`
	CurrentCredits int64        `json:"current_credits"`

	// LastRefreshAt is the time of the last monthly-type grant. Nil
	// until the first one. Drives the once-per-calendar-month policy.
	LastRefreshAt *time.Time `json:"last_refresh_at,omitempty"`
}

// New creates a balance row for a user with the given starting credits.
func New(userID string, credits int64) *Balance {
	return &Balance{
		Entity:         types.NewEntity(),
		ID:             id.NewBalanceID(),
		UserID:         userID,
		CurrentCredits: credits,
	}
}

// RefreshedIn reports whether the last monthly-type grant happened in
// the same calendar month and year as now. Wall-clock comparison, not
// a rolling window.
func (b *Balance) RefreshedIn(now time.Time) bool {
	if b == nil || b.LastRefreshAt == nil {
		return false
	}
	return b.LastRefreshAt.Month() == now.Month() && b.LastRefreshAt.Year() == now.Year()
}
