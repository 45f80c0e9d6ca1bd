// Package account carries the minimal user record the engine needs:
// identity and a banned flag. The embedding application owns the real
// user model; this mirror exists so distribution can enumerate
// non-banned users without reaching outside the store.
package account

import (
	"context"

	"github.com/xraph/credits/types"
)

// Account is a minimal mirror of an application user.
type Account struct {
	types.Entity
	ID     string `json:"id"` // application-assigned, opaque to the engine
	Email  string `json:"email,omitempty"`
	Banned bool   `json:"banned"`
}

// New creates an account record.
func New(userID string) *Account {
	return &Account{
		Entity: types.NewEntity(),
		ID:     userID,
	}
}

// Store is the per-entity persistence contract for accounts.
type Store interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, userID string) (*Account, error)
	SetBanned(ctx context.Context, userID string, banned bool) error
}
