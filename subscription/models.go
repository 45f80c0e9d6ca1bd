// Package subscription models the payment records the distributor
// classifies users by. Records arrive from the embedding application's
// payment webhooks; the engine only reads them.
package subscription

import (
	"context"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Status mirrors the payment provider's subscription status.
type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusCanceled Status = "canceled"
	StatusPastDue  Status = "past_due"
)

// Qualifies reports whether the status makes the record eligible for
// distribution.
func (s Status) Qualifies() bool {
	return s == StatusActive || s == StatusTrialing
}

// Record is one payment record for a user.
type Record struct {
	types.Entity
	ID      id.PaymentID `json:"id"`
	UserID  string       `json:"user_id"`
	PriceID string       `json:"price_id"`
	Status  Status       `json:"status"`
}

// New creates a payment record.
func New(userID, priceID string, status Status) *Record {
	return &Record{
		Entity:  types.NewEntity(),
		ID:      id.NewPaymentID(),
		UserID:  userID,
		PriceID: priceID,
		Status:  status,
	}
}

// Snapshot pairs a user with their most recent qualifying payment
// record. Latest is nil for users with no qualifying record; they fall
// into the free group.
type Snapshot struct {
	UserID string  `json:"user_id"`
	Latest *Record `json:"latest,omitempty"`
}

// Store is the per-entity persistence contract for payment records.
type Store interface {
	Create(ctx context.Context, r *Record) error

	// ActiveSnapshot returns one Snapshot per non-banned user: the
	// user's most recent active or trialing record, or nil when none
	// qualifies.
	ActiveSnapshot(ctx context.Context) ([]Snapshot, error)
}

// Source is the read-only collaborator the distributor consumes. The
// unified store satisfies it; tests may inject a fixed list.
type Source interface {
	ActiveSnapshot(ctx context.Context) ([]Snapshot, error)
}
