// Package entry defines the ledger entry model: one append-mostly
// record per credit grant or debit. Earn entries carry a remaining
// amount that is drawn down by consumption and reclaimed by expiry;
// usage and expire entries are pure debit records and never change
// after creation.
package entry

import (
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Type classifies a ledger entry.
type Type string

const (
	// Earn types. Positive amount, tracked remaining amount.
	TypeRegisterGift        Type = "register_gift"
	TypeMonthlyRefresh      Type = "monthly_refresh"
	TypeSubscriptionRenewal Type = "subscription_renewal"
	TypeLifetimeMonthly     Type = "lifetime_monthly"
	TypePurchasePackage     Type = "purchase_package"

	// Debit types. Negative amount, no remaining amount.
	TypeUsage  Type = "usage"
	TypeExpire Type = "expire"
)

// IsEarn reports whether entries of this type carry spendable credit.
func (t Type) IsEarn() bool {
	switch t {
	case TypeRegisterGift, TypeMonthlyRefresh, TypeSubscriptionRenewal,
		TypeLifetimeMonthly, TypePurchasePackage:
		return true
	}
	return false
}

// IsDebit reports whether entries of this type record a deduction.
func (t Type) IsDebit() bool {
	return t == TypeUsage || t == TypeExpire
}

// Valid reports whether t is a known entry type.
func (t Type) Valid() bool {
	return t.IsEarn() || t.IsDebit()
}

// Entry is one ledger record. After creation only RemainingAmount and
// ExpirationProcessedAt may change, and only on earn entries.
type Entry struct {
	types.Entity
	ID          id.EntryID `json:"id"`
	UserID      string     `json:"user_id"`
	Type        Type       `json:"type"`
	Amount      int64      `json:"amount"`           // positive for earn, negative for usage/expire
	Remaining   *int64     `json:"remaining_amount"` // nil for usage/expire
	Description string     `json:"description"`
	PaymentID   string     `json:"payment_id,omitempty"` // correlation id, dedupe key for purchases

	ExpirationDate        *time.Time `json:"expiration_date,omitempty"`
	ExpirationProcessedAt *time.Time `json:"expiration_processed_at,omitempty"`
}

// NewEarn builds an earn entry with Remaining set to amount.
func NewEarn(userID string, typ Type, amount int64, description string) *Entry {
	remaining := amount
	return &Entry{
		Entity:      types.NewEntity(),
		ID:          id.NewEntryID(),
		UserID:      userID,
		Type:        typ,
		Amount:      amount,
		Remaining:   &remaining,
		Description: description,
	}
}

// NewDebit builds a usage or expire entry. The stored amount is the
// negation of the (positive) deducted amount.
func NewDebit(userID string, typ Type, amount int64, description string) *Entry {
	return &Entry{
		Entity:      types.NewEntity(),
		ID:          id.NewEntryID(),
		UserID:      userID,
		Type:        typ,
		Amount:      -amount,
		Description: description,
	}
}

// RemainingValue returns the remaining amount, or 0 when unset.
func (e *Entry) RemainingValue() int64 {
	if e.Remaining == nil {
		return 0
	}
	return *e.Remaining
}

// ExpiredAt reports whether the entry's expiration date has passed at
// the given instant. Entries without an expiration never expire.
func (e *Entry) ExpiredAt(now time.Time) bool {
	return e.ExpirationDate != nil && e.ExpirationDate.Before(now)
}

// Consumable reports whether the entry can still serve a consumption
// at the given instant.
func (e *Entry) Consumable(now time.Time) bool {
	return e.Type.IsEarn() &&
		e.RemainingValue() > 0 &&
		e.ExpirationProcessedAt == nil &&
		!e.ExpiredAt(now)
}
