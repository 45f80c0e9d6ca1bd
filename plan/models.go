// Package plan is the read-only plan catalog the engine resolves grant
// policy from. Plans are configuration, not persisted state; the
// embedding application supplies them at construction time.
package plan

import "github.com/xraph/credits/types"

// Interval is a plan's billing cadence.
type Interval string

const (
	IntervalMonthly Interval = "monthly"
	IntervalYearly  Interval = "yearly"
	IntervalNone    Interval = "none" // free and lifetime plans
)

// CreditPolicy says whether and how a plan grants credits.
type CreditPolicy struct {
	Enable     bool  `json:"enable"`
	Amount     int64 `json:"amount"`
	ExpireDays int   `json:"expire_days"` // 0 means the grant never expires
}

// Plan describes one subscription plan as the engine sees it.
type Plan struct {
	PriceID  string      `json:"price_id"` // payment-provider price id, the lookup key
	Name     string      `json:"name"`
	Free     bool        `json:"free"`
	Lifetime bool        `json:"lifetime"`
	Disabled bool        `json:"disabled"` // hidden from new signups; renewals still honored
	Interval Interval    `json:"interval"`
	Price    types.Money `json:"price"`

	Credits CreditPolicy `json:"credits"`
}

// GrantsCredits reports whether the plan grants any credit at all.
func (p *Plan) GrantsCredits() bool {
	return p != nil && p.Credits.Enable && p.Credits.Amount > 0
}

// Package is a one-time purchasable credit bundle.
type Package struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Price      types.Money `json:"price"`
	Credits    int64       `json:"credits"`
	ExpireDays int         `json:"expire_days"` // 0 means the credits never expire
}
