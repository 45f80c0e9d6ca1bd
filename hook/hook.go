// Package hook provides an extensible hook system for the credits
// engine. Hooks can observe lifecycle and ledger events to extend
// functionality without touching the accounting path.
package hook

import (
	"context"
	"time"
)

// Hook is the base interface that all hooks must implement.
type Hook interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Hook
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine is shutting down.
type OnShutdown interface {
	Hook
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Ledger event hooks
// ──────────────────────────────────────────────────

// GrantEvent describes one issued grant.
type GrantEvent struct {
	UserID      string
	Type        string
	Amount      int64
	Description string
	PaymentID   string
	ExpiresAt   *time.Time
}

// OnGranted is called after a grant is persisted.
type OnGranted interface {
	Hook
	OnGranted(ctx context.Context, ev GrantEvent) error
}

// ConsumeEvent describes one successful consumption.
type ConsumeEvent struct {
	UserID      string
	Amount      int64
	Description string
	// EntriesCharged is how many earn entries the FIFO walk touched.
	EntriesCharged int
}

// OnConsumed is called after a consumption is persisted.
type OnConsumed interface {
	Hook
	OnConsumed(ctx context.Context, ev ConsumeEvent) error
}

// SweepEvent describes one expiration sweep that reclaimed credit.
// Sweeps that find nothing expired do not emit.
type SweepEvent struct {
	UserID       string
	ExpiredTotal int64
	EntriesSwept int
}

// OnSwept is called after a sweep reclaims expired credit.
type OnSwept interface {
	Hook
	OnSwept(ctx context.Context, ev SweepEvent) error
}

// DistributionEvent summarizes one full distribution run.
type DistributionEvent struct {
	UsersCount     int
	ProcessedCount int
	ErrorCount     int
	Elapsed        time.Duration
}

// OnDistributed is called after a distribution run completes.
type OnDistributed interface {
	Hook
	OnDistributed(ctx context.Context, ev DistributionEvent) error
}

// BatchErrorEvent describes one failed distribution batch.
type BatchErrorEvent struct {
	Group     string
	PriceID   string
	UserCount int
	Err       error
}

// OnBatchFailed is called when a distribution batch is aborted.
type OnBatchFailed interface {
	Hook
	OnBatchFailed(ctx context.Context, ev BatchErrorEvent) error
}

// InsufficientEvent describes a rejected consumption.
type InsufficientEvent struct {
	UserID    string
	Requested int64
	Balance   int64
}

// OnInsufficient is called when a consume is rejected for lack of
// credit. Useful for upsell and alerting hooks.
type OnInsufficient interface {
	Hook
	OnInsufficient(ctx context.Context, ev InsufficientEvent) error
}
