package entry

import (
	"context"
	"time"

	"github.com/xraph/credits/id"
)

// Store is the per-entity persistence contract for ledger entries.
// Append plus two narrow update paths; entries are never deleted.
type Store interface {
	Append(ctx context.Context, e *Entry) error

	// ListConsumable returns earn entries with remaining credit that
	// are unprocessed and unexpired at now, in consumption order:
	// earliest expiration first, undated entries last, then creation
	// order.
	ListConsumable(ctx context.Context, userID string, now time.Time) ([]*Entry, error)

	// ListExpired returns earn entries whose expiration date is before
	// now, with remaining credit, not yet stamped as processed.
	ListExpired(ctx context.Context, userID string, now time.Time) ([]*Entry, error)

	// SetRemaining overwrites the remaining amount of one entry.
	SetRemaining(ctx context.Context, entryID id.EntryID, remaining int64) error

	// MarkExpired zeroes the remaining amount and stamps the
	// expiration-processed time.
	MarkExpired(ctx context.Context, entryID id.EntryID, processedAt time.Time) error

	// HasOfType reports whether the user already holds an entry of the
	// given type. Gates one-time grants.
	HasOfType(ctx context.Context, userID string, typ Type) (bool, error)

	// List returns a user's entries newest first, for audit views.
	List(ctx context.Context, userID string, opts ListOpts) ([]*Entry, error)
}

type ListOpts struct {
	Type   Type
	Limit  int
	Offset int
}
