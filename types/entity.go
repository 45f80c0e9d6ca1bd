// Package types provides common types shared across the credits engine.
package types

import "time"

// Entity is the base type for all persisted credits records.
// Embed it in domain types to get uniform timestamp handling.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates a new Entity with current timestamps.
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewEntityAt creates an Entity with both timestamps set to the given
// instant. Batch writes use it so every row in a batch carries the same
// creation time.
func NewEntityAt(at time.Time) Entity {
	return Entity{
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// Touch updates the UpdatedAt timestamp to now.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}

// Age returns how long ago the entity was created.
func (e Entity) Age() time.Duration {
	return time.Since(e.CreatedAt)
}

// LastModified returns how long ago the entity was last updated.
func (e Entity) LastModified() time.Duration {
	return time.Since(e.UpdatedAt)
}
