package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the credits store (SQLite).
var Migrations = migrate.NewGroup("credits")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_credits_balances",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credits_balances (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    current_credits INTEGER NOT NULL DEFAULT 0,
    last_refresh_at TEXT,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_credits_balances_user ON credits_balances (user_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credits_balances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credits_entries",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credits_entries (
    id                      TEXT PRIMARY KEY,
    user_id                 TEXT NOT NULL,
    type                    TEXT NOT NULL,
    amount                  INTEGER NOT NULL DEFAULT 0,
    remaining_amount        INTEGER,
    description             TEXT NOT NULL DEFAULT '',
    payment_id              TEXT NOT NULL DEFAULT '',
    expiration_date         TEXT,
    expiration_processed_at TEXT,
    created_at              TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at              TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_credits_entries_user ON credits_entries (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_credits_entries_user_type ON credits_entries (user_id, type);
CREATE INDEX IF NOT EXISTS idx_credits_entries_consumable ON credits_entries (user_id, expiration_date) WHERE remaining_amount > 0;
CREATE UNIQUE INDEX IF NOT EXISTS idx_credits_entries_gift ON credits_entries (user_id) WHERE type = 'register_gift';
CREATE UNIQUE INDEX IF NOT EXISTS idx_credits_entries_purchase ON credits_entries (payment_id) WHERE type = 'purchase_package' AND payment_id != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credits_entries`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credits_accounts",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credits_accounts (
    id         TEXT PRIMARY KEY,
    email      TEXT NOT NULL DEFAULT '',
    banned     INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_credits_accounts_banned ON credits_accounts (banned);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credits_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credits_payments",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credits_payments (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    price_id   TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_credits_payments_user ON credits_payments (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_credits_payments_status ON credits_payments (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credits_payments`)
				return err
			},
		},
	)
}
