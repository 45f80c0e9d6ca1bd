// Package sqlite implements the credits store on SQLite via Grove ORM.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/balance"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/id"
	creditstore "github.com/xraph/credits/store"
	"github.com/xraph/credits/subscription"
)

// compile-time interface check
var _ creditstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("credits/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("credits/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Balance Store ====================

func (s *Store) GetBalance(ctx context.Context, userID string) (*balance.Balance, error) {
	m := new(balanceModel)
	err := s.sdb.NewSelect(m).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrBalanceNotFound
		}
		return nil, err
	}
	return fromBalanceModel(m)
}

func (s *Store) GetBalances(ctx context.Context, userIDs []string) (map[string]*balance.Balance, error) {
	if len(userIDs) == 0 {
		return map[string]*balance.Balance{}, nil
	}

	var models []balanceModel
	err := s.sdb.NewSelect(&models).
		Where("user_id IN ("+placeholders(len(userIDs))+")", toAnySlice(userIDs)...).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make(map[string]*balance.Balance, len(models))
	for i := range models {
		b, err := fromBalanceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[b.UserID] = b
	}
	return result, nil
}

func (s *Store) SetBalance(ctx context.Context, userID string, credit int64) error {
	m := toBalanceModel(balance.New(userID, credit))
	_, err := s.sdb.NewInsert(m).
		OnConflict("(user_id) DO UPDATE").
		Set("current_credits = EXCLUDED.current_credits").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) SetLastRefresh(ctx context.Context, userID string, at time.Time) error {
	res, err := s.sdb.NewUpdate((*balanceModel)(nil)).
		Set("last_refresh_at = ?", at).
		Set("updated_at = ?", now()).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return credits.ErrBalanceNotFound
	}
	return nil
}

// ==================== Entry Store ====================

func (s *Store) AppendEntry(ctx context.Context, e *entry.Entry) error {
	m := toEntryModel(e)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	if err != nil && isUniqueViolation(err) {
		return credits.ErrAlreadyExists
	}
	return err
}

func (s *Store) ListConsumableEntries(ctx context.Context, userID string, now time.Time) ([]*entry.Entry, error) {
	var models []entryModel
	err := s.sdb.NewSelect(&models).
		Where("user_id = ?", userID).
		Where("remaining_amount > 0").
		Where("expiration_processed_at IS NULL").
		Where("(expiration_date IS NULL OR expiration_date > ?)", now).
		OrderExpr("CASE WHEN expiration_date IS NULL THEN 1 ELSE 0 END ASC, expiration_date ASC, created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromEntryModels(models)
}

func (s *Store) ListExpiredEntries(ctx context.Context, userID string, now time.Time) ([]*entry.Entry, error) {
	var models []entryModel
	err := s.sdb.NewSelect(&models).
		Where("user_id = ?", userID).
		Where("remaining_amount > 0").
		Where("expiration_processed_at IS NULL").
		Where("expiration_date IS NOT NULL").
		Where("expiration_date < ?", now).
		OrderExpr("expiration_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromEntryModels(models)
}

func (s *Store) SetEntryRemaining(ctx context.Context, entryID id.EntryID, remaining int64) error {
	res, err := s.sdb.NewUpdate((*entryModel)(nil)).
		Set("remaining_amount = ?", remaining).
		Set("updated_at = ?", now()).
		Where("id = ?", entryID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return credits.ErrEntryNotFound
	}
	return nil
}

func (s *Store) MarkEntryExpired(ctx context.Context, entryID id.EntryID, processedAt time.Time) error {
	res, err := s.sdb.NewUpdate((*entryModel)(nil)).
		Set("remaining_amount = 0").
		Set("expiration_processed_at = ?", processedAt).
		Set("updated_at = ?", now()).
		Where("id = ?", entryID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return credits.ErrEntryNotFound
	}
	return nil
}

func (s *Store) HasEntryOfType(ctx context.Context, userID string, typ entry.Type) (bool, error) {
	var count int64
	err := s.sdb.NewRaw(`
		SELECT COUNT(*) FROM credits_entries WHERE user_id = ? AND type = ?
	`, userID, string(typ)).Scan(ctx, &count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ListEntries(ctx context.Context, userID string, opts entry.ListOpts) ([]*entry.Entry, error) {
	var models []entryModel
	q := s.sdb.NewSelect(&models).Where("user_id = ?", userID)

	if opts.Type != "" {
		q = q.Where("type = ?", string(opts.Type))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromEntryModels(models)
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	if err != nil && isUniqueViolation(err) {
		return credits.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetAccount(ctx context.Context, userID string) (*account.Account, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", userID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m), nil
}

func (s *Store) SetAccountBanned(ctx context.Context, userID string, banned bool) error {
	res, err := s.sdb.NewUpdate((*accountModel)(nil)).
		Set("banned = ?", banned).
		Set("updated_at = ?", now()).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return credits.ErrAccountNotFound
	}
	return nil
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, r *subscription.Record) error {
	m := toPaymentModel(r)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ActiveSnapshot(ctx context.Context) ([]subscription.Snapshot, error) {
	var accounts []accountModel
	err := s.sdb.NewSelect(&accounts).
		Where("banned = ?", false).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	var payments []paymentModel
	err = s.sdb.NewSelect(&payments).
		Where("status IN (?, ?)", string(subscription.StatusActive), string(subscription.StatusTrialing)).
		OrderExpr("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	// Newest qualifying record per user; payments are sorted newest
	// first, so the first hit wins.
	latest := make(map[string]*subscription.Record)
	for i := range payments {
		m := &payments[i]
		if _, seen := latest[m.UserID]; seen {
			continue
		}
		r, err := fromPaymentModel(m)
		if err != nil {
			return nil, err
		}
		latest[m.UserID] = r
	}

	result := make([]subscription.Snapshot, 0, len(accounts))
	for i := range accounts {
		result = append(result, subscription.Snapshot{
			UserID: accounts[i].ID,
			Latest: latest[accounts[i].ID],
		})
	}
	return result, nil
}

// ==================== Refresh batches ====================

// ApplyRefreshBatch writes the batch's entries in one bulk insert and
// its balance increments in one conflict upsert. The upsert applies
// deltas relative to each stored row, so concurrent single-user
// operations cannot be lost to a read-then-write race here.
func (s *Store) ApplyRefreshBatch(ctx context.Context, batch *creditstore.RefreshBatch) error {
	if len(batch.Entries) > 0 {
		models := make([]entryModel, len(batch.Entries))
		for i, e := range batch.Entries {
			models[i] = *toEntryModel(e)
		}
		if _, err := s.sdb.NewInsert(&models).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return credits.ErrAlreadyExists
			}
			return err
		}
	}

	if len(batch.Credits) == 0 {
		return nil
	}

	refreshAt := batch.Now
	models := make([]balanceModel, len(batch.Credits))
	for i, c := range batch.Credits {
		b := balance.New(c.UserID, c.Delta)
		b.LastRefreshAt = &refreshAt
		models[i] = *toBalanceModel(b)
	}
	_, err := s.sdb.NewInsert(&models).
		OnConflict("(user_id) DO UPDATE").
		Set("current_credits = current_credits + EXCLUDED.current_credits").
		Set("last_refresh_at = EXCLUDED.last_refresh_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

func fromEntryModels(models []entryModel) ([]*entry.Entry, error) {
	result := make([]*entry.Entry, len(models))
	for i := range models {
		e, err := fromEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toAnySlice(ids []string) []any {
	args := make([]any, len(ids))
	for i, v := range ids {
		args[i] = v
	}
	return args
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation matches SQLite's unique-constraint error text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
