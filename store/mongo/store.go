// Package mongo implements the credits store on MongoDB via Grove ORM.
// FIFO ordering of consumable entries is done in Go because Mongo
// sorts missing fields before present ones, the opposite of the
// undated-last ordering consumption needs.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/balance"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/id"
	creditstore "github.com/xraph/credits/store"
	"github.com/xraph/credits/subscription"
)

// Collection name constants.
const (
	colBalances = "credits_balances"
	colEntries  = "credits_entries"
	colAccounts = "credits_accounts"
	colPayments = "credits_payments"
)

// compile-time interface check
var _ creditstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all credits collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("credits/mongo: migrate %s indexes: %w", col, err)
		}
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
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"user_id": userID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrBalanceNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get balance: %w", err)
	}
	return fromBalanceModel(&m)
}

func (s *Store) GetBalances(ctx context.Context, userIDs []string) (map[string]*balance.Balance, error) {
	if len(userIDs) == 0 {
		return map[string]*balance.Balance{}, nil
	}

	var models []balanceModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"user_id": bson.M{"$in": userIDs}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: get balances: %w", err)
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
	t := now()
	_, err := s.mdb.Collection(colBalances).UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$set": bson.M{"current_credits": credit, "updated_at": t},
			"$setOnInsert": bson.M{
				"_id":        id.NewBalanceID().String(),
				"user_id":    userID,
				"created_at": t,
			},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("credits/mongo: set balance: %w", err)
	}
	return nil
}

func (s *Store) SetLastRefresh(ctx context.Context, userID string, at time.Time) error {
	res, err := s.mdb.NewUpdate((*balanceModel)(nil)).
		Filter(bson.M{"user_id": userID}).
		Set("last_refresh_at", at).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: set last refresh: %w", err)
	}
	if res.MatchedCount() == 0 {
		return credits.ErrBalanceNotFound
	}
	return nil
}

// ==================== Entry Store ====================

func (s *Store) AppendEntry(ctx context.Context, e *entry.Entry) error {
	m := toEntryModel(e)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return credits.ErrAlreadyExists
		}
		return fmt.Errorf("credits/mongo: append entry: %w", err)
	}
	return nil
}

func (s *Store) ListConsumableEntries(ctx context.Context, userID string, now time.Time) ([]*entry.Entry, error) {
	var models []entryModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"user_id":                 userID,
			"remaining_amount":        bson.M{"$gt": 0},
			"expiration_processed_at": nil,
			"$or": bson.A{
				bson.M{"expiration_date": nil},
				bson.M{"expiration_date": bson.M{"$gt": now}},
			},
		}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: list consumable: %w", err)
	}

	result, err := fromEntryModels(models)
	if err != nil {
		return nil, err
	}
	sortConsumable(result)
	return result, nil
}

func (s *Store) ListExpiredEntries(ctx context.Context, userID string, now time.Time) ([]*entry.Entry, error) {
	var models []entryModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"user_id":                 userID,
			"remaining_amount":        bson.M{"$gt": 0},
			"expiration_processed_at": nil,
			"expiration_date":         bson.M{"$ne": nil, "$lt": now},
		}).
		Sort(bson.D{{Key: "expiration_date", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: list expired: %w", err)
	}
	return fromEntryModels(models)
}

func (s *Store) SetEntryRemaining(ctx context.Context, entryID id.EntryID, remaining int64) error {
	res, err := s.mdb.NewUpdate((*entryModel)(nil)).
		Filter(bson.M{"_id": entryID.String()}).
		Set("remaining_amount", remaining).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: set entry remaining: %w", err)
	}
	if res.MatchedCount() == 0 {
		return credits.ErrEntryNotFound
	}
	return nil
}

func (s *Store) MarkEntryExpired(ctx context.Context, entryID id.EntryID, processedAt time.Time) error {
	res, err := s.mdb.NewUpdate((*entryModel)(nil)).
		Filter(bson.M{"_id": entryID.String()}).
		Set("remaining_amount", 0).
		Set("expiration_processed_at", processedAt).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: mark entry expired: %w", err)
	}
	if res.MatchedCount() == 0 {
		return credits.ErrEntryNotFound
	}
	return nil
}

func (s *Store) HasEntryOfType(ctx context.Context, userID string, typ entry.Type) (bool, error) {
	count, err := s.mdb.Collection(colEntries).CountDocuments(ctx, bson.M{
		"user_id": userID,
		"type":    string(typ),
	})
	if err != nil {
		return false, fmt.Errorf("credits/mongo: has entry of type: %w", err)
	}
	return count > 0, nil
}

func (s *Store) ListEntries(ctx context.Context, userID string, opts entry.ListOpts) ([]*entry.Entry, error) {
	filter := bson.M{"user_id": userID}
	if opts.Type != "" {
		filter["type"] = string(opts.Type)
	}

	var models []entryModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("credits/mongo: list entries: %w", err)
	}
	return fromEntryModels(models)
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return credits.ErrAlreadyExists
		}
		return fmt.Errorf("credits/mongo: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, userID string) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": userID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrAccountNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get account: %w", err)
	}
	return fromAccountModel(&m), nil
}

func (s *Store) SetAccountBanned(ctx context.Context, userID string, banned bool) error {
	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": userID}).
		Set("banned", banned).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: set account banned: %w", err)
	}
	if res.MatchedCount() == 0 {
		return credits.ErrAccountNotFound
	}
	return nil
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, r *subscription.Record) error {
	m := toPaymentModel(r)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: create payment: %w", err)
	}
	return nil
}

func (s *Store) ActiveSnapshot(ctx context.Context) ([]subscription.Snapshot, error) {
	var accounts []accountModel
	err := s.mdb.NewFind(&accounts).
		Filter(bson.M{"banned": false}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: active snapshot accounts: %w", err)
	}

	var payments []paymentModel
	err = s.mdb.NewFind(&payments).
		Filter(bson.M{"status": bson.M{"$in": bson.A{
			string(subscription.StatusActive),
			string(subscription.StatusTrialing),
		}}}).
		Sort(bson.D{{Key: "created_at", Value: -1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: active snapshot payments: %w", err)
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

// ApplyRefreshBatch inserts the batch's entries and applies each
// balance increment as an atomic $inc upsert. Mongo gives no
// multi-document transaction here without a replica set, so a batch
// that fails midway is surfaced as an error and its users are counted
// as failed by the caller.
func (s *Store) ApplyRefreshBatch(ctx context.Context, batch *creditstore.RefreshBatch) error {
	for _, e := range batch.Entries {
		m := toEntryModel(e)
		if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return credits.ErrAlreadyExists
			}
			return fmt.Errorf("credits/mongo: refresh batch entry: %w", err)
		}
	}

	for _, c := range batch.Credits {
		_, err := s.mdb.Collection(colBalances).UpdateOne(ctx,
			bson.M{"user_id": c.UserID},
			bson.M{
				"$inc": bson.M{"current_credits": c.Delta},
				"$set": bson.M{"last_refresh_at": batch.Now, "updated_at": batch.Now},
				"$setOnInsert": bson.M{
					"_id":        id.NewBalanceID().String(),
					"user_id":    c.UserID,
					"created_at": batch.Now,
				},
			},
			options.UpdateOne().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("credits/mongo: refresh batch credit: %w", err)
		}
	}
	return nil
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

// sortConsumable orders entries for FIFO consumption: earliest
// expiration first, undated entries last, creation time breaks ties.
func sortConsumable(entries []*entry.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.ExpirationDate == nil && b.ExpirationDate == nil:
			return a.CreatedAt.Before(b.CreatedAt)
		case a.ExpirationDate == nil:
			return false
		case b.ExpirationDate == nil:
			return true
		case a.ExpirationDate.Equal(*b.ExpirationDate):
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.ExpirationDate.Before(*b.ExpirationDate)
		}
	})
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all credits collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colBalances: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colEntries: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "type", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "expiration_date", Value: 1}}},
			{
				Keys: bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"type": "register_gift"}),
			},
			{
				Keys: bson.D{{Key: "payment_id", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{
						"type":       "purchase_package",
						"payment_id": bson.M{"$exists": true},
					}),
			},
		},
		colAccounts: {
			{Keys: bson.D{{Key: "banned", Value: 1}}},
		},
		colPayments: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
	}
}
