// Package memory provides an in-memory store driver for tests, demos,
// and single-process use. Every method takes the store lock, so each
// call (including ApplyRefreshBatch) is atomic.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/balance"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/subscription"
)

type Store struct {
	mu sync.RWMutex

	// Balance storage, keyed by user id
	balances map[string]*balance.Balance

	// Entry storage, append order preserved per user
	entries map[string][]*entry.Entry

	// Account storage
	accounts map[string]*account.Account

	// Payment storage, append order preserved per user
	payments map[string][]*subscription.Record
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		balances: make(map[string]*balance.Balance),
		entries:  make(map[string][]*entry.Entry),
		accounts: make(map[string]*account.Account),
		payments: make(map[string][]*subscription.Record),
	}
}

// Balance Store implementation

func (s *Store) GetBalance(_ context.Context, userID string) (*balance.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.balances[userID]; ok {
		return cloneBalance(b), nil
	}
	return nil, credits.ErrBalanceNotFound
}

func (s *Store) GetBalances(_ context.Context, userIDs []string) (map[string]*balance.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*balance.Balance, len(userIDs))
	for _, uid := range userIDs {
		if b, ok := s.balances[uid]; ok {
			result[uid] = cloneBalance(b)
		}
	}
	return result, nil
}

func (s *Store) SetBalance(_ context.Context, userID string, credit int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.balances[userID]; ok {
		b.CurrentCredits = credit
		b.Touch()
		return nil
	}
	s.balances[userID] = balance.New(userID, credit)
	return nil
}

func (s *Store) SetLastRefresh(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.balances[userID]
	if !ok {
		return credits.ErrBalanceNotFound
	}
	refresh := at
	b.LastRefreshAt = &refresh
	b.Touch()
	return nil
}

// Entry Store implementation

func (s *Store) AppendEntry(_ context.Context, e *entry.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUnique(e); err != nil {
		return err
	}
	s.entries[e.UserID] = append(s.entries[e.UserID], cloneEntry(e))
	return nil
}

// checkUnique mirrors the partial unique indexes the SQL drivers carry:
// one register_gift entry per user, one purchase entry per payment id.
func (s *Store) checkUnique(e *entry.Entry) error {
	switch e.Type {
	case entry.TypeRegisterGift:
		for _, existing := range s.entries[e.UserID] {
			if existing.Type == entry.TypeRegisterGift {
				return credits.ErrAlreadyExists
			}
		}
	case entry.TypePurchasePackage:
		if e.PaymentID == "" {
			return nil
		}
		for _, perUser := range s.entries {
			for _, existing := range perUser {
				if existing.Type == entry.TypePurchasePackage && existing.PaymentID == e.PaymentID {
					return credits.ErrAlreadyExists
				}
			}
		}
	}
	return nil
}

func (s *Store) ListConsumableEntries(_ context.Context, userID string, now time.Time) ([]*entry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*entry.Entry, 0)
	for _, e := range s.entries[userID] {
		if e.Consumable(now) {
			result = append(result, cloneEntry(e))
		}
	}
	sortConsumable(result)
	return result, nil
}

func (s *Store) ListExpiredEntries(_ context.Context, userID string, now time.Time) ([]*entry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*entry.Entry, 0)
	for _, e := range s.entries[userID] {
		if e.Type.IsEarn() && e.RemainingValue() > 0 &&
			e.ExpirationProcessedAt == nil && e.ExpiredAt(now) {
			result = append(result, cloneEntry(e))
		}
	}
	return result, nil
}

func (s *Store) SetEntryRemaining(_ context.Context, entryID id.EntryID, remaining int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.findEntry(entryID)
	if e == nil {
		return credits.ErrEntryNotFound
	}
	r := remaining
	e.Remaining = &r
	e.Touch()
	return nil
}

func (s *Store) MarkEntryExpired(_ context.Context, entryID id.EntryID, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.findEntry(entryID)
	if e == nil {
		return credits.ErrEntryNotFound
	}
	var zero int64
	at := processedAt
	e.Remaining = &zero
	e.ExpirationProcessedAt = &at
	e.Touch()
	return nil
}

func (s *Store) HasEntryOfType(_ context.Context, userID string, typ entry.Type) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries[userID] {
		if e.Type == typ {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListEntries(_ context.Context, userID string, opts entry.ListOpts) ([]*entry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*entry.Entry, 0)
	perUser := s.entries[userID]
	// Newest first
	for i := len(perUser) - 1; i >= 0; i-- {
		e := perUser[i]
		if opts.Type == "" || e.Type == opts.Type {
			result = append(result, cloneEntry(e))
		}
	}

	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}
	return result[start:end], nil
}

func (s *Store) findEntry(entryID id.EntryID) *entry.Entry {
	for _, perUser := range s.entries {
		for _, e := range perUser {
			if e.ID == entryID {
				return e
			}
		}
	}
	return nil
}

// Account Store implementation

func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID]; exists {
		return credits.ErrAlreadyExists
	}
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *Store) GetAccount(_ context.Context, userID string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[userID]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, credits.ErrAccountNotFound
}

func (s *Store) SetAccountBanned(_ context.Context, userID string, banned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return credits.ErrAccountNotFound
	}
	a.Banned = banned
	a.Touch()
	return nil
}

// Payment Store implementation

func (s *Store) CreatePayment(_ context.Context, r *subscription.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.payments[r.UserID] = append(s.payments[r.UserID], &cp)
	return nil
}

func (s *Store) ActiveSnapshot(_ context.Context) ([]subscription.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]subscription.Snapshot, 0, len(s.accounts))
	for uid, a := range s.accounts {
		if a.Banned {
			continue
		}
		snap := subscription.Snapshot{UserID: uid}
		for _, r := range s.payments[uid] {
			if !r.Status.Qualifies() {
				continue
			}
			if snap.Latest == nil || r.CreatedAt.After(snap.Latest.CreatedAt) {
				cp := *r
				snap.Latest = &cp
			}
		}
		result = append(result, snap)
	}
	// Deterministic order for tests
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

// ApplyRefreshBatch applies the whole batch under one lock acquisition.
func (s *Store) ApplyRefreshBatch(_ context.Context, batch *store.RefreshBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range batch.Entries {
		if err := s.checkUnique(e); err != nil {
			return err
		}
	}
	for _, e := range batch.Entries {
		s.entries[e.UserID] = append(s.entries[e.UserID], cloneEntry(e))
	}
	for _, c := range batch.Credits {
		refresh := batch.Now
		if b, ok := s.balances[c.UserID]; ok {
			b.CurrentCredits += c.Delta
			b.LastRefreshAt = &refresh
			b.Touch()
			continue
		}
		b := balance.New(c.UserID, c.Delta)
		b.LastRefreshAt = &refresh
		s.balances[c.UserID] = b
	}
	return nil
}

// Store management

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

// Helper functions

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

func cloneEntry(e *entry.Entry) *entry.Entry {
	cp := *e
	if e.Remaining != nil {
		r := *e.Remaining
		cp.Remaining = &r
	}
	if e.ExpirationDate != nil {
		d := *e.ExpirationDate
		cp.ExpirationDate = &d
	}
	if e.ExpirationProcessedAt != nil {
		p := *e.ExpirationProcessedAt
		cp.ExpirationProcessedAt = &p
	}
	return &cp
}

func cloneBalance(b *balance.Balance) *balance.Balance {
	cp := *b
	if b.LastRefreshAt != nil {
		t := *b.LastRefreshAt
		cp.LastRefreshAt = &t
	}
	return &cp
}
