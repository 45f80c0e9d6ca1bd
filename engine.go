package credits

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/credits/balance"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/hook"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/subscription"
)

// lockStripes is the size of the per-user mutex table. Operations on
// the same user always hash to the same stripe, so a sweep-then-mutate
// sequence can never interleave with another writer for that user.
const lockStripes = 64

// Engine is the credit accounting engine.
type Engine struct {
	store   store.Store
	catalog plan.Catalog
	source  subscription.Source
	hooks   *hook.Registry
	logger  *slog.Logger

	now func() time.Time

	// Per-user striped locks
	locks [lockStripes]sync.Mutex

	// Background distribution worker
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Configuration
	batchSize          int
	distributeInterval time.Duration
	registerGift       plan.CreditPolicy
}

// New creates a new Engine around a store. The store doubles as the
// payment snapshot source unless WithSource overrides it.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		catalog:   plan.NewStatic(nil, nil),
		source:    s,
		hooks:     hook.NewRegistry(),
		logger:    slog.Default(),
		now:       time.Now,
		stopChan:  make(chan struct{}),
		batchSize: 100,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.hooks.WithLogger(logger)
	}
}

// WithCatalog sets the plan catalog the typed grant paths and the
// distributor resolve policy from.
func WithCatalog(c plan.Catalog) Option {
	return func(e *Engine) {
		e.catalog = c
	}
}

// WithSource overrides where the distributor reads payment snapshots.
func WithSource(src subscription.Source) Option {
	return func(e *Engine) {
		e.source = src
	}
}

// WithHook registers a hook.
func WithHook(h hook.Hook) Option {
	return func(e *Engine) {
		_ = e.hooks.Register(h) //nolint:errcheck // best-effort hook registration during init
	}
}

// WithClock overrides the engine's clock. Monthly-refresh eligibility
// is a calendar comparison against this clock, so tests inject a fixed
// one.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithBatchSize sets the distribution batch size.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithDistributeInterval makes Start run DistributeAll on a ticker.
// Zero (the default) disables the worker; the application schedules
// distribution itself.
func WithDistributeInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.distributeInterval = d
	}
}

// WithRegisterGift enables the one-time signup gift and sets its
// policy.
func WithRegisterGift(policy plan.CreditPolicy) Option {
	return func(e *Engine) {
		e.registerGift = policy
	}
}

// Start migrates the store, initializes hooks, and starts the optional
// distribution worker.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	e.hooks.EmitInit(ctx, e)

	if e.distributeInterval > 0 {
		e.wg.Add(1)
		go e.distributeWorker(ctx)
	}

	e.logger.Info("credits engine started",
		"batch_size", e.batchSize,
		"distribute_interval", e.distributeInterval,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.hooks.EmitShutdown(ctx)

	return e.store.Close()
}

// Hooks exposes the hook registry for registration after construction.
func (e *Engine) Hooks() *hook.Registry {
	return e.hooks
}

// distributeWorker runs DistributeAll on a fixed interval.
func (e *Engine) distributeWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.distributeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			if _, err := e.DistributeAll(ctx); err != nil {
				e.logger.Error("scheduled distribution failed", "error", err)
			}
		}
	}
}

// ──────────────────────────────────────────────────
// Balance
// ──────────────────────────────────────────────────

// Balance returns the user's current credit balance. Users without a
// balance row have zero credits.
func (e *Engine) Balance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrInvalidParams
	}

	b, err := e.store.GetBalance(ctx, userID)
	if err != nil {
		if IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return b.CurrentCredits, nil
}

// ──────────────────────────────────────────────────
// Grant
// ──────────────────────────────────────────────────

// GrantRequest describes one credit grant.
type GrantRequest struct {
	UserID      string
	Amount      int64
	Type        entry.Type
	Description string

	// PaymentID correlates the grant with a payment. For
	// purchase_package grants it is also the dedupe key.
	PaymentID string

	// ExpireDays sets the grant's expiration relative to now. Zero
	// means the credits never expire; negative values are invalid.
	ExpireDays int
}

// Grant issues credits: sweeps expired entries first, appends an earn
// entry with its full amount remaining, and increments the balance.
// Returns ErrAlreadyExists when the entry violates a uniqueness rule
// (repeated register gift, replayed purchase payment id).
func (e *Engine) Grant(ctx context.Context, req GrantRequest) error {
	if req.UserID == "" || req.Description == "" || !req.Type.IsEarn() {
		return ErrInvalidParams
	}
	if req.Amount <= 0 || req.ExpireDays < 0 {
		return ErrInvalidAmount
	}

	e.lock(req.UserID)
	defer e.unlock(req.UserID)

	now := e.now().UTC()
	if _, err := e.sweepLocked(ctx, req.UserID, now); err != nil {
		return err
	}

	ent := entry.NewEarn(req.UserID, req.Type, req.Amount, req.Description)
	ent.PaymentID = req.PaymentID
	if req.ExpireDays > 0 {
		exp := now.AddDate(0, 0, req.ExpireDays)
		ent.ExpirationDate = &exp
	}

	if err := e.store.AppendEntry(ctx, ent); err != nil {
		return err
	}

	current, err := e.Balance(ctx, req.UserID)
	if err != nil {
		return err
	}
	if err := e.store.SetBalance(ctx, req.UserID, current+req.Amount); err != nil {
		return err
	}

	e.hooks.EmitGranted(ctx, hook.GrantEvent{
		UserID:      req.UserID,
		Type:        string(req.Type),
		Amount:      req.Amount,
		Description: req.Description,
		PaymentID:   req.PaymentID,
		ExpiresAt:   ent.ExpirationDate,
	})

	e.logger.Debug("credits granted",
		"user_id", req.UserID,
		"type", req.Type,
		"amount", req.Amount,
	)

	return nil
}

// ──────────────────────────────────────────────────
// Consume
// ──────────────────────────────────────────────────

// Consume deducts credits: sweeps expired entries, rejects the request
// when the balance cannot cover it, draws the amount down across
// consumable entries in expiration order (undated entries last), and
// appends a usage entry. Rejection leaves no writes behind.
//
// The balance is decremented by the full amount even if the entries'
// remaining amounts fall short; the balance row is authoritative and
// drift stays visible in the ledger.
func (e *Engine) Consume(ctx context.Context, userID string, amount int64, description string) error {
	if userID == "" || description == "" {
		return ErrInvalidParams
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	e.lock(userID)
	defer e.unlock(userID)

	now := e.now().UTC()
	if _, err := e.sweepLocked(ctx, userID, now); err != nil {
		return err
	}

	current, err := e.Balance(ctx, userID)
	if err != nil {
		return err
	}
	if current < amount {
		e.hooks.EmitInsufficient(ctx, hook.InsufficientEvent{
			UserID:    userID,
			Requested: amount,
			Balance:   current,
		})
		return ErrInsufficientCredits
	}

	consumable, err := e.store.ListConsumableEntries(ctx, userID, now)
	if err != nil {
		return err
	}

	toConsume := amount
	charged := 0
	for _, ent := range consumable {
		if toConsume == 0 {
			break
		}
		take := min(ent.RemainingValue(), toConsume)
		if take == 0 {
			continue
		}
		if err := e.store.SetEntryRemaining(ctx, ent.ID, ent.RemainingValue()-take); err != nil {
			return err
		}
		toConsume -= take
		charged++
	}

	if err := e.store.SetBalance(ctx, userID, current-amount); err != nil {
		return err
	}

	usage := entry.NewDebit(userID, entry.TypeUsage, amount, description)
	if err := e.store.AppendEntry(ctx, usage); err != nil {
		return err
	}

	e.hooks.EmitConsumed(ctx, hook.ConsumeEvent{
		UserID:         userID,
		Amount:         amount,
		Description:    description,
		EntriesCharged: charged,
	})

	e.logger.Debug("credits consumed",
		"user_id", userID,
		"amount", amount,
		"entries_charged", charged,
	)

	return nil
}

// ──────────────────────────────────────────────────
// Sweep
// ──────────────────────────────────────────────────

// Sweep reclaims expired, unprocessed credit for one user: stamps each
// expired entry as processed, clamps the balance at zero, and appends a
// single expire entry for the reclaimed total. Idempotent; a sweep that
// finds nothing expired performs no writes. Returns the reclaimed
// total.
func (e *Engine) Sweep(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrInvalidParams
	}

	e.lock(userID)
	defer e.unlock(userID)

	return e.sweepLocked(ctx, userID, e.now().UTC())
}

// sweepLocked is the sweep body. Callers must hold the user's lock.
func (e *Engine) sweepLocked(ctx context.Context, userID string, now time.Time) (int64, error) {
	expired, err := e.store.ListExpiredEntries(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	var total int64
	for _, ent := range expired {
		total += ent.RemainingValue()
		if err := e.store.MarkEntryExpired(ctx, ent.ID, now); err != nil {
			return 0, err
		}
	}

	current, err := e.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := e.store.SetBalance(ctx, userID, max(0, current-total)); err != nil {
		return 0, err
	}

	exp := entry.NewDebit(userID, entry.TypeExpire, total, "credits expired")
	if err := e.store.AppendEntry(ctx, exp); err != nil {
		return 0, err
	}

	e.hooks.EmitSwept(ctx, hook.SweepEvent{
		UserID:       userID,
		ExpiredTotal: total,
		EntriesSwept: len(expired),
	})

	e.logger.Debug("expired credits swept",
		"user_id", userID,
		"expired_total", total,
		"entries_swept", len(expired),
	)

	return total, nil
}

// ──────────────────────────────────────────────────
// Monthly eligibility
// ──────────────────────────────────────────────────

// CanGrantMonthly reports whether the user is eligible for a
// monthly-type grant: eligible when the balance's last refresh falls in
// a different calendar month than now. Users without a balance row are
// always eligible.
func (e *Engine) CanGrantMonthly(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, ErrInvalidParams
	}

	b, err := e.store.GetBalance(ctx, userID)
	if err != nil {
		if IsNotFound(err) {
			return true, nil
		}
		return false, err
	}
	return !b.RefreshedIn(e.now().UTC()), nil
}

// ──────────────────────────────────────────────────
// Ledger views
// ──────────────────────────────────────────────────

// Entries returns the user's ledger entries, newest first.
func (e *Engine) Entries(ctx context.Context, userID string, opts entry.ListOpts) ([]*entry.Entry, error) {
	if userID == "" {
		return nil, ErrInvalidParams
	}
	return e.store.ListEntries(ctx, userID, opts)
}

// BalanceRecord returns the user's full balance row, including the
// last refresh timestamp. ErrBalanceNotFound when absent.
func (e *Engine) BalanceRecord(ctx context.Context, userID string) (*balance.Balance, error) {
	if userID == "" {
		return nil, ErrInvalidParams
	}
	return e.store.GetBalance(ctx, userID)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (e *Engine) lock(userID string) {
	e.locks[stripe(userID)].Lock()
}

func (e *Engine) unlock(userID string) {
	e.locks[stripe(userID)].Unlock()
}

// lockUsers acquires the stripe locks covering a batch of users, in
// stripe order so a batch and a single-user write can never deadlock.
// Returns the matching unlock.
func (e *Engine) lockUsers(userIDs []string) func() {
	var need [lockStripes]bool
	for _, userID := range userIDs {
		need[stripe(userID)] = true
	}
	held := make([]int, 0, lockStripes)
	for i := 0; i < lockStripes; i++ {
		if need[i] {
			e.locks[i].Lock()
			held = append(held, i)
		}
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			e.locks[held[i]].Unlock()
		}
	}
}

func stripe(userID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return h.Sum32() % lockStripes
}
