package credits_test

import (
	"context"
	"errors"
	"testing"
	"time"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/subscription"
)

func distributionCatalog() *plan.Static {
	return plan.NewStatic([]*plan.Plan{
		{
			PriceID:  "price_free",
			Name:     "Free",
			Free:     true,
			Interval: plan.IntervalNone,
			Credits:  plan.CreditPolicy{Enable: true, Amount: 100, ExpireDays: 30},
		},
		{
			PriceID:  "price_year",
			Name:     "Pro Yearly",
			Interval: plan.IntervalYearly,
			Credits:  plan.CreditPolicy{Enable: true, Amount: 500, ExpireDays: 60},
		},
		{
			PriceID:  "price_life",
			Name:     "Lifetime",
			Lifetime: true,
			Interval: plan.IntervalNone,
			Credits:  plan.CreditPolicy{Enable: true, Amount: 300},
		},
		{
			PriceID:  "price_month",
			Name:     "Pro Monthly",
			Interval: plan.IntervalMonthly,
			Credits:  plan.CreditPolicy{Enable: true, Amount: 400},
		},
	}, nil)
}

func seedUser(t *testing.T, st *memory.Store, userID string, payments ...*subscription.Record) {
	t.Helper()
	ctx := context.Background()
	if err := st.CreateAccount(ctx, account.New(userID)); err != nil {
		t.Fatal(err)
	}
	for _, r := range payments {
		if err := st.CreatePayment(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDistributeAllClassification(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	st := memory.New()
	eng := credits.New(st,
		credits.WithClock(clk.Now),
		credits.WithCatalog(distributionCatalog()),
	)

	seedUser(t, st, "u_free")
	seedUser(t, st, "u_year", subscription.New("u_year", "price_year", subscription.StatusActive))
	seedUser(t, st, "u_life", subscription.New("u_life", "price_life", subscription.StatusActive))
	seedUser(t, st, "u_month", subscription.New("u_month", "price_month", subscription.StatusActive))
	seedUser(t, st, "u_trial", subscription.New("u_trial", "price_year", subscription.StatusTrialing))
	seedUser(t, st, "u_canceled", subscription.New("u_canceled", "price_year", subscription.StatusCanceled))
	seedUser(t, st, "u_unknown", subscription.New("u_unknown", "price_gone", subscription.StatusActive))

	banned := account.New("u_banned")
	banned.Banned = true
	if err := st.CreateAccount(ctx, banned); err != nil {
		t.Fatal(err)
	}

	report, err := eng.DistributeAll(ctx)
	if err != nil {
		t.Fatalf("DistributeAll() error = %v", err)
	}

	wantBalances := map[string]int64{
		"u_free":     100, // no payment -> free plan
		"u_year":     500, // yearly -> batch refresh
		"u_life":     300, // lifetime -> batch refresh
		"u_month":    0,   // monthly-billed -> webhook path, excluded
		"u_trial":    500, // trialing qualifies
		"u_canceled": 100, // canceled payment -> free group
		"u_unknown":  0,   // unknown price -> skipped
		"u_banned":   0,   // banned -> never considered
	}
	for userID, want := range wantBalances {
		got, err := eng.Balance(ctx, userID)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("Balance(%s) = %d, want %d", userID, got, want)
		}
	}

	// Every non-banned user counts as looked at, granted or not.
	if report.UsersCount != 7 {
		t.Errorf("UsersCount = %d, want 7", report.UsersCount)
	}
	if report.ProcessedCount != 5 {
		t.Errorf("ProcessedCount = %d, want 5", report.ProcessedCount)
	}
	if report.ErrorCount != 0 {
		t.Errorf("ErrorCount = %d, want 0", report.ErrorCount)
	}
}

func TestDistributeAllOncePerCalendarMonth(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	st := memory.New()
	eng := credits.New(st,
		credits.WithClock(clk.Now),
		credits.WithCatalog(distributionCatalog()),
	)

	seedUser(t, st, "u_year", subscription.New("u_year", "price_year", subscription.StatusActive))

	first, err := eng.DistributeAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first.ProcessedCount != 1 {
		t.Fatalf("first run ProcessedCount = %d, want 1", first.ProcessedCount)
	}

	// Same month: the user is already refreshed.
	second, err := eng.DistributeAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second.ProcessedCount != 0 {
		t.Errorf("second run ProcessedCount = %d, want 0", second.ProcessedCount)
	}

	got, err := eng.Balance(ctx, "u_year")
	if err != nil {
		t.Fatal(err)
	}
	if got != 500 {
		t.Errorf("Balance() = %d, want 500 after duplicate run", got)
	}

	// Next calendar month grants again.
	clk.t = time.Date(2024, time.April, 2, 9, 0, 0, 0, time.UTC)
	third, err := eng.DistributeAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if third.ProcessedCount != 1 {
		t.Errorf("next-month run ProcessedCount = %d, want 1", third.ProcessedCount)
	}
	got, err = eng.Balance(ctx, "u_year")
	if err != nil {
		t.Fatal(err)
	}
	if got != 1000 {
		t.Errorf("Balance() = %d, want 1000 after next-month run", got)
	}
}

// failingStore fails ApplyRefreshBatch whenever the batch credits a
// designated user.
type failingStore struct {
	store.Store
	failUser string
}

var errBatchBoom = errors.New("storage unavailable")

func (f *failingStore) ApplyRefreshBatch(ctx context.Context, batch *store.RefreshBatch) error {
	for _, c := range batch.Credits {
		if c.UserID == f.failUser {
			return errBatchBoom
		}
	}
	return f.Store.ApplyRefreshBatch(ctx, batch)
}

func TestDistributeAllBatchFailureIsolation(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	mem := memory.New()
	st := &failingStore{Store: mem, failUser: "u_year_bad"}
	eng := credits.New(st,
		credits.WithClock(clk.Now),
		credits.WithCatalog(distributionCatalog()),
		credits.WithBatchSize(1),
	)

	seedUser(t, mem, "u_year_bad", subscription.New("u_year_bad", "price_year", subscription.StatusActive))
	seedUser(t, mem, "u_year_ok", subscription.New("u_year_ok", "price_year", subscription.StatusActive))
	seedUser(t, mem, "u_life", subscription.New("u_life", "price_life", subscription.StatusActive))

	report, err := eng.DistributeAll(ctx)
	if err != nil {
		t.Fatalf("DistributeAll() error = %v, want nil: batch failures never abort the run", err)
	}

	if report.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", report.ErrorCount)
	}
	if report.ProcessedCount != 2 {
		t.Errorf("ProcessedCount = %d, want 2", report.ProcessedCount)
	}

	// The healthy batches landed.
	for _, userID := range []string{"u_year_ok"} {
		got, err := eng.Balance(ctx, userID)
		if err != nil {
			t.Fatal(err)
		}
		if got != 500 {
			t.Errorf("Balance(%s) = %d, want 500", userID, got)
		}
	}
	got, err := eng.Balance(ctx, "u_life")
	if err != nil {
		t.Fatal(err)
	}
	if got != 300 {
		t.Errorf("Balance(u_life) = %d, want 300", got)
	}

	// The failed batch left nothing behind; the next run retries it.
	got, err = eng.Balance(ctx, "u_year_bad")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("Balance(u_year_bad) = %d, want 0", got)
	}
}

func TestDistributeAllBatchesBySize(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	st := memory.New()
	eng := credits.New(st,
		credits.WithClock(clk.Now),
		credits.WithCatalog(distributionCatalog()),
		credits.WithBatchSize(2),
	)

	users := []string{"u_a", "u_b", "u_c", "u_d", "u_e"}
	for _, u := range users {
		seedUser(t, st, u, subscription.New(u, "price_year", subscription.StatusActive))
	}

	report, err := eng.DistributeAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.ProcessedCount != len(users) {
		t.Errorf("ProcessedCount = %d, want %d", report.ProcessedCount, len(users))
	}
	for _, u := range users {
		got, err := eng.Balance(ctx, u)
		if err != nil {
			t.Fatal(err)
		}
		if got != 500 {
			t.Errorf("Balance(%s) = %d, want 500", u, got)
		}
	}
}

func TestDistributeAllNoFreePlanConfigured(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	st := memory.New()
	catalog := plan.NewStatic([]*plan.Plan{
		{
			PriceID:  "price_year",
			Name:     "Pro Yearly",
			Interval: plan.IntervalYearly,
			Credits:  plan.CreditPolicy{Enable: true, Amount: 500},
		},
	}, nil)
	eng := credits.New(st,
		credits.WithClock(clk.Now),
		credits.WithCatalog(catalog),
	)

	seedUser(t, st, "u_free")

	report, err := eng.DistributeAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.UsersCount != 1 {
		t.Errorf("UsersCount = %d, want 1: the user is looked at even without a free plan", report.UsersCount)
	}
	if report.ProcessedCount != 0 {
		t.Errorf("ProcessedCount = %d, want 0 without a free plan", report.ProcessedCount)
	}
}

// blockingStore parks ApplyRefreshBatch until released, holding open
// the window between a batch's balance read and its write.
type blockingStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) ApplyRefreshBatch(ctx context.Context, batch *store.RefreshBatch) error {
	close(s.entered)
	<-s.release
	return s.Store.ApplyRefreshBatch(ctx, batch)
}

func TestDistributeAllBlocksConcurrentUserWrites(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	mem := memory.New()
	st := &blockingStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	eng := credits.New(st,
		credits.WithClock(clk.Now),
		credits.WithCatalog(distributionCatalog()),
	)

	seedUser(t, mem, "u_year", subscription.New("u_year", "price_year", subscription.StatusActive))

	distDone := make(chan error, 1)
	go func() {
		_, err := eng.DistributeAll(ctx)
		distDone <- err
	}()
	<-st.entered

	// A single-user grant for a batched user must wait out the batch.
	grantDone := make(chan error, 1)
	go func() {
		grantDone <- eng.Grant(ctx, credits.GrantRequest{
			UserID: "u_year", Amount: 10, Type: entry.TypePurchasePackage,
			Description: "topup",
		})
	}()

	select {
	case err := <-grantDone:
		t.Fatalf("Grant() finished during the batch (err = %v), want it to block", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(st.release)
	if err := <-distDone; err != nil {
		t.Fatalf("DistributeAll() error = %v", err)
	}
	if err := <-grantDone; err != nil {
		t.Fatalf("Grant() error = %v", err)
	}

	got, err := eng.Balance(ctx, "u_year")
	if err != nil {
		t.Fatal(err)
	}
	if got != 510 {
		t.Errorf("Balance() = %d, want 510: the batch increment must survive the concurrent grant", got)
	}
}
