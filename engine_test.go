package credits_test

import (
	"context"
	"errors"
	"testing"
	"time"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/store/memory"
)

// fakeClock is a movable clock for calendar-sensitive tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func (c *fakeClock) AdvanceDays(days int) { c.t = c.t.AddDate(0, 0, days) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)}
}

func TestGrantAndBalance(t *testing.T) {
	ctx := context.Background()
	eng := credits.New(memory.New())

	if err := eng.Grant(ctx, credits.GrantRequest{
		UserID:      "user_1",
		Amount:      100,
		Type:        entry.TypeSubscriptionRenewal,
		Description: "renewal",
	}); err != nil {
		t.Fatalf("Grant() error = %v", err)
	}

	got, err := eng.Balance(ctx, "user_1")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if got != 100 {
		t.Errorf("Balance() = %d, want 100", got)
	}

	// Users without a balance row have zero credits.
	got, err = eng.Balance(ctx, "user_unknown")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if got != 0 {
		t.Errorf("Balance(unknown) = %d, want 0", got)
	}
}

func TestGrantValidation(t *testing.T) {
	ctx := context.Background()
	eng := credits.New(memory.New())

	tests := []struct {
		name    string
		req     credits.GrantRequest
		wantErr error
	}{
		{
			name:    "empty user",
			req:     credits.GrantRequest{Amount: 10, Type: entry.TypeMonthlyRefresh, Description: "x"},
			wantErr: credits.ErrInvalidParams,
		},
		{
			name:    "empty description",
			req:     credits.GrantRequest{UserID: "u", Amount: 10, Type: entry.TypeMonthlyRefresh},
			wantErr: credits.ErrInvalidParams,
		},
		{
			name:    "zero amount",
			req:     credits.GrantRequest{UserID: "u", Amount: 0, Type: entry.TypeMonthlyRefresh, Description: "x"},
			wantErr: credits.ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			req:     credits.GrantRequest{UserID: "u", Amount: -5, Type: entry.TypeMonthlyRefresh, Description: "x"},
			wantErr: credits.ErrInvalidAmount,
		},
		{
			name:    "negative expire days",
			req:     credits.GrantRequest{UserID: "u", Amount: 10, Type: entry.TypeMonthlyRefresh, Description: "x", ExpireDays: -1},
			wantErr: credits.ErrInvalidAmount,
		},
		{
			name:    "debit type",
			req:     credits.GrantRequest{UserID: "u", Amount: 10, Type: entry.TypeUsage, Description: "x"},
			wantErr: credits.ErrInvalidParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := eng.Grant(ctx, tt.req); !errors.Is(err, tt.wantErr) {
				t.Errorf("Grant() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConsumeSpendsExpiringFirst(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	eng := credits.New(memory.New(), credits.WithClock(clk.Now))

	// Grant A expires in 10 days, grant B never expires. B is created
	// later but must be consumed last regardless.
	if err := eng.Grant(ctx, credits.GrantRequest{
		UserID: "user_1", Amount: 100, Type: entry.TypeSubscriptionRenewal,
		Description: "renewal", ExpireDays: 10,
	}); err != nil {
		t.Fatal(err)
	}
	if err := eng.Grant(ctx, credits.GrantRequest{
		UserID: "user_1", Amount: 50, Type: entry.TypePurchasePackage,
		Description: "package", PaymentID: "pi_1",
	}); err != nil {
		t.Fatal(err)
	}

	if err := eng.Consume(ctx, "user_1", 120, "bulk job"); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	got, err := eng.Balance(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if got != 30 {
		t.Errorf("Balance() = %d, want 30", got)
	}

	// The expiring grant must be fully drained, the undated one down
	// to 30.
	all, err := eng.Entries(ctx, "user_1", entry.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range all {
		switch e.Type {
		case entry.TypeSubscriptionRenewal:
			if e.RemainingValue() != 0 {
				t.Errorf("expiring grant remaining = %d, want 0", e.RemainingValue())
			}
		case entry.TypePurchasePackage:
			if e.RemainingValue() != 30 {
				t.Errorf("undated grant remaining = %d, want 30", e.RemainingValue())
			}
		}
	}

	// Conservation: the signed entry amounts sum to the balance.
	var sum int64
	for _, e := range all {
		sum += e.Amount
	}
	if sum != got {
		t.Errorf("entry sum = %d, balance = %d, want equal", sum, got)
	}
}

func TestConsumeInsufficientLeavesNoWrites(t *testing.T) {
	ctx := context.Background()
	eng := credits.New(memory.New())

	if err := eng.Grant(ctx, credits.GrantRequest{
		UserID: "user_1", Amount: 50, Type: entry.TypeMonthlyRefresh,
		Description: "monthly",
	}); err != nil {
		t.Fatal(err)
	}

	err := eng.Consume(ctx, "user_1", 60, "too much")
	if !errors.Is(err, credits.ErrInsufficientCredits) {
		t.Fatalf("Consume() error = %v, want ErrInsufficientCredits", err)
	}

	got, err := eng.Balance(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if got != 50 {
		t.Errorf("Balance() after rejection = %d, want 50", got)
	}

	all, err := eng.Entries(ctx, "user_1", entry.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("entry count after rejection = %d, want 1", len(all))
	}
}

func TestConsumeValidation(t *testing.T) {
	ctx := context.Background()
	eng := credits.New(memory.New())

	if err := eng.Consume(ctx, "", 10, "x"); !errors.Is(err, credits.ErrInvalidParams) {
		t.Errorf("Consume(empty user) error = %v, want ErrInvalidParams", err)
	}
	if err := eng.Consume(ctx, "u", 0, "x"); !errors.Is(err, credits.ErrInvalidAmount) {
		t.Errorf("Consume(zero) error = %v, want ErrInvalidAmount", err)
	}
	if err := eng.Consume(ctx, "u", -3, "x"); !errors.Is(err, credits.ErrInvalidAmount) {
		t.Errorf("Consume(negative) error = %v, want ErrInvalidAmount", err)
	}
	if err := eng.Consume(ctx, "u", 10, ""); !errors.Is(err, credits.ErrInvalidParams) {
		t.Errorf("Consume(empty description) error = %v, want ErrInvalidParams", err)
	}
}

func TestSweepReclaimsExpired(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	eng := credits.New(memory.New(), credits.WithClock(clk.Now))

	if err := eng.Grant(ctx, credits.GrantRequest{
		UserID: "user_1", Amount: 100, Type: entry.TypeMonthlyRefresh,
		Description: "monthly", ExpireDays: 5,
	}); err != nil {
		t.Fatal(err)
	}
	if err := eng.Consume(ctx, "user_1", 40, "job"); err != nil {
		t.Fatal(err)
	}

	clk.AdvanceDays(6)

	reclaimed, err := eng.Sweep(ctx, "user_1")
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if reclaimed != 60 {
		t.Errorf("Sweep() reclaimed = %d, want 60", reclaimed)
	}

	got, err := eng.Balance(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("Balance() after sweep = %d, want 0", got)
	}

	// Exactly one expire entry for the reclaimed total.
	expires, err := eng.Entries(ctx, "user_1", entry.ListOpts{Type: entry.TypeExpire})
	if err != nil {
		t.Fatal(err)
	}
	if len(expires) != 1 {
		t.Fatalf("expire entry count = %d, want 1", len(expires))
	}
	if expires[0].Amount != -60 {
		t.Errorf("expire entry amount = %d, want -60", expires[0].Amount)
	}
}

func TestSweepIdempotent(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	eng := credits.New(memory.New(), credits.WithClock(clk.Now))

	if err := eng.Grant(ctx, credits.GrantRequest{
		UserID: "user_1", Amount: 100, Type: entry.TypeMonthlyRefresh,
		Description: "monthly", ExpireDays: 5,
	}); err != nil {
		t.Fatal(err)
	}

	clk.AdvanceDays(6)

	if _, err := eng.Sweep(ctx, "user_1"); err != nil {
		t.Fatal(err)
	}
	before, err := eng.Entries(ctx, "user_1", entry.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}

	reclaimed, err := eng.Sweep(ctx, "user_1")
	if err != nil {
		t.Fatalf("second Sweep() error = %v", err)
	}
	if reclaimed != 0 {
		t.Errorf("second Sweep() reclaimed = %d, want 0", reclaimed)
	}

	after, err := eng.Entries(ctx, "user_1", entry.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before) {
		t.Errorf("second sweep wrote entries: %d -> %d", len(before), len(after))
	}
}

func TestSweepClampsBalanceAtZero(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	st := memory.New()
	eng := credits.New(st, credits.WithClock(clk.Now))

	if err := eng.Grant(ctx, credits.GrantRequest{
		UserID: "user_1", Amount: 100, Type: entry.TypeMonthlyRefresh,
		Description: "monthly", ExpireDays: 5,
	}); err != nil {
		t.Fatal(err)
	}

	// Force balance drift below the expiring remainder.
	if err := st.SetBalance(ctx, "user_1", 40); err != nil {
		t.Fatal(err)
	}

	clk.AdvanceDays(6)

	reclaimed, err := eng.Sweep(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if reclaimed != 100 {
		t.Errorf("Sweep() reclaimed = %d, want 100", reclaimed)
	}

	got, err := eng.Balance(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("Balance() = %d, want 0 (clamped, never negative)", got)
	}
}

func TestConsumeSweepsBeforeChecking(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	eng := credits.New(memory.New(), credits.WithClock(clk.Now))

	if err := eng.Grant(ctx, credits.GrantRequest{
		UserID: "user_1", Amount: 100, Type: entry.TypeMonthlyRefresh,
		Description: "monthly", ExpireDays: 5,
	}); err != nil {
		t.Fatal(err)
	}

	clk.AdvanceDays(6)

	// The whole grant expired; even a small consume must be rejected.
	err := eng.Consume(ctx, "user_1", 10, "late job")
	if !errors.Is(err, credits.ErrInsufficientCredits) {
		t.Fatalf("Consume() error = %v, want ErrInsufficientCredits", err)
	}
}

func TestRegisterGiftOncePerUser(t *testing.T) {
	ctx := context.Background()
	eng := credits.New(memory.New(),
		credits.WithRegisterGift(plan.CreditPolicy{Enable: true, Amount: 25}),
	)

	for i := 0; i < 3; i++ {
		if err := eng.GrantRegisterGift(ctx, "user_1"); err != nil {
			t.Fatalf("GrantRegisterGift() call %d error = %v", i, err)
		}
	}

	got, err := eng.Balance(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if got != 25 {
		t.Errorf("Balance() = %d, want 25", got)
	}

	gifts, err := eng.Entries(ctx, "user_1", entry.ListOpts{Type: entry.TypeRegisterGift})
	if err != nil {
		t.Fatal(err)
	}
	if len(gifts) != 1 {
		t.Errorf("gift entry count = %d, want 1", len(gifts))
	}
}

func TestRegisterGiftDisabledByDefault(t *testing.T) {
	ctx := context.Background()
	eng := credits.New(memory.New())

	if err := eng.GrantRegisterGift(ctx, "user_1"); err != nil {
		t.Fatalf("GrantRegisterGift() error = %v", err)
	}
	got, err := eng.Balance(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("Balance() = %d, want 0 when gift not configured", got)
	}
}

func TestGrantPurchaseDedupes(t *testing.T) {
	ctx := context.Background()
	catalog := plan.NewStatic(nil, []*plan.Package{
		{ID: "pkg_small", Name: "Starter Pack", Credits: 500},
	})
	eng := credits.New(memory.New(), credits.WithCatalog(catalog))

	// A replayed webhook retries with the same payment id.
	for i := 0; i < 2; i++ {
		if err := eng.GrantPurchase(ctx, "user_1", "pkg_small", "pi_123"); err != nil {
			t.Fatalf("GrantPurchase() call %d error = %v", i, err)
		}
	}

	got, err := eng.Balance(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if got != 500 {
		t.Errorf("Balance() = %d, want 500", got)
	}
}

func TestGrantPurchaseUnknownPackage(t *testing.T) {
	ctx := context.Background()
	eng := credits.New(memory.New())

	// Unknown packages are a configuration gap: logged, never an error.
	if err := eng.GrantPurchase(ctx, "user_1", "pkg_nope", "pi_1"); err != nil {
		t.Fatalf("GrantPurchase() error = %v", err)
	}
	got, err := eng.Balance(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("Balance() = %d, want 0", got)
	}
}

func TestCanGrantMonthly(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	catalog := plan.NewStatic([]*plan.Plan{
		{
			PriceID:  "price_free",
			Name:     "Free",
			Free:     true,
			Interval: plan.IntervalNone,
			Credits:  plan.CreditPolicy{Enable: true, Amount: 100},
		},
	}, nil)
	eng := credits.New(memory.New(),
		credits.WithClock(clk.Now),
		credits.WithCatalog(catalog),
	)

	ok, err := eng.CanGrantMonthly(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("fresh user should be eligible")
	}

	if err := eng.GrantMonthlyFree(ctx, "user_1", "price_free"); err != nil {
		t.Fatal(err)
	}

	ok, err = eng.CanGrantMonthly(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("user refreshed this month should not be eligible")
	}

	// A second grant the same month is a no-op.
	if err := eng.GrantMonthlyFree(ctx, "user_1", "price_free"); err != nil {
		t.Fatal(err)
	}
	got, err := eng.Balance(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if got != 100 {
		t.Errorf("Balance() = %d, want 100 after duplicate monthly grant", got)
	}

	// Next calendar month flips eligibility, even one day in.
	clk.t = time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	ok, err = eng.CanGrantMonthly(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("user should be eligible again next calendar month")
	}
}

func TestGrantSubscriptionRenewalDisabledPlanStillGrants(t *testing.T) {
	ctx := context.Background()
	catalog := plan.NewStatic([]*plan.Plan{
		{
			PriceID:  "price_legacy",
			Name:     "Legacy Pro",
			Disabled: true,
			Interval: plan.IntervalMonthly,
			Credits:  plan.CreditPolicy{Enable: true, Amount: 200},
		},
	}, nil)
	eng := credits.New(memory.New(), credits.WithCatalog(catalog))

	if err := eng.GrantSubscriptionRenewal(ctx, "user_1", "price_legacy"); err != nil {
		t.Fatal(err)
	}
	got, err := eng.Balance(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if got != 200 {
		t.Errorf("Balance() = %d, want 200: existing subscribers keep disabled-plan credits", got)
	}
}

func TestGrantLifetimeMonthlyRequiresLifetimePlan(t *testing.T) {
	ctx := context.Background()
	catalog := plan.NewStatic([]*plan.Plan{
		{
			PriceID:  "price_pro",
			Name:     "Pro",
			Interval: plan.IntervalMonthly,
			Credits:  plan.CreditPolicy{Enable: true, Amount: 300},
		},
	}, nil)
	eng := credits.New(memory.New(), credits.WithCatalog(catalog))

	if err := eng.GrantLifetimeMonthly(ctx, "user_1", "price_pro"); err != nil {
		t.Fatal(err)
	}
	got, err := eng.Balance(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("Balance() = %d, want 0: non-lifetime plan must not grant", got)
	}
}

func TestGrantLifetimeMonthlyDisabledPlanSkips(t *testing.T) {
	ctx := context.Background()
	catalog := plan.NewStatic([]*plan.Plan{
		{
			PriceID:  "price_life_old",
			Name:     "Lifetime Legacy",
			Lifetime: true,
			Disabled: true,
			Interval: plan.IntervalNone,
			Credits:  plan.CreditPolicy{Enable: true, Amount: 300},
		},
	}, nil)
	eng := credits.New(memory.New(), credits.WithCatalog(catalog))

	if err := eng.GrantLifetimeMonthly(ctx, "user_1", "price_life_old"); err != nil {
		t.Fatalf("GrantLifetimeMonthly() error = %v", err)
	}
	got, err := eng.Balance(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("Balance() = %d, want 0: disabled lifetime plan must not grant", got)
	}
}

func TestGrantExpirationDate(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	eng := credits.New(memory.New(), credits.WithClock(clk.Now))

	if err := eng.Grant(ctx, credits.GrantRequest{
		UserID: "user_1", Amount: 50, Type: entry.TypeMonthlyRefresh,
		Description: "monthly", ExpireDays: 30,
	}); err != nil {
		t.Fatal(err)
	}

	all, err := eng.Entries(ctx, "user_1", entry.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("entry count = %d, want 1", len(all))
	}
	e := all[0]
	if e.ExpirationDate == nil {
		t.Fatal("expiration date not set")
	}
	want := clk.Now().UTC().AddDate(0, 0, 30)
	if !e.ExpirationDate.Equal(want) {
		t.Errorf("expiration = %v, want %v", e.ExpirationDate, want)
	}
}
