package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/subscription"
)

func earnAt(userID string, typ entry.Type, amount int64, created time.Time, expires *time.Time) *entry.Entry {
	e := entry.NewEarn(userID, typ, amount, "test")
	e.CreatedAt = created
	e.UpdatedAt = created
	e.ExpirationDate = expires
	return e
}

func TestAppendEntryUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()

	t.Run("one gift per user", func(t *testing.T) {
		first := entry.NewEarn("u1", entry.TypeRegisterGift, 50, "gift")
		if err := s.AppendEntry(ctx, first); err != nil {
			t.Fatal(err)
		}
		second := entry.NewEarn("u1", entry.TypeRegisterGift, 50, "gift")
		if err := s.AppendEntry(ctx, second); !errors.Is(err, credits.ErrAlreadyExists) {
			t.Errorf("AppendEntry() error = %v, want ErrAlreadyExists", err)
		}
		// Other users are unaffected.
		other := entry.NewEarn("u2", entry.TypeRegisterGift, 50, "gift")
		if err := s.AppendEntry(ctx, other); err != nil {
			t.Errorf("AppendEntry() for other user error = %v", err)
		}
	})

	t.Run("one purchase per payment id", func(t *testing.T) {
		first := entry.NewEarn("u1", entry.TypePurchasePackage, 100, "pack")
		first.PaymentID = "pi_1"
		if err := s.AppendEntry(ctx, first); err != nil {
			t.Fatal(err)
		}
		replay := entry.NewEarn("u1", entry.TypePurchasePackage, 100, "pack")
		replay.PaymentID = "pi_1"
		if err := s.AppendEntry(ctx, replay); !errors.Is(err, credits.ErrAlreadyExists) {
			t.Errorf("AppendEntry() error = %v, want ErrAlreadyExists", err)
		}
		// The dedupe spans users.
		crossUser := entry.NewEarn("u2", entry.TypePurchasePackage, 100, "pack")
		crossUser.PaymentID = "pi_1"
		if err := s.AppendEntry(ctx, crossUser); !errors.Is(err, credits.ErrAlreadyExists) {
			t.Errorf("AppendEntry() cross-user error = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("empty payment id never collides", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			e := entry.NewEarn("u3", entry.TypePurchasePackage, 100, "pack")
			if err := s.AppendEntry(ctx, e); err != nil {
				t.Fatalf("AppendEntry() call %d error = %v", i, err)
			}
		}
	})
}

func TestListConsumableOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	soon := now.AddDate(0, 0, 5)
	later := now.AddDate(0, 0, 20)

	// Appended out of order on purpose.
	undated := earnAt("u1", entry.TypePurchasePackage, 10, now, nil)
	late := earnAt("u1", entry.TypeMonthlyRefresh, 20, now.Add(time.Hour), &later)
	early := earnAt("u1", entry.TypeSubscriptionRenewal, 30, now.Add(2*time.Hour), &soon)
	for _, e := range []*entry.Entry{undated, late, early} {
		if err := s.AppendEntry(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListConsumableEntries(ctx, "u1", now.Add(3*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}

	wantOrder := []entry.Type{
		entry.TypeSubscriptionRenewal, // expires soonest
		entry.TypeMonthlyRefresh,      // expires later
		entry.TypePurchasePackage,     // never expires, always last
	}
	for i, want := range wantOrder {
		if got[i].Type != want {
			t.Errorf("position %d: got %s, want %s", i, got[i].Type, want)
		}
	}
}

func TestListConsumableSkipsExpiredAndDrained(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)

	past := now.AddDate(0, 0, -1)
	expired := earnAt("u1", entry.TypeMonthlyRefresh, 10, now.AddDate(0, 0, -5), &past)
	drained := earnAt("u1", entry.TypeMonthlyRefresh, 10, now, nil)
	live := earnAt("u1", entry.TypeMonthlyRefresh, 10, now, nil)
	for _, e := range []*entry.Entry{expired, drained, live} {
		if err := s.AppendEntry(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SetEntryRemaining(ctx, drained.ID, 0); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListConsumableEntries(ctx, "u1", now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != live.ID {
		t.Errorf("expected only the live entry, got %d entries", len(got))
	}
}

func TestMarkEntryExpiredZeroesRemaining(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()

	past := now.AddDate(0, 0, -1)
	e := earnAt("u1", entry.TypeMonthlyRefresh, 40, now.AddDate(0, 0, -10), &past)
	if err := s.AppendEntry(ctx, e); err != nil {
		t.Fatal(err)
	}

	if err := s.MarkEntryExpired(ctx, e.ID, now); err != nil {
		t.Fatal(err)
	}

	// Neither consumable nor expired anymore.
	consumable, err := s.ListConsumableEntries(ctx, "u1", now)
	if err != nil {
		t.Fatal(err)
	}
	if len(consumable) != 0 {
		t.Error("processed entry still listed as consumable")
	}
	expired, err := s.ListExpiredEntries(ctx, "u1", now)
	if err != nil {
		t.Fatal(err)
	}
	if len(expired) != 0 {
		t.Error("processed entry still listed as expired")
	}
}

func TestGetBalancesOmitsMissing(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.SetBalance(ctx, "u1", 100); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetBalances(ctx, []string{"u1", "u_missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got["u1"].CurrentCredits != 100 {
		t.Errorf("u1 credits = %d, want 100", got["u1"].CurrentCredits)
	}
	if _, ok := got["u_missing"]; ok {
		t.Error("missing user should be absent from the map")
	}
}

func TestApplyRefreshBatch(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2024, time.March, 1, 6, 0, 0, 0, time.UTC)

	// u1 already has a balance; u2 gets one created at the delta.
	if err := s.SetBalance(ctx, "u1", 10); err != nil {
		t.Fatal(err)
	}

	batch := &store.RefreshBatch{
		Entries: []*entry.Entry{
			earnAt("u1", entry.TypeMonthlyRefresh, 100, now, nil),
			earnAt("u2", entry.TypeMonthlyRefresh, 100, now, nil),
		},
		Credits: []store.BalanceCredit{
			{UserID: "u1", Delta: 100},
			{UserID: "u2", Delta: 100},
		},
		Now: now,
	}
	if err := s.ApplyRefreshBatch(ctx, batch); err != nil {
		t.Fatal(err)
	}

	b1, err := s.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if b1.CurrentCredits != 110 {
		t.Errorf("u1 credits = %d, want 110", b1.CurrentCredits)
	}
	if b1.LastRefreshAt == nil || !b1.LastRefreshAt.Equal(now) {
		t.Errorf("u1 last refresh = %v, want %v", b1.LastRefreshAt, now)
	}

	b2, err := s.GetBalance(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if b2.CurrentCredits != 100 {
		t.Errorf("u2 credits = %d, want 100", b2.CurrentCredits)
	}
	if b2.LastRefreshAt == nil || !b2.LastRefreshAt.Equal(now) {
		t.Errorf("u2 last refresh = %v, want %v", b2.LastRefreshAt, now)
	}
}

func TestActiveSnapshot(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, uid := range []string{"u_active", "u_none", "u_canceled"} {
		if err := s.CreateAccount(ctx, account.New(uid)); err != nil {
			t.Fatal(err)
		}
	}
	banned := account.New("u_banned")
	banned.Banned = true
	if err := s.CreateAccount(ctx, banned); err != nil {
		t.Fatal(err)
	}

	// u_active: an old canceled record and a newer active one.
	old := subscription.New("u_active", "price_old", subscription.StatusCanceled)
	old.CreatedAt = old.CreatedAt.Add(-time.Hour)
	current := subscription.New("u_active", "price_new", subscription.StatusActive)
	canceled := subscription.New("u_canceled", "price_x", subscription.StatusCanceled)
	for _, r := range []*subscription.Record{old, current, canceled} {
		if err := s.CreatePayment(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	snaps, err := s.ActiveSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}

	byUser := make(map[string]subscription.Snapshot, len(snaps))
	for _, sn := range snaps {
		byUser[sn.UserID] = sn
	}

	if _, ok := byUser["u_banned"]; ok {
		t.Error("banned user present in snapshot")
	}
	if sn := byUser["u_active"]; sn.Latest == nil || sn.Latest.PriceID != "price_new" {
		t.Errorf("u_active latest = %+v, want price_new", sn.Latest)
	}
	if sn := byUser["u_none"]; sn.Latest != nil {
		t.Errorf("u_none latest = %+v, want nil", sn.Latest)
	}
	if sn := byUser["u_canceled"]; sn.Latest != nil {
		t.Errorf("u_canceled latest = %+v, want nil: canceled never qualifies", sn.Latest)
	}
}

func TestAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateAccount(ctx, account.New("u1")); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateAccount(ctx, account.New("u1")); !errors.Is(err, credits.ErrAlreadyExists) {
		t.Errorf("duplicate CreateAccount() error = %v, want ErrAlreadyExists", err)
	}

	if err := s.SetAccountBanned(ctx, "u1", true); err != nil {
		t.Fatal(err)
	}
	a, err := s.GetAccount(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Banned {
		t.Error("account not banned after SetAccountBanned")
	}

	if _, err := s.GetAccount(ctx, "u_missing"); !errors.Is(err, credits.ErrAccountNotFound) {
		t.Errorf("GetAccount(missing) error = %v, want ErrAccountNotFound", err)
	}
}
