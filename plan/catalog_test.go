package plan

import (
	"testing"

	"github.com/xraph/credits/types"
)

func testCatalog() *Static {
	return NewStatic(
		[]*Plan{
			{PriceID: "price_free", Name: "Free", Free: true, Interval: IntervalNone,
				Credits: CreditPolicy{Enable: true, Amount: 50}},
			{PriceID: "price_pro_month", Name: "Pro Monthly", Interval: IntervalMonthly,
				Price: types.USD(1900), Credits: CreditPolicy{Enable: true, Amount: 500, ExpireDays: 30}},
			{PriceID: "price_pro_year", Name: "Pro Yearly", Interval: IntervalYearly,
				Price: types.USD(19000), Credits: CreditPolicy{Enable: true, Amount: 500, ExpireDays: 30}},
			{PriceID: "price_lifetime", Name: "Lifetime", Lifetime: true, Interval: IntervalNone,
				Price: types.USD(49900), Credits: CreditPolicy{Enable: true, Amount: 1000, ExpireDays: 30}},
			{PriceID: "price_legacy", Name: "Legacy", Disabled: true, Interval: IntervalMonthly,
				Price: types.USD(900), Credits: CreditPolicy{Enable: false}},
		},
		[]*Package{
			{ID: "pkg_small", Name: "Small Pack", Price: types.USD(500), Credits: 100},
			{ID: "pkg_big", Name: "Big Pack", Price: types.USD(2000), Credits: 500, ExpireDays: 365},
		},
	)
}

func TestResolvePlan(t *testing.T) {
	c := testCatalog()

	p, ok := c.ResolvePlan("price_pro_year")
	if !ok {
		t.Fatal("Expected price_pro_year to resolve")
	}
	if p.Interval != IntervalYearly || p.Credits.Amount != 500 {
		t.Errorf("Unexpected plan: %+v", p)
	}

	if _, ok := c.ResolvePlan("price_unknown"); ok {
		t.Error("Expected unknown price to not resolve")
	}
}

func TestResolvePackage(t *testing.T) {
	c := testCatalog()

	pkg, ok := c.ResolvePackage("pkg_big")
	if !ok {
		t.Fatal("Expected pkg_big to resolve")
	}
	if pkg.Credits != 500 || pkg.ExpireDays != 365 {
		t.Errorf("Unexpected package: %+v", pkg)
	}

	if _, ok := c.ResolvePackage("pkg_unknown"); ok {
		t.Error("Expected unknown package to not resolve")
	}
}

func TestGrantsCredits(t *testing.T) {
	tests := []struct {
		name string
		plan *Plan
		want bool
	}{
		{"nil plan", nil, false},
		{"enabled with amount", &Plan{Credits: CreditPolicy{Enable: true, Amount: 100}}, true},
		{"disabled policy", &Plan{Credits: CreditPolicy{Enable: false, Amount: 100}}, false},
		{"zero amount", &Plan{Credits: CreditPolicy{Enable: true, Amount: 0}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.plan.GrantsCredits(); got != tt.want {
				t.Errorf("GrantsCredits: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFreePlan(t *testing.T) {
	c := testCatalog()

	p, ok := c.FreePlan()
	if !ok {
		t.Fatal("Expected a free plan")
	}
	if p.PriceID != "price_free" {
		t.Errorf("FreePlan: got %s, want price_free", p.PriceID)
	}

	// No free plan configured.
	if _, ok := NewStatic(nil, nil).FreePlan(); ok {
		t.Error("Expected no free plan in empty catalog")
	}

	// A disabled free plan does not count.
	disabled := NewStatic([]*Plan{
		{PriceID: "price_free", Free: true, Disabled: true,
			Credits: CreditPolicy{Enable: true, Amount: 50}},
	}, nil)
	if _, ok := disabled.FreePlan(); ok {
		t.Error("Expected a disabled free plan to not resolve")
	}
}

func TestStaticOverwrite(t *testing.T) {
	c := NewStatic([]*Plan{
		{PriceID: "price_x", Name: "Old"},
		{PriceID: "price_x", Name: "New"},
	}, nil)

	p, ok := c.ResolvePlan("price_x")
	if !ok || p.Name != "New" {
		t.Errorf("Expected later entry to win, got %+v", p)
	}
}
