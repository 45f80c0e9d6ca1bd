// Package credits provides an embeddable credit accounting engine for Go applications.
//
// Credits is designed as a library, not a service. Import it directly into your Go
// application and wire it to your payment webhooks and schedulers. It provides:
//
//   - An append-mostly credit ledger with per-grant expiration
//   - Oldest-expiring-first consumption across a user's grants
//   - Lazy expiration sweeping with a clamped, audited balance
//   - Monthly batch distribution for free, yearly, and lifetime plans
//   - Idempotent grant paths for signup gifts and one-time purchases
//   - Pluggable storage (memory, SQLite, Postgres, MongoDB via grove)
//   - Lifecycle hooks for metrics, audit trails, and alerting
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/credits"
//	    "github.com/xraph/credits/store/postgres"
//	)
//
//	// Initialize store around a grove.DB opened with the pg driver
//	store := postgres.New(db)
//
//	// Create engine
//	eng := credits.New(store, credits.WithCatalog(catalog))
//
//	// Start the engine (migrates the store, begins background workers)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Plans are configuration, supplied through a read-only catalog. Each plan
// states whether and how it grants credits:
//
//	catalog := plan.NewStatic([]*plan.Plan{
//	    {
//	        PriceID:  "price_free",
//	        Name:     "Free",
//	        Free:     true,
//	        Interval: plan.IntervalNone,
//	        Credits:  plan.CreditPolicy{Enable: true, Amount: 100, ExpireDays: 30},
//	    },
//	}, nil)
//
// Grants append earn entries and raise the balance:
//
//	err := eng.GrantSubscriptionRenewal(ctx, userID, priceID)
//
// Consumption draws credits down across grants, spending the
// soonest-expiring credits first:
//
//	if err := eng.Consume(ctx, userID, 25, "image generation"); err != nil {
//	    if credits.IsInsufficientCredits(err) {
//	        // Prompt the user to upgrade or buy a package
//	    }
//	}
//
// Monthly distribution refreshes every eligible user in one pass,
// typically from a scheduler:
//
//	report, err := eng.DistributeAll(ctx)
//
// # Accounting Model
//
// Every credit movement is a ledger entry. Earn entries (gifts, renewals,
// purchases) carry a remaining amount that consumption draws down and
// expiration reclaims; usage and expire entries record deductions and never
// change after creation. The balance row is the authoritative spendable
// total, clamped at zero, and each user receives at most one monthly-type
// grant per calendar month.
//
// # Integration
//
// Credits integrates with the Forgery ecosystem:
//
//   - Forge: application lifecycle via the extension package
//   - grove: storage drivers for SQLite, Postgres, and MongoDB
//   - go-utils style MetricFactory: production metrics via observability
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	cent_01h2xcejqtf2nbrexx3vqjhp41  // Ledger entry ID
//	bal_01h2xcejqtf2nbrexx3vqjhp41   // Balance row ID
//	pay_01h455vb4pex5vsknk084sn02q   // Payment record ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package credits
