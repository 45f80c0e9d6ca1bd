package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/plan"
)

// Typed grant paths. Each one resolves policy from the plan catalog or
// engine configuration, applies its own eligibility rule, and then
// issues a plain Grant. Unknown or credit-disabled plans are
// configuration gaps: they log and no-op rather than fail the caller.

// GrantRegisterGift issues the one-time signup gift. Requires
// WithRegisterGift; without it the call is a no-op. A user who already
// received the gift is skipped silently, so signup webhooks can retry.
func (e *Engine) GrantRegisterGift(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidParams
	}
	if !e.registerGift.Enable || e.registerGift.Amount <= 0 {
		e.logger.Debug("register gift disabled, skipping", "user_id", userID)
		return nil
	}

	gifted, err := e.store.HasEntryOfType(ctx, userID, entry.TypeRegisterGift)
	if err != nil {
		return err
	}
	if gifted {
		return nil
	}

	err = e.Grant(ctx, GrantRequest{
		UserID:      userID,
		Amount:      e.registerGift.Amount,
		Type:        entry.TypeRegisterGift,
		Description: "signup gift",
		ExpireDays:  e.registerGift.ExpireDays,
	})
	if errors.Is(err, ErrAlreadyExists) {
		// Lost a race with a concurrent signup retry.
		return nil
	}
	return err
}

// GrantMonthlyFree issues the free plan's monthly credits. The plan
// must be a free plan with credits enabled and not disabled; eligible
// at most once per calendar month.
func (e *Engine) GrantMonthlyFree(ctx context.Context, userID, priceID string) error {
	if userID == "" || priceID == "" {
		return ErrInvalidParams
	}
	p, ok := e.resolvePlan(userID, priceID)
	if !ok {
		return nil
	}
	if !p.Free || p.Disabled {
		e.logger.Warn("monthly free grant on non-free or disabled plan, skipping",
			"user_id", userID,
			"price_id", priceID,
		)
		return nil
	}

	return e.grantMonthly(ctx, userID, entry.TypeMonthlyRefresh, p,
		fmt.Sprintf("monthly credits (%s)", p.Name))
}

// GrantSubscriptionRenewal issues renewal credits for a monthly-billed
// subscription, typically from a payment webhook. Disabled plans still
// grant: existing subscribers keep their credits even when the plan is
// hidden from new signups. Eligible at most once per calendar month.
func (e *Engine) GrantSubscriptionRenewal(ctx context.Context, userID, priceID string) error {
	if userID == "" || priceID == "" {
		return ErrInvalidParams
	}
	p, ok := e.resolvePlan(userID, priceID)
	if !ok {
		return nil
	}

	return e.grantMonthly(ctx, userID, entry.TypeSubscriptionRenewal, p,
		fmt.Sprintf("subscription renewal (%s)", p.Name))
}

// GrantLifetimeMonthly issues the monthly credits of a lifetime plan.
// Disabled lifetime plans stop granting. Eligible at most once per
// calendar month.
func (e *Engine) GrantLifetimeMonthly(ctx context.Context, userID, priceID string) error {
	if userID == "" || priceID == "" {
		return ErrInvalidParams
	}
	p, ok := e.resolvePlan(userID, priceID)
	if !ok {
		return nil
	}
	if !p.Lifetime || p.Disabled {
		e.logger.Warn("lifetime grant on non-lifetime or disabled plan, skipping",
			"user_id", userID,
			"price_id", priceID,
		)
		return nil
	}

	return e.grantMonthly(ctx, userID, entry.TypeLifetimeMonthly, p,
		fmt.Sprintf("lifetime monthly credits (%s)", p.Name))
}

// GrantPurchase issues the credits of a one-time package purchase. The
// payment id is the dedupe key: a replayed webhook for an already
// processed payment is a silent no-op.
func (e *Engine) GrantPurchase(ctx context.Context, userID, packageID, paymentID string) error {
	if userID == "" || paymentID == "" {
		return ErrInvalidParams
	}

	pkg, ok := e.catalog.ResolvePackage(packageID)
	if !ok {
		e.logger.Warn("unknown credit package, skipping grant",
			"user_id", userID,
			"package_id", packageID,
		)
		return nil
	}

	err := e.Grant(ctx, GrantRequest{
		UserID:      userID,
		Amount:      pkg.Credits,
		Type:        entry.TypePurchasePackage,
		Description: fmt.Sprintf("package purchase (%s)", pkg.Name),
		PaymentID:   paymentID,
		ExpireDays:  pkg.ExpireDays,
	})
	if errors.Is(err, ErrAlreadyExists) {
		e.logger.Debug("purchase already processed, skipping",
			"user_id", userID,
			"payment_id", paymentID,
		)
		return nil
	}
	return err
}

// grantMonthly applies the shared monthly gate: at most one
// monthly-type grant per user per calendar month, stamped on the
// balance row after a successful grant.
func (e *Engine) grantMonthly(ctx context.Context, userID string, typ entry.Type, p *plan.Plan, description string) error {
	eligible, err := e.CanGrantMonthly(ctx, userID)
	if err != nil {
		return err
	}
	if !eligible {
		return nil
	}

	if err := e.Grant(ctx, GrantRequest{
		UserID:      userID,
		Amount:      p.Credits.Amount,
		Type:        typ,
		Description: description,
		ExpireDays:  p.Credits.ExpireDays,
	}); err != nil {
		return err
	}

	return e.store.SetLastRefresh(ctx, userID, e.now().UTC())
}

// resolvePlan looks the plan up and checks its credit policy. A miss
// or a plan without credits is logged and reported as not-ok.
func (e *Engine) resolvePlan(userID, priceID string) (*plan.Plan, bool) {
	p, ok := e.catalog.ResolvePlan(priceID)
	if !ok {
		e.logger.Warn("plan not in catalog, skipping grant",
			"user_id", userID,
			"price_id", priceID,
		)
		return nil, false
	}
	if !p.GrantsCredits() {
		e.logger.Debug("plan grants no credits, skipping",
			"user_id", userID,
			"price_id", priceID,
		)
		return nil, false
	}
	return p, true
}
