package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/hook"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/types"
)

// Distribution group names.
const (
	groupFree     = "free"
	groupLifetime = "lifetime"
	groupYearly   = "yearly"
)

// DistributionReport summarizes one DistributeAll run.
type DistributionReport struct {
	// UsersCount is how many non-banned users the run looked at,
	// including users whose plan made them ineligible for a grant.
	UsersCount int `json:"users_count"`
	// ProcessedCount is how many users were actually granted credits.
	ProcessedCount int `json:"processed_count"`
	// ErrorCount is how many users sat in batches that failed. Their
	// grants were not applied; the next run retries them.
	ErrorCount int `json:"error_count"`
}

// distributionGroup is one homogeneous slice of a run: users on the
// same plan receiving the same grant.
type distributionGroup struct {
	name      string
	plan      *plan.Plan
	entryType entry.Type
	userIDs   []string
}

// DistributeAll runs one monthly distribution pass over every
// non-banned user: classifies each user by their latest qualifying
// payment, groups them per plan, and applies fixed-size refresh
// batches. A failed batch is logged and counted but never stops the
// run; monthly-billed subscribers are excluded because their webhook
// renewal path grants in real time.
func (e *Engine) DistributeAll(ctx context.Context) (*DistributionReport, error) {
	start := e.now()
	now := start.UTC()

	snapshots, err := e.source.ActiveSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load payment snapshot: %w", err)
	}

	groups := e.classifyAll(snapshots)

	report := &DistributionReport{UsersCount: len(snapshots)}

	for _, g := range groups {
		processed, failed := e.distributeGroup(ctx, g, now)
		report.ProcessedCount += processed
		report.ErrorCount += failed
	}

	elapsed := time.Since(start)
	e.hooks.EmitDistributed(ctx, hook.DistributionEvent{
		UsersCount:     report.UsersCount,
		ProcessedCount: report.ProcessedCount,
		ErrorCount:     report.ErrorCount,
		Elapsed:        elapsed,
	})

	e.logger.Info("distribution run complete",
		"users", report.UsersCount,
		"processed", report.ProcessedCount,
		"errors", report.ErrorCount,
		"elapsed_ms", elapsed.Milliseconds(),
	)

	return report, nil
}

// classifyAll sorts snapshot users into distribution groups. Users
// without a qualifying payment fall into the free group when a free
// credit-granting plan is configured; paid users group per price id.
func (e *Engine) classifyAll(snapshots []subscription.Snapshot) []*distributionGroup {
	freePlan, hasFree := e.catalog.FreePlan()

	var ordered []*distributionGroup
	byKey := make(map[string]*distributionGroup)

	add := func(name string, p *plan.Plan, typ entry.Type, userID string) {
		key := name + "/" + p.PriceID
		g, ok := byKey[key]
		if !ok {
			g = &distributionGroup{name: name, plan: p, entryType: typ}
			byKey[key] = g
			ordered = append(ordered, g)
		}
		g.userIDs = append(g.userIDs, userID)
	}

	for _, snap := range snapshots {
		if snap.Latest == nil {
			if hasFree {
				add(groupFree, freePlan, entry.TypeMonthlyRefresh, snap.UserID)
			}
			continue
		}

		name, p, typ := e.classifyPaid(snap.Latest.PriceID)
		if p == nil {
			continue
		}
		add(name, p, typ, snap.UserID)
	}

	return ordered
}

// classifyPaid maps a paid user's price id to a distribution group.
// Returns a nil plan for users distribution must skip.
func (e *Engine) classifyPaid(priceID string) (string, *plan.Plan, entry.Type) {
	p, ok := e.catalog.ResolvePlan(priceID)
	if !ok {
		e.logger.Warn("payment references unknown plan, skipping user group",
			"price_id", priceID,
		)
		return "", nil, ""
	}
	if !p.GrantsCredits() {
		return "", nil, ""
	}

	switch {
	case p.Lifetime:
		return groupLifetime, p, entry.TypeLifetimeMonthly
	case p.Interval == plan.IntervalYearly:
		return groupYearly, p, entry.TypeSubscriptionRenewal
	default:
		// Monthly-billed plans refresh through the renewal webhook.
		return "", nil, ""
	}
}

// distributeGroup applies one group's grants in fixed-size batches.
// Each batch holds the stripe locks of its users, so a concurrent
// single-user write cannot slot between the batch's balance read and
// its write. Returns how many users were granted and how many sat in
// failed batches.
func (e *Engine) distributeGroup(ctx context.Context, g *distributionGroup, now time.Time) (processed, failed int) {
	for i := 0; i < len(g.userIDs); i += e.batchSize {
		chunk := g.userIDs[i:min(i+e.batchSize, len(g.userIDs))]

		unlock := e.lockUsers(chunk)
		n, err := e.applyBatch(ctx, g, chunk, now)
		unlock()
		if err != nil {
			e.logger.Error("distribution batch failed",
				"group", g.name,
				"price_id", g.plan.PriceID,
				"users", len(chunk),
				"error", err,
			)
			e.hooks.EmitBatchFailed(ctx, hook.BatchErrorEvent{
				Group:     g.name,
				PriceID:   g.plan.PriceID,
				UserCount: len(chunk),
				Err:       err,
			})
			failed += len(chunk)
			continue
		}
		processed += n
	}
	return processed, failed
}

// applyBatch grants one batch: filters out users already refreshed
// this month, then hands the store one atomic refresh batch. Returns
// how many users were granted.
func (e *Engine) applyBatch(ctx context.Context, g *distributionGroup, userIDs []string, now time.Time) (int, error) {
	balances, err := e.store.GetBalances(ctx, userIDs)
	if err != nil {
		return 0, fmt.Errorf("load balances: %w", err)
	}

	var eligible []string
	for _, userID := range userIDs {
		if balances[userID].RefreshedIn(now) {
			continue
		}
		eligible = append(eligible, userID)
	}
	if len(eligible) == 0 {
		return 0, nil
	}

	// One expiration and one timestamp for the whole batch.
	var expiration *time.Time
	if g.plan.Credits.ExpireDays > 0 {
		exp := now.AddDate(0, 0, g.plan.Credits.ExpireDays)
		expiration = &exp
	}
	description := fmt.Sprintf("monthly credits (%s)", g.plan.Name)

	batch := &store.RefreshBatch{Now: now}
	for _, userID := range eligible {
		ent := entry.NewEarn(userID, g.entryType, g.plan.Credits.Amount, description)
		ent.Entity = types.NewEntityAt(now)
		ent.ExpirationDate = expiration
		batch.Entries = append(batch.Entries, ent)
		batch.Credits = append(batch.Credits, store.BalanceCredit{
			UserID: userID,
			Delta:  g.plan.Credits.Amount,
		})
	}

	if err := e.store.ApplyRefreshBatch(ctx, batch); err != nil {
		return 0, err
	}

	e.logger.Debug("distribution batch applied",
		"group", g.name,
		"price_id", g.plan.PriceID,
		"granted", len(eligible),
		"skipped", len(userIDs)-len(eligible),
	)

	return len(eligible), nil
}
