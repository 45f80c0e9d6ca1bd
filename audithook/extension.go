// Package audithook bridges credits engine events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not import
// any particular audit backend. Callers inject a RecorderFunc adapter
// that bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/credits/hook"
)

// Compile-time interface checks.
var (
	_ hook.Hook           = (*Extension)(nil)
	_ hook.OnGranted      = (*Extension)(nil)
	_ hook.OnConsumed     = (*Extension)(nil)
	_ hook.OnSwept        = (*Extension)(nil)
	_ hook.OnDistributed  = (*Extension)(nil)
	_ hook.OnBatchFailed  = (*Extension)(nil)
	_ hook.OnInsufficient = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// Defined locally so this package carries no backend dependency; the
// embedding application injects the concrete recorder at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges credits engine events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Hook.
func (e *Extension) Name() string { return "audit-hook" }

// OnGranted implements hook.OnGranted.
func (e *Extension) OnGranted(ctx context.Context, ev hook.GrantEvent) error {
	return e.record(ctx, ActionCreditsGranted, SeverityInfo, OutcomeSuccess,
		ResourceEntry, ev.UserID, CategoryCredits, nil,
		"user_id", ev.UserID,
		"type", ev.Type,
		"amount", ev.Amount,
		"payment_id", ev.PaymentID,
	)
}

// OnConsumed implements hook.OnConsumed.
func (e *Extension) OnConsumed(ctx context.Context, ev hook.ConsumeEvent) error {
	return e.record(ctx, ActionCreditsConsumed, SeverityInfo, OutcomeSuccess,
		ResourceEntry, ev.UserID, CategoryCredits, nil,
		"user_id", ev.UserID,
		"amount", ev.Amount,
		"entries_charged", ev.EntriesCharged,
	)
}

// OnSwept implements hook.OnSwept.
func (e *Extension) OnSwept(ctx context.Context, ev hook.SweepEvent) error {
	return e.record(ctx, ActionCreditsExpired, SeverityInfo, OutcomeSuccess,
		ResourceBalance, ev.UserID, CategoryCredits, nil,
		"user_id", ev.UserID,
		"expired_total", ev.ExpiredTotal,
		"entries_swept", ev.EntriesSwept,
	)
}

// OnDistributed implements hook.OnDistributed.
func (e *Extension) OnDistributed(ctx context.Context, ev hook.DistributionEvent) error {
	outcome := OutcomeSuccess
	if ev.ErrorCount > 0 {
		outcome = OutcomePartial
	}
	return e.record(ctx, ActionDistributionRun, SeverityInfo, outcome,
		ResourceDistribution, "", CategoryDistribution, nil,
		"users", ev.UsersCount,
		"processed", ev.ProcessedCount,
		"errors", ev.ErrorCount,
		"elapsed_ms", ev.Elapsed.Milliseconds(),
	)
}

// OnBatchFailed implements hook.OnBatchFailed.
func (e *Extension) OnBatchFailed(ctx context.Context, ev hook.BatchErrorEvent) error {
	return e.record(ctx, ActionDistributionFailed, SeverityError, OutcomeFailure,
		ResourceDistribution, ev.PriceID, CategoryDistribution, ev.Err,
		"group", ev.Group,
		"price_id", ev.PriceID,
		"users", ev.UserCount,
	)
}

// OnInsufficient implements hook.OnInsufficient.
func (e *Extension) OnInsufficient(ctx context.Context, ev hook.InsufficientEvent) error {
	return e.record(ctx, ActionCreditsInsufficient, SeverityWarning, OutcomeFailure,
		ResourceBalance, ev.UserID, CategoryCredits, nil,
		"user_id", ev.UserID,
		"requested", ev.Requested,
		"balance", ev.Balance,
	)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audithook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
