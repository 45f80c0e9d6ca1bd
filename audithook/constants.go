package audithook

// Action constants for audit events.
const (
	// Grant actions
	ActionCreditsGranted = "credits.granted"

	// Consumption actions
	ActionCreditsConsumed     = "credits.consumed"
	ActionCreditsInsufficient = "credits.insufficient"

	// Expiration actions
	ActionCreditsExpired = "credits.expired"

	// Distribution actions
	ActionDistributionRun    = "distribution.run"
	ActionDistributionFailed = "distribution.batch_failed"
)

// Resource constants for audit events.
const (
	ResourceBalance      = "balance"
	ResourceEntry        = "entry"
	ResourceDistribution = "distribution"
)

// Category constants for audit events.
const (
	CategoryCredits      = "credits"
	CategoryDistribution = "distribution"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
