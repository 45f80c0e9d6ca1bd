package extension

import (
	"time"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/hook"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/store"
)

// Option configures the credits Forge extension.
type Option func(*Extension)

// WithStore sets the store for the credits engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a credits.Option through to the underlying engine.
func WithEngineOption(opt credits.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithCatalog sets the plan catalog for the credits engine.
func WithCatalog(c plan.Catalog) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, credits.WithCatalog(c))
	}
}

// WithHook registers a credits hook.
func WithHook(h hook.Hook) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, credits.WithHook(h))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithBatchSize sets the number of users per distribution batch.
func WithBatchSize(size int) Option {
	return func(e *Extension) { e.config.BatchSize = size }
}

// WithDistributeInterval makes the engine run monthly distribution on a ticker.
func WithDistributeInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.DistributeInterval = d }
}
