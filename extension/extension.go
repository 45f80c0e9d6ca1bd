// Package extension provides the Forge extension adapter for the
// credits engine.
//
// It implements the forge.Extension interface to integrate the engine
// into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.credits" or
// "credits" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "credits"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Embeddable credit accounting engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the credits engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *credits.Engine
	store      store.Store
	engineOpts []credits.Option
}

// New creates a new credits Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying credits engine.
// This is nil until Register is called.
func (e *Extension) Engine() *credits.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the credits engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts := e.buildEngineOpts()

	e.engine = credits.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*credits.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("credits: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("credits: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs credits.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []credits.Option {
	opts := make([]credits.Option, 0, len(e.engineOpts)+2)

	if e.config.BatchSize > 0 {
		opts = append(opts, credits.WithBatchSize(e.config.BatchSize))
	}
	if e.config.DistributeInterval > 0 {
		opts = append(opts, credits.WithDistributeInterval(e.config.DistributeInterval))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("credits: configuration is required but not found in config files; " +
				"ensure 'extensions.credits' or 'credits' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("credits: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("batch_size", e.config.BatchSize),
		forge.F("distribute_interval", e.config.DistributeInterval),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.credits" first (namespaced pattern).
	if cm.IsSet("extensions.credits") {
		if err := cm.Bind("extensions.credits", &cfg); err == nil {
			e.Logger().Debug("credits: loaded config from file",
				forge.F("key", "extensions.credits"),
			)
			return cfg, true
		}
		e.Logger().Warn("credits: failed to bind extensions.credits config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "credits" key.
	if cm.IsSet("credits") {
		if err := cm.Bind("credits", &cfg); err == nil {
			e.Logger().Debug("credits: loaded config from file",
				forge.F("key", "credits"),
			)
			return cfg, true
		}
		e.Logger().Warn("credits: failed to bind credits config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.BatchSize == 0 && programmaticConfig.BatchSize != 0 {
		yamlConfig.BatchSize = programmaticConfig.BatchSize
	}
	if yamlConfig.DistributeInterval == 0 && programmaticConfig.DistributeInterval != 0 {
		yamlConfig.DistributeInterval = programmaticConfig.DistributeInterval
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
