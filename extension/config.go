package extension

import "time"

// Config holds the credits extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.credits" or "credits" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BatchSize is the number of users per distribution batch
	// (default: 100).
	BatchSize int `json:"batch_size" mapstructure:"batch_size" yaml:"batch_size"`

	// DistributeInterval makes the engine run monthly distribution on a
	// ticker. Zero (the default) disables the worker; the application
	// schedules distribution itself.
	DistributeInterval time.Duration `json:"distribute_interval" mapstructure:"distribute_interval" yaml:"distribute_interval"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize: 100,
	}
}
