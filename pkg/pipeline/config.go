package pipeline

import (
	"fmt"
	"log/slog"
	"time"
)

// Config configures a Dispatcher.
type Config struct {
	// StatsInterval is how often counters are logged. Zero disables it.
	StatsInterval time.Duration `json:"stats_interval"`

	// FailureLogEvery limits inference failure warnings to the first one and
	// every Nth after it. Zero or one logs every failure.
	FailureLogEvery uint64 `json:"failure_log_every"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		StatsInterval:   30 * time.Second,
		FailureLogEvery: 100,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.StatsInterval < 0 {
		return fmt.Errorf("pipeline: stats interval must not be negative, got %s", c.StatsInterval)
	}
	return nil
}

// Option configures optional Dispatcher dependencies.
type Option func(*Dispatcher)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithOutcomeHook registers fn to run on the worker after every frame with
// the way that frame ended. It must not block.
func WithOutcomeHook(fn func(seq uint64, o Outcome)) Option {
	return func(d *Dispatcher) { d.hook = fn }
}
