package connector

import (
	"time"

	"hearth/internal/config"
)

// Options tunes connection timing.
type Options struct {
	// ConnectTimeout bounds one transport connection attempt.
	ConnectTimeout time.Duration
	// StartTimeout bounds the wait for a started daemon to become reachable.
	StartTimeout time.Duration
	// Deadline bounds the whole sequence when the caller context has none.
	Deadline time.Duration
	// PollInterval is the first registry poll delay while a daemon starts;
	// it doubles up to MaxPollInterval.
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	// RetryBudget is how many non-stale transport failures are tolerated.
	RetryBudget int
}

// OptionsFromConfig maps connector configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}.withDefaults()
	}
	return Options{
		ConnectTimeout:  cfg.ConnectTimeout(),
		StartTimeout:    cfg.StartTimeout(),
		Deadline:        cfg.Deadline(),
		PollInterval:    cfg.PollInterval(),
		MaxPollInterval: cfg.MaxPollInterval(),
		RetryBudget:     cfg.Connector.RetryBudget,
	}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 2 * time.Second
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = 30 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.MaxPollInterval < o.PollInterval {
		o.MaxPollInterval = o.PollInterval
	}
	if o.RetryBudget <= 0 {
		o.RetryBudget = 3
	}
	return o
}
