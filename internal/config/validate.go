package config

import (
	"errors"
	"fmt"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRegistry(); err != nil {
		return err
	}
	if err := c.validateConnector(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRegistry() error {
	switch c.Registry.Backend {
	case RegistryBackendFile, RegistryBackendSQLite:
	default:
		return fmt.Errorf("registry.backend: unsupported value %q (expected %q or %q)", c.Registry.Backend, RegistryBackendFile, RegistryBackendSQLite)
	}
	if c.Registry.LockRetryMillis <= 0 {
		return errors.New("registry.lock_retry_millis must be positive")
	}
	return nil
}

func (c *Config) validateConnector() error {
	if err := ensurePositiveMap(map[string]int{
		"connector.connect_timeout_millis":   c.Connector.ConnectTimeoutMillis,
		"connector.start_timeout_seconds":    c.Connector.StartTimeoutSeconds,
		"connector.deadline_seconds":         c.Connector.DeadlineSeconds,
		"connector.poll_interval_millis":     c.Connector.PollIntervalMillis,
		"connector.max_poll_interval_millis": c.Connector.MaxPollIntervalMillis,
		"connector.retry_budget":             c.Connector.RetryBudget,
	}); err != nil {
		return err
	}
	if c.Connector.MaxPollIntervalMillis < c.Connector.PollIntervalMillis {
		return errors.New("connector.max_poll_interval_millis must be at least connector.poll_interval_millis")
	}
	if c.Connector.DeadlineSeconds < c.Connector.StartTimeoutSeconds {
		return errors.New("connector.deadline_seconds must be at least connector.start_timeout_seconds")
	}
	return nil
}

func (c *Config) validateDaemon() error {
	switch c.Daemon.Transport {
	case TransportUnix, TransportTCP:
	default:
		return fmt.Errorf("daemon.transport: unsupported value %q (expected %q or %q)", c.Daemon.Transport, TransportUnix, TransportTCP)
	}
	if c.Daemon.IdleTimeoutSeconds <= 0 {
		return errors.New("daemon.idle_timeout_seconds must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
