// Package config loads, normalizes, and validates hearth configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// HEARTH_REGISTRY_DIR. The Config type centralizes every knob the connector,
// the daemon, and the CLI need so registry, runtime, and log locations are
// resolved in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
