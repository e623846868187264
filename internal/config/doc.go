// Package config loads, normalizes, and validates Audiolens configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// AUDIOLENS_NTFY_TOPIC. The Config type centralizes every knob the daemon and
// CLI need, allowing upload/cache directories and transcriber settings to be
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
