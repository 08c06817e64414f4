// Package config loads, normalizes, and validates mediaworker configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and applies MEDIAWORKER_* environment
// overrides so a supervisor can select the role, deadlines, retry limits,
// chunking, and fetch budgets without a file on disk.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical backend names, and clear validation errors.
package config
