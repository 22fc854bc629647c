// Package config loads, normalizes, and validates cara configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the CARA_CREDENTIALS_SECRET
// environment override. Provider keys are never read from configuration;
// they live in the credential store.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
