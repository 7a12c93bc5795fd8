// Package config loads trainer configuration from a YAML file with
// environment variable overrides.
package config
