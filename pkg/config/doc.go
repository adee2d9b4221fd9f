// Package config loads all service configuration from ARBOR_* environment
// variables with sensible defaults for local development. Configuration
// is validated at load time; a process never starts with a config it
// cannot run with.
package config
