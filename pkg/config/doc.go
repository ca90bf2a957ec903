// Package config loads tally configuration from TALLY_-prefixed
// environment variables with sensible defaults and validates the result
// before any component starts.
package config
