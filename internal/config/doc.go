// Package config loads coven-fleet configuration from YAML.
//
// Configuration supports ${VAR} environment variable expansion in the raw
// file and human-readable duration strings (e.g. "90s", "3m") for the
// heartbeat timeout and loop cadences. Unset optional fields fall back to
// the package defaults; Validate rejects configs without a database path or
// workspace root.
package config
