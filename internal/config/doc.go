// Package config loads and validates the TOML configuration that drives every
// voiceloom run. A config is resolved once at startup, validated before any
// stage executes, and passed read-only to the pipeline; no mutable
// configuration state survives between runs.
package config
