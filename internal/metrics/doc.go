// Package metrics persists pipeline run history to SQLite so past runs and
// their per-stage timing and resource usage can be inspected later.
package metrics
