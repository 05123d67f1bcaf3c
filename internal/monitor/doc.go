// Package monitor wraps pipeline stages with best-effort timing and resource
// instrumentation. Observation is strictly decorative: a monitored stage's
// result passes through untouched and sampling failures never abort the
// stage.
package monitor
