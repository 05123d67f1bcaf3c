// Package logging builds the slog loggers used throughout voiceloom and
// provides shared attribute helpers. Console output is selected automatically
// when stderr is a terminal; otherwise records are emitted as JSON lines.
package logging
