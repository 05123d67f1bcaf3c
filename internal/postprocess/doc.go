// Package postprocess polishes merged transcripts through an OpenAI-compatible
// chat completions endpoint, with a plain-text formatting fallback when no
// model is configured. Polishing failures are recoverable: callers keep the
// unpolished transcript.
package postprocess
