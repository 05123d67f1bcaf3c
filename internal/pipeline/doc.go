// Package pipeline orchestrates a run: audio extraction, concurrent
// transcription and diarization, timeline merging, and optional transcript
// polishing. Each run carries its own identity, stage log, and artifacts so
// runs never share mutable state.
package pipeline
