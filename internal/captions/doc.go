// Package captions parses the transcription engine's WebVTT output into the
// shared timeline model and renders timelines back out for intermediate
// artifact retention.
package captions
