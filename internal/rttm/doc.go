// Package rttm parses the diarization engine's RTTM output into the shared
// timeline model, with segment payloads carrying the raw speaker ids.
package rttm
