// Package merge aligns a caption timeline with a speaker timeline to produce
// speaker-attributed transcript records. Assignment is a total, deterministic
// function: every caption yields exactly one record, coverage gaps resolve to
// an UNKNOWN label, and equal-overlap ties break on earliest segment start
// then lexicographic id. Label mapping and transcript formatting live here
// as well so the whole caption-to-text path shares one record type.
package merge
