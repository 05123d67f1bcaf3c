// Package timeline provides the shared interval model consumed by the merge
// engine: an immutable, start-ordered sequence of time-bounded segments with
// a binary-searched overlap lookup. Both the caption and speaker timelines
// are represented with the same segment type.
package timeline
