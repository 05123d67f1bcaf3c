package timeline

import (
	"fmt"
	"sort"

	"voiceloom/internal/services"
)

// Segment is one time-bounded entry of a timeline. Payload carries the
// caption text for caption timelines and the raw speaker id for speaker
// timelines.
type Segment struct {
	Start   float64
	End     float64
	Payload string
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Overlap returns the duration shared between the segment and [start, end),
// clamped at zero.
func (s Segment) Overlap(start, end float64) float64 {
	lo := s.Start
	if start > lo {
		lo = start
	}
	hi := s.End
	if end < hi {
		hi = end
	}
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// Timeline is a read-only ordered sequence of segments with non-decreasing
// start times. Speaker timelines may contain overlapping segments and both
// kinds may contain gaps; neither is an error.
type Timeline struct {
	segments []Segment
	// maxEnd[i] is the largest End among segments[0..i]. Because it is
	// non-decreasing it admits a binary search for the first segment that can
	// still overlap a query window, even when segments overlap each other.
	maxEnd []float64
}

// New validates and orders the given segments into a Timeline. The segments
// are copied; the input slice stays untouched. The returned flag reports
// whether reordering was required, which callers surface as a warning since
// it indicates a possibly corrupt source file.
func New(segments []Segment) (Timeline, bool, error) {
	ordered := make([]Segment, len(segments))
	copy(ordered, segments)

	for i, seg := range ordered {
		if seg.Start < 0 {
			return Timeline{}, false, services.Wrap(services.ErrValidation, "timeline", "", fmt.Sprintf("segment %d: negative start %v", i, seg.Start), nil)
		}
		if seg.End <= seg.Start {
			return Timeline{}, false, services.Wrap(services.ErrValidation, "timeline", "", fmt.Sprintf("segment %d: end %v not after start %v", i, seg.End, seg.Start), nil)
		}
	}

	reordered := !sort.SliceIsSorted(ordered, func(i, j int) bool {
		return ordered[i].Start < ordered[j].Start
	})
	if reordered {
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Start < ordered[j].Start
		})
	}

	maxEnd := make([]float64, len(ordered))
	running := 0.0
	for i, seg := range ordered {
		if seg.End > running {
			running = seg.End
		}
		maxEnd[i] = running
	}

	return Timeline{segments: ordered, maxEnd: maxEnd}, reordered, nil
}

// Len returns the number of segments.
func (t Timeline) Len() int {
	return len(t.segments)
}

// At returns the i-th segment in start order.
func (t Timeline) At(i int) Segment {
	return t.segments[i]
}

// Segments returns a copy of the ordered segments.
func (t Timeline) Segments() []Segment {
	cp := make([]Segment, len(t.segments))
	copy(cp, t.segments)
	return cp
}

// Overlapping returns, in start order, every segment that shares a positive
// duration with [start, end). Both bounds of the scan are found by binary
// search: the prefix maximum of segment ends locates the first candidate and
// the sorted starts locate the last.
func (t Timeline) Overlapping(start, end float64) []Segment {
	if len(t.segments) == 0 || end <= start {
		return nil
	}
	lo := sort.Search(len(t.segments), func(i int) bool {
		return t.maxEnd[i] > start
	})
	hi := sort.Search(len(t.segments), func(i int) bool {
		return t.segments[i].Start >= end
	})
	if lo >= hi {
		return nil
	}
	var matched []Segment
	for i := lo; i < hi; i++ {
		if t.segments[i].End > start {
			matched = append(matched, t.segments[i])
		}
	}
	return matched
}

// Span returns the earliest start and latest end across the timeline.
func (t Timeline) Span() (float64, float64) {
	if len(t.segments) == 0 {
		return 0, 0
	}
	return t.segments[0].Start, t.maxEnd[len(t.maxEnd)-1]
}
