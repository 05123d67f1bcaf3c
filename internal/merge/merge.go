package merge

import (
	"voiceloom/internal/timeline"
)

// UnknownSpeaker is the raw label assigned when a caption has no diarization
// coverage. It is mapped to a fixed display sentinel, never a synthesized
// speaker name.
const UnknownSpeaker = "UNKNOWN"

// Record is one speaker-attributed caption. Start and end always equal the
// originating caption segment's bounds unless records were coalesced.
type Record struct {
	Start   float64
	End     float64
	Speaker string
	Text    string
}

// Assign attributes a speaker to every caption segment using the portion of
// the speaker timeline it overlaps. The result has exactly one record per
// caption, in caption order; captions are never split or dropped. Coverage
// gaps and simultaneous speakers are normal inputs, not errors.
//
// For a caption overlapped by several speakers the id with the greatest
// total overlapping duration wins. Ties fall to the id whose earliest
// overlapping segment starts first, then to the lexicographically smallest
// id, so identical inputs always produce identical output.
func Assign(captions, speakers timeline.Timeline) []Record {
	records := make([]Record, 0, captions.Len())
	for i := 0; i < captions.Len(); i++ {
		caption := captions.At(i)
		records = append(records, Record{
			Start:   caption.Start,
			End:     caption.End,
			Speaker: resolveSpeaker(caption, speakers),
			Text:    caption.Payload,
		})
	}
	return records
}

type candidate struct {
	overlap       float64
	earliestStart float64
}

func resolveSpeaker(caption timeline.Segment, speakers timeline.Timeline) string {
	overlapping := speakers.Overlapping(caption.Start, caption.End)
	if len(overlapping) == 0 {
		return UnknownSpeaker
	}

	totals := make(map[string]candidate, 2)
	for _, seg := range overlapping {
		overlap := seg.Overlap(caption.Start, caption.End)
		if overlap <= 0 {
			continue
		}
		cand, seen := totals[seg.Payload]
		if !seen {
			cand.earliestStart = seg.Start
		} else if seg.Start < cand.earliestStart {
			cand.earliestStart = seg.Start
		}
		cand.overlap += overlap
		totals[seg.Payload] = cand
	}
	if len(totals) == 0 {
		return UnknownSpeaker
	}

	best := ""
	for id, cand := range totals {
		if best == "" || better(cand, id, totals[best], best) {
			best = id
		}
	}
	return best
}

// better reports whether candidate a beats the current best b under the
// overlap > earliest-start > lexicographic ordering.
func better(a candidate, aID string, b candidate, bID string) bool {
	if a.overlap != b.overlap {
		return a.overlap > b.overlap
	}
	if a.earliestStart != b.earliestStart {
		return a.earliestStart < b.earliestStart
	}
	return aID < bID
}

// Coalesce joins adjacent records that share a speaker and are separated by
// at most maxGap seconds. Joined records keep the union time range and
// concatenate text with a single separating space. The input is not
// modified.
func Coalesce(records []Record, maxGap float64) []Record {
	if len(records) == 0 {
		return nil
	}
	out := make([]Record, 0, len(records))
	current := records[0]
	for _, next := range records[1:] {
		if next.Speaker == current.Speaker && next.Start-current.End <= maxGap {
			if next.End > current.End {
				current.End = next.End
			}
			current.Text = current.Text + " " + next.Text
			continue
		}
		out = append(out, current)
		current = next
	}
	return append(out, current)
}
