package rttm

import (
	"fmt"
	"strconv"
	"strings"

	"voiceloom/internal/services"
	"voiceloom/internal/timeline"
)

const stageName = "speakers"

// RTTM segment records carry ten whitespace-separated fields:
//
//	SPEAKER <file-id> <channel> <onset> <duration> <ortho> <stype> <name> <conf> <slat>
//
// Only onset, duration, and name matter here; diarization engines commonly
// emit "<NA>" for the rest.
const (
	fieldType     = 0
	fieldOnset    = 3
	fieldDuration = 4
	fieldName     = 7
	minFields     = 8
)

// Result carries the parsed speaker timeline plus non-fatal findings.
type Result struct {
	Timeline  timeline.Timeline
	Reordered bool
}

// Parse reads RTTM content into a speaker timeline with segment payloads set
// to the raw speaker id. Blank lines and comments are skipped; record types
// other than SPEAKER are ignored. A malformed onset or a non-positive
// duration is rejected.
func Parse(content string) (Result, error) {
	var segments []timeline.Segment

	for lineNum, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";;") {
			continue
		}

		fields := strings.Fields(line)
		if fields[fieldType] != "SPEAKER" {
			continue
		}
		if len(fields) < minFields {
			return Result{}, parseErr(fmt.Sprintf("line %d: expected at least %d fields, got %d", lineNum+1, minFields, len(fields)))
		}

		onset, err := strconv.ParseFloat(fields[fieldOnset], 64)
		if err != nil {
			return Result{}, parseErr(fmt.Sprintf("line %d: malformed onset %q", lineNum+1, fields[fieldOnset]))
		}
		duration, err := strconv.ParseFloat(fields[fieldDuration], 64)
		if err != nil {
			return Result{}, parseErr(fmt.Sprintf("line %d: malformed duration %q", lineNum+1, fields[fieldDuration]))
		}
		if onset < 0 {
			return Result{}, parseErr(fmt.Sprintf("line %d: negative onset %v", lineNum+1, onset))
		}
		if duration <= 0 {
			return Result{}, parseErr(fmt.Sprintf("line %d: non-positive duration %v", lineNum+1, duration))
		}
		speaker := strings.TrimSpace(fields[fieldName])
		if speaker == "" || speaker == "<NA>" {
			return Result{}, parseErr(fmt.Sprintf("line %d: missing speaker name", lineNum+1))
		}

		segments = append(segments, timeline.Segment{
			Start:   onset,
			End:     onset + duration,
			Payload: speaker,
		})
	}

	tl, reordered, err := timeline.New(segments)
	if err != nil {
		return Result{}, services.Wrap(services.ErrParse, stageName, "", "invalid segment ordering", err)
	}
	return Result{Timeline: tl, Reordered: reordered}, nil
}

func parseErr(message string) error {
	return services.Wrap(services.ErrParse, stageName, "", message, nil)
}
