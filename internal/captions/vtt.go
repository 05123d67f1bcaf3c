package captions

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"voiceloom/internal/services"
	"voiceloom/internal/timeline"
)

const stageName = "captions"

// Result carries the parsed caption timeline plus non-fatal findings.
type Result struct {
	Timeline timeline.Timeline
	// Reordered is set when cues were not sorted by start time in the source.
	// The timeline is returned sorted; the flag is surfaced as a warning
	// because it usually indicates a corrupt or hand-edited file.
	Reordered bool
}

// Parse reads WebVTT content into a caption timeline. Cue payloads become
// segment payloads with internal newlines collapsed to spaces. A cue with a
// malformed timestamp, an end not after its start, or an empty text body is
// rejected; blank lines, the WEBVTT header, NOTE blocks, and cue identifiers
// are tolerated.
func Parse(content string) (Result, error) {
	var segments []timeline.Segment

	content = strings.ReplaceAll(content, "\r\n", "\n")
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" || block == "WEBVTT" || strings.HasPrefix(block, "WEBVTT\n") {
			continue
		}
		if strings.HasPrefix(block, "NOTE") || strings.HasPrefix(block, "STYLE") || strings.HasPrefix(block, "REGION") {
			continue
		}
		if !strings.Contains(block, "-->") {
			continue
		}

		lines := strings.Split(block, "\n")
		timeIdx := -1
		for i, line := range lines {
			if strings.Contains(line, "-->") {
				timeIdx = i
				break
			}
		}

		start, end, err := parseCueTiming(lines[timeIdx])
		if err != nil {
			return Result{}, err
		}
		if end <= start {
			return Result{}, parseErr(fmt.Sprintf("cue at %s: end %v not after start %v", formatSeconds(start), end, start))
		}

		var textParts []string
		for _, line := range lines[timeIdx+1:] {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				textParts = append(textParts, trimmed)
			}
		}
		text := strings.Join(textParts, " ")
		if text == "" {
			return Result{}, parseErr(fmt.Sprintf("cue at %s: empty text", formatSeconds(start)))
		}

		segments = append(segments, timeline.Segment{Start: start, End: end, Payload: text})
	}

	tl, reordered, err := timeline.New(segments)
	if err != nil {
		return Result{}, services.Wrap(services.ErrParse, stageName, "", "invalid cue ordering", err)
	}
	return Result{Timeline: tl, Reordered: reordered}, nil
}

func parseCueTiming(line string) (float64, float64, error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, parseErr(fmt.Sprintf("malformed timing line %q", strings.TrimSpace(line)))
	}
	start, err := ParseTimestamp(parts[0])
	if err != nil {
		return 0, 0, err
	}
	// Cue settings (position, alignment) may trail the end timestamp.
	endField := strings.TrimSpace(parts[1])
	if idx := strings.IndexAny(endField, " \t"); idx >= 0 {
		endField = endField[:idx]
	}
	end, err := ParseTimestamp(endField)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// ParseTimestamp converts "HH:MM:SS.mmm" or "MM:SS.mmm" to seconds. A comma
// decimal separator is tolerated for files converted from SRT.
func ParseTimestamp(value string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
	parts := strings.Split(cleaned, ":")

	var hours, minutes int
	var seconds float64
	var err error
	switch len(parts) {
	case 3:
		if hours, err = strconv.Atoi(parts[0]); err != nil {
			return 0, parseErr(fmt.Sprintf("malformed timestamp %q", value))
		}
		if minutes, err = strconv.Atoi(parts[1]); err != nil {
			return 0, parseErr(fmt.Sprintf("malformed timestamp %q", value))
		}
		if seconds, err = strconv.ParseFloat(parts[2], 64); err != nil {
			return 0, parseErr(fmt.Sprintf("malformed timestamp %q", value))
		}
	case 2:
		if minutes, err = strconv.Atoi(parts[0]); err != nil {
			return 0, parseErr(fmt.Sprintf("malformed timestamp %q", value))
		}
		if seconds, err = strconv.ParseFloat(parts[1], 64); err != nil {
			return 0, parseErr(fmt.Sprintf("malformed timestamp %q", value))
		}
	default:
		return 0, parseErr(fmt.Sprintf("malformed timestamp %q", value))
	}
	if hours < 0 || minutes < 0 || seconds < 0 || seconds >= 60 {
		return 0, parseErr(fmt.Sprintf("malformed timestamp %q", value))
	}
	return float64(hours)*3600 + float64(minutes)*60 + seconds, nil
}

func formatSeconds(seconds float64) string {
	whole := int(seconds)
	frac := seconds - math.Floor(seconds)
	return fmt.Sprintf("%02d:%02d:%06.3f", whole/3600, (whole%3600)/60, float64(whole%60)+frac)
}

func parseErr(message string) error {
	return services.Wrap(services.ErrParse, stageName, "", message, nil)
}
