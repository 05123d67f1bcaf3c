package merge

import (
	"fmt"
	"strings"
)

// FormatOptions controls transcript rendering.
type FormatOptions struct {
	// Timestamps renders one "start - end: [label] text" line per record
	// instead of speaker-block form.
	Timestamps bool
	// RawLabels skips the display mapping and prints humanized raw ids.
	RawLabels bool
}

// FormatTranscript renders labeled records as readable text. In the default
// speaker-block form a "[Label]" header is emitted whenever the speaker
// changes, followed by that speaker's lines, matching the primary transcript
// artifact format.
func FormatTranscript(records []Record, opts FormatOptions) string {
	if len(records) == 0 {
		return ""
	}
	if opts.Timestamps {
		return formatTimestamped(records, opts)
	}

	var lines []string
	currentSpeaker := ""
	for _, record := range records {
		label := displayLabel(record.Speaker, opts)
		if label != currentSpeaker {
			currentSpeaker = label
			lines = append(lines, fmt.Sprintf("[%s]", label))
		}
		if text := strings.TrimSpace(record.Text); text != "" {
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

func formatTimestamped(records []Record, opts FormatOptions) string {
	var lines []string
	for _, record := range records {
		text := strings.TrimSpace(record.Text)
		if text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s - %s: [%s] %s",
			clockTime(record.Start),
			clockTime(record.End),
			displayLabel(record.Speaker, opts),
			text,
		))
	}
	return strings.Join(lines, "\n") + "\n"
}

func displayLabel(speaker string, opts FormatOptions) string {
	if opts.RawLabels && speaker != UnknownSpeaker {
		return HumanizeRawID(speaker)
	}
	return speaker
}

func clockTime(seconds float64) string {
	minutes := int(seconds) / 60
	return fmt.Sprintf("%02d:%05.2f", minutes, seconds-float64(minutes*60))
}
