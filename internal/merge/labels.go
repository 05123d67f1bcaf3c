package merge

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// Mapper resolves raw diarization ids to display labels. Configured labels
// win; any other id receives "Speaker N" where N is the 1-based order of the
// id's first appearance in the merged sequence, independent of what the
// configured map contains for other ids. The UNKNOWN id always resolves to
// the fixed unknown label.
type Mapper struct {
	labels    map[string]string
	unknown   string
	firstSeen map[string]int
}

// NewMapper builds a mapper from the configured label map. The map is copied.
func NewMapper(labels map[string]string, unknownLabel string) *Mapper {
	cp := make(map[string]string, len(labels))
	for id, name := range labels {
		id = strings.TrimSpace(id)
		name = strings.TrimSpace(name)
		if id == "" || name == "" {
			continue
		}
		cp[id] = name
	}
	unknownLabel = strings.TrimSpace(unknownLabel)
	if unknownLabel == "" {
		unknownLabel = "Unknown"
	}
	return &Mapper{
		labels:    cp,
		unknown:   unknownLabel,
		firstSeen: make(map[string]int),
	}
}

// Display resolves one raw id, registering its first appearance if needed.
func (m *Mapper) Display(raw string) string {
	if raw == UnknownSpeaker {
		return m.unknown
	}
	if _, seen := m.firstSeen[raw]; !seen {
		m.firstSeen[raw] = len(m.firstSeen) + 1
	}
	if name, ok := m.labels[raw]; ok {
		return name
	}
	return fmt.Sprintf("Speaker %d", m.firstSeen[raw])
}

// Apply returns a copy of records with raw speaker ids replaced by display
// labels. First-appearance numbering follows record order.
func (m *Mapper) Apply(records []Record) []Record {
	out := make([]Record, len(records))
	for i, record := range records {
		record.Speaker = m.Display(record.Speaker)
		out[i] = record
	}
	return out
}

// HumanizeRawID renders a raw diarization id for display without mapping,
// e.g. "SPEAKER_00" becomes "Speaker 00". Used when raw labels are requested
// explicitly.
func HumanizeRawID(raw string) string {
	if raw == "" {
		return raw
	}
	words := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	if len(words) == 0 {
		return raw
	}
	return titleCaser.String(strings.ToLower(strings.Join(words, " ")))
}
