// Package language normalizes user-supplied language identifiers to the
// ISO 639-1 codes the transcription engine expects.
package language

import "strings"

type entry struct {
	code2   string
	code3   []string
	display string
	word    string
}

var entries = []entry{
	{"en", []string{"eng"}, "English", "english"},
	{"zh", []string{"zho", "chi"}, "Chinese", "chinese"},
	{"es", []string{"spa"}, "Spanish", "spanish"},
	{"fr", []string{"fra", "fre"}, "French", "french"},
	{"de", []string{"deu", "ger"}, "German", "german"},
	{"it", []string{"ita"}, "Italian", "italian"},
	{"pt", []string{"por"}, "Portuguese", "portuguese"},
	{"ja", []string{"jpn"}, "Japanese", "japanese"},
	{"ko", []string{"kor"}, "Korean", "korean"},
	{"ru", []string{"rus"}, "Russian", "russian"},
	{"ar", []string{"ara"}, "Arabic", "arabic"},
	{"hi", []string{"hin"}, "Hindi", "hindi"},
	{"nl", []string{"nld", "dut"}, "Dutch", "dutch"},
	{"pl", []string{"pol"}, "Polish", "polish"},
	{"tr", []string{"tur"}, "Turkish", "turkish"},
	{"sv", []string{"swe"}, "Swedish", "swedish"},
	{"fi", []string{"fin"}, "Finnish", "finnish"},
	{"da", []string{"dan"}, "Danish", "danish"},
}

var index = func() map[string]*entry {
	idx := make(map[string]*entry, len(entries)*4)
	for i := range entries {
		e := &entries[i]
		idx[e.code2] = e
		idx[e.word] = e
		for _, c3 := range e.code3 {
			idx[c3] = e
		}
	}
	return idx
}()

// ToISO2 converts a 2-letter code, 3-letter code, or full language name to
// its ISO 639-1 form. Unknown values return the empty string so callers can
// omit the language flag and let the engine auto-detect.
func ToISO2(value string) string {
	if e, ok := index[normalize(value)]; ok {
		return e.code2
	}
	return ""
}

// Display returns the human-readable name for any accepted identifier.
func Display(value string) string {
	if e, ok := index[normalize(value)]; ok {
		return e.display
	}
	return ""
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
