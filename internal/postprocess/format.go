package postprocess

import "strings"

// BasicFormatting is the non-LLM cleanup used when polishing is disabled or
// unavailable. It separates speaker blocks with blank lines and terminates
// unpunctuated lines with a period.
func BasicFormatting(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if len(lines) > 0 {
				lines = append(lines, "")
			}
			lines = append(lines, line)
			continue
		}
		lines = append(lines, ensureTerminalPunctuation(line))
	}
	return strings.Join(lines, "\n")
}

func ensureTerminalPunctuation(line string) string {
	runes := []rune(line)
	last := runes[len(runes)-1]
	if strings.ContainsRune(".,!?;:。！？", last) {
		return line
	}
	return line + "."
}
