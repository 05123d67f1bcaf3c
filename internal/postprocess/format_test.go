package postprocess_test

import (
	"testing"

	"voiceloom/internal/postprocess"
)

func TestBasicFormattingSeparatesSpeakerBlocks(t *testing.T) {
	input := "[Alice]\nhello there\n[Bob]\nhi."
	want := "[Alice]\nhello there.\n\n[Bob]\nhi."
	if got := postprocess.BasicFormatting(input); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBasicFormattingDropsBlankLinesAndKeepsPunctuation(t *testing.T) {
	input := "\n[Alice]\n\nalready punctuated!\n\n"
	want := "[Alice]\nalready punctuated!"
	if got := postprocess.BasicFormatting(input); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBasicFormattingEmptyPassthrough(t *testing.T) {
	if got := postprocess.BasicFormatting("  "); got != "  " {
		t.Fatalf("got %q", got)
	}
}
