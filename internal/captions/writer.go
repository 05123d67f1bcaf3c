package captions

import (
	"fmt"
	"io"

	"voiceloom/internal/timeline"
)

// Write renders a caption timeline as a WebVTT document. Used when the
// pipeline keeps intermediate artifacts next to the final transcript.
func Write(w io.Writer, tl timeline.Timeline) error {
	if _, err := io.WriteString(w, "WEBVTT\n\n"); err != nil {
		return err
	}
	for i := 0; i < tl.Len(); i++ {
		seg := tl.At(i)
		if _, err := fmt.Fprintf(w, "%s --> %s\n%s\n\n", formatSeconds(seg.Start), formatSeconds(seg.End), seg.Payload); err != nil {
			return err
		}
	}
	return nil
}
