package rttm

import (
	"fmt"
	"io"

	"voiceloom/internal/timeline"
)

// Write renders a speaker timeline as RTTM SPEAKER records. fileID names the
// source recording; diarization tooling treats it as opaque.
func Write(w io.Writer, fileID string, tl timeline.Timeline) error {
	if fileID == "" {
		fileID = "audio"
	}
	for i := 0; i < tl.Len(); i++ {
		seg := tl.At(i)
		if _, err := fmt.Fprintf(w, "SPEAKER %s 1 %.3f %.3f <NA> <NA> %s <NA> <NA>\n",
			fileID, seg.Start, seg.End-seg.Start, seg.Payload); err != nil {
			return err
		}
	}
	return nil
}
