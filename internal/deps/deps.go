// Package deps reports the availability of the external tools the pipeline
// shells out to. Both the status command and the pipeline preflight use it.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"voiceloom/internal/config"
)

// Requirement defines an external dependency voiceloom relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// Requirements lists the external binaries for the given configuration.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "ffmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Audio extraction and resampling",
		},
		{
			Name:        "transcription engine",
			Command:     cfg.Transcription.Binary,
			Description: "Produces the WebVTT caption timeline",
		},
		{
			Name:        "diarization engine",
			Command:     cfg.Diarization.Binary,
			Description: "Produces the RTTM speaker timeline",
		},
	}
}

// Check evaluates the provided requirements and reports availability.
func Check(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := Status{Requirement: req}
		status.Command = strings.TrimSpace(req.Command)
		if status.Command == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if path, err := exec.LookPath(status.Command); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		} else {
			status.Available = true
			status.Detail = path
		}
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the names of unavailable non-optional dependencies.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status.Name)
		}
	}
	return missing
}

// CheckWritableDir verifies a directory exists and is fully accessible.
func CheckWritableDir(path string) error {
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("directory %q not writable: %w", path, err)
	}
	return nil
}
