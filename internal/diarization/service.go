// Package diarization shells out to an external speaker diarization engine
// to produce an RTTM speaker track for an extracted audio file.
package diarization

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"voiceloom/internal/config"
	"voiceloom/internal/services"
)

const stageName = "diarize"

// Service wraps the external diarization engine.
type Service struct {
	cfg           config.Diarization
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a diarization service with the given configuration.
func NewService(cfg config.Diarization) *Service {
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Diarize runs the speaker engine against an extracted WAV file and returns
// the path of the produced RTTM file inside outputDir.
func (s *Service) Diarize(ctx context.Context, audioPath, outputDir string) (string, error) {
	if strings.TrimSpace(audioPath) == "" {
		return "", services.Wrap(services.ErrValidation, stageName, "run", "audio path required", nil)
	}
	if outputDir == "" {
		outputDir = filepath.Dir(audioPath)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrExternalTool, stageName, "run", "ensure output dir", err)
	}

	if err := s.run(ctx, s.cfg.Binary, s.buildArgs(audioPath, outputDir)...); err != nil {
		return "", services.Wrap(services.ErrExternalTool, stageName, "run", "speaker engine failed", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	rttmPath := filepath.Join(outputDir, base+".rttm")
	if _, err := os.Stat(rttmPath); err != nil {
		return "", services.Wrap(services.ErrExternalTool, stageName, "run", fmt.Sprintf("expected speaker output %q", rttmPath), err)
	}
	return rttmPath, nil
}

func (s *Service) buildArgs(audioPath, outputDir string) []string {
	args := []string{
		audioPath,
		"--output", outputDir,
		"--no-plot",
	}
	if s.cfg.NumSpeakers > 0 {
		args = append(args, "--max-speakers", strconv.Itoa(s.cfg.NumSpeakers))
	}
	if device := strings.TrimSpace(s.cfg.Device); device != "" {
		args = append(args, "--device", device)
	}
	return args
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
