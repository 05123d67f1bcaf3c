// Package transcription shells out to ffmpeg and an external caption engine
// to turn a media file into a WebVTT caption track.
package transcription

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"voiceloom/internal/config"
	"voiceloom/internal/language"
	"voiceloom/internal/services"
)

const stageName = "transcribe"

// Service wraps the external transcription engine.
type Service struct {
	cfg           config.Transcription
	ffmpegBinary  string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a transcription service with the given configuration.
func NewService(cfg config.Transcription, ffmpegBinary string) *Service {
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	return &Service{
		cfg:          cfg,
		ffmpegBinary: ffmpegBinary,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	return s.cfg.Model
}

// ExtractAudio converts the source media into a mono 16kHz WAV file suitable
// for both the transcription and diarization engines.
func (s *Service) ExtractAudio(ctx context.Context, source, dest string) error {
	if strings.TrimSpace(source) == "" {
		return services.Wrap(services.ErrValidation, stageName, "extract", "source path required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrExternalTool, stageName, "extract", "ensure audio dir", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
	if err := s.run(ctx, s.ffmpegBinary, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, stageName, "extract", "ffmpeg failed", err)
	}
	return nil
}

// Transcribe runs the caption engine against an extracted WAV file and
// returns the path of the produced WebVTT file inside outputDir.
func (s *Service) Transcribe(ctx context.Context, audioPath, outputDir string) (string, error) {
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
		return "", services.Wrap(services.ErrExternalTool, stageName, "run", "caption engine failed", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	vttPath := filepath.Join(outputDir, base+".vtt")
	if _, err := os.Stat(vttPath); err != nil {
		return "", services.Wrap(services.ErrExternalTool, stageName, "run", fmt.Sprintf("expected caption output %q", vttPath), err)
	}
	return vttPath, nil
}

func (s *Service) buildArgs(audioPath, outputDir string) []string {
	args := []string{
		audioPath,
		"--model", s.cfg.Model,
		"--device", s.cfg.Device,
		"--output_format", "vtt",
		"--output_dir", outputDir,
	}
	if lang := language.ToISO2(s.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
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
