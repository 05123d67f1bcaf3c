package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	WorkDir   string `toml:"work_dir"`
	LogDir    string `toml:"log_dir"`
	MetricsDB string `toml:"metrics_db"`
}

// Transcription configures the external transcription engine.
type Transcription struct {
	Binary   string `toml:"binary"`
	Model    string `toml:"model"`
	Device   string `toml:"device"`
	Language string `toml:"language"`
}

// Diarization configures the external speaker diarization engine.
type Diarization struct {
	Binary      string `toml:"binary"`
	Device      string `toml:"device"`
	NumSpeakers int    `toml:"num_speakers"`
}

// Speakers configures display labels for diarized speaker ids.
type Speakers struct {
	// Labels maps raw diarization ids (e.g. "SPEAKER_00") to display names.
	// Ids missing from the map receive sequential "Speaker N" names.
	Labels map[string]string `toml:"labels"`
	// UnknownLabel is shown for captions with no diarization coverage.
	UnknownLabel string `toml:"unknown_label"`
}

// Merge configures the timeline alignment pass.
type Merge struct {
	// Coalesce joins adjacent same-speaker records separated by at most
	// CoalesceGapSeconds into a single turn.
	Coalesce           bool    `toml:"coalesce"`
	CoalesceGapSeconds float64 `toml:"coalesce_gap_seconds"`
}

// Postprocess configures the optional LLM polishing stage.
type Postprocess struct {
	Enabled        bool    `toml:"enabled"`
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	SystemPrompt   string  `toml:"system_prompt"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Pipeline contains orchestration timeouts and artifact retention.
type Pipeline struct {
	TranscribeTimeout  int  `toml:"transcribe_timeout"`
	DiarizeTimeout     int  `toml:"diarize_timeout"`
	MergeTimeout       int  `toml:"merge_timeout"`
	PostprocessTimeout int  `toml:"postprocess_timeout"`
	KeepIntermediates  bool `toml:"keep_intermediates"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values for voiceloom.
//
// Sections by subsystem:
//   - Paths: output, scratch, log, and metrics locations
//   - Transcription: external caption engine (WebVTT producer)
//   - Diarization: external speaker engine (RTTM producer)
//   - Speakers: raw id to display name mapping
//   - Merge: coalescing behavior for the alignment pass
//   - Postprocess: optional LLM transcript polishing
//   - Pipeline: per-stage timeouts and intermediate retention
//   - Logging: log level and format
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Diarization   Diarization   `toml:"diarization"`
	Speakers      Speakers      `toml:"speakers"`
	Merge         Merge         `toml:"merge"`
	Postprocess   Postprocess   `toml:"postprocess"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/voiceloom/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("voiceloom.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories required for a run.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if db := strings.TrimSpace(c.Paths.MetricsDB); db != "" {
		if err := os.MkdirAll(filepath.Dir(db), 0o755); err != nil {
			return fmt.Errorf("create metrics directory: %w", err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for audio extraction.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
