// Package testsupport provides shared fixtures for package tests: temp-dir
// configurations, stubbed engine binaries, and sample caption and speaker
// files.
package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"voiceloom/internal/config"
)

// ConfigOption adjusts a test configuration after defaults are applied.
type ConfigOption func(*testing.T, *config.Config)

// NewConfig returns a validated configuration rooted in a fresh temp dir.
func NewConfig(t *testing.T, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.MetricsDB = filepath.Join(base, "metrics.db")

	for _, opt := range opts {
		opt(t, &cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithStubbedBinaries creates executable stand-ins for ffmpeg and both
// engines in a temp bin dir and prepends it to PATH.
func WithStubbedBinaries() ConfigOption {
	return func(t *testing.T, cfg *config.Config) {
		t.Helper()
		binDir := t.TempDir()
		for _, name := range []string{cfg.FFmpegBinary(), cfg.Transcription.Binary, cfg.Diarization.Binary} {
			stub := filepath.Join(binDir, name)
			if err := os.WriteFile(stub, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				t.Fatalf("write stub %s: %v", name, err)
			}
		}
		t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// WriteConfigFile renders the path settings of cfg as a TOML file.
func WriteConfigFile(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\noutput_dir = %q\nwork_dir = %q\nlog_dir = %q\nmetrics_db = %q\n",
		cfg.Paths.OutputDir,
		cfg.Paths.WorkDir,
		cfg.Paths.LogDir,
		cfg.Paths.MetricsDB,
	)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// SampleVTT is a two-cue caption file used across tests.
const SampleVTT = `WEBVTT

00:00:00.000 --> 00:00:02.000
hello there

00:00:02.000 --> 00:00:04.000
I am fine
`

// SampleRTTM covers SampleVTT with two speakers.
const SampleRTTM = `SPEAKER audio 1 0.000 2.000 <NA> <NA> SPEAKER_00 <NA> <NA>
SPEAKER audio 1 2.000 2.000 <NA> <NA> SPEAKER_01 <NA> <NA>
`

// WriteFile writes content under dir and returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
