package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Default returns the configuration defaults applied before any file is read.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: "~/voiceloom/transcripts",
			WorkDir:   defaultWorkDir(),
			LogDir:    "~/.local/share/voiceloom/logs",
			MetricsDB: "~/.local/share/voiceloom/metrics.db",
		},
		Transcription: Transcription{
			Binary:   "whisper-ctranslate2",
			Model:    "small",
			Device:   "cpu",
			Language: "en",
		},
		Diarization: Diarization{
			Binary:      "diart.stream",
			Device:      "cpu",
			NumSpeakers: 2,
		},
		Speakers: Speakers{
			Labels:       map[string]string{},
			UnknownLabel: "Unknown",
		},
		Merge: Merge{
			Coalesce:           false,
			CoalesceGapSeconds: 1.0,
		},
		Postprocess: Postprocess{
			Enabled:        false,
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			Temperature:    0.2,
			TimeoutSeconds: 60,
		},
		Pipeline: Pipeline{
			TranscribeTimeout:  3600,
			DiarizeTimeout:     3600,
			MergeTimeout:       120,
			PostprocessTimeout: 300,
			KeepIntermediates:  false,
		},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
		},
	}
}

func defaultWorkDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "voiceloom", "work")
	}
	return "~/.cache/voiceloom/work"
}
