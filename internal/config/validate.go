package config

import (
	"fmt"

	"voiceloom/internal/services"
)

var validDevices = map[string]struct{}{
	"cpu":  {},
	"cuda": {},
}

var validLogFormats = map[string]struct{}{
	"":        {},
	"auto":    {},
	"console": {},
	"json":    {},
}

var validLogLevels = map[string]struct{}{
	"":      {},
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate rejects recognized options with invalid values. Validation runs
// before any stage starts so a bad config never produces partial artifacts.
func (c *Config) Validate() error {
	if c.Transcription.Binary == "" {
		return configErr("transcription.binary must not be empty")
	}
	if c.Transcription.Model == "" {
		return configErr("transcription.model must not be empty")
	}
	if _, ok := validDevices[c.Transcription.Device]; !ok {
		return configErr(fmt.Sprintf("transcription.device must be cpu or cuda, got %q", c.Transcription.Device))
	}
	if c.Diarization.Binary == "" {
		return configErr("diarization.binary must not be empty")
	}
	if _, ok := validDevices[c.Diarization.Device]; !ok {
		return configErr(fmt.Sprintf("diarization.device must be cpu or cuda, got %q", c.Diarization.Device))
	}
	if c.Diarization.NumSpeakers < 0 {
		return configErr("diarization.num_speakers must not be negative")
	}
	if c.Speakers.UnknownLabel == "" {
		return configErr("speakers.unknown_label must not be empty")
	}
	if c.Merge.CoalesceGapSeconds < 0 {
		return configErr("merge.coalesce_gap_seconds must not be negative")
	}
	if c.Postprocess.Temperature < 0 || c.Postprocess.Temperature > 2 {
		return configErr(fmt.Sprintf("postprocess.temperature must be within [0, 2], got %v", c.Postprocess.Temperature))
	}
	if c.Postprocess.Enabled && c.Postprocess.Model == "" {
		return configErr("postprocess.model must not be empty when postprocessing is enabled")
	}
	for name, value := range map[string]int{
		"pipeline.transcribe_timeout":  c.Pipeline.TranscribeTimeout,
		"pipeline.diarize_timeout":     c.Pipeline.DiarizeTimeout,
		"pipeline.merge_timeout":       c.Pipeline.MergeTimeout,
		"pipeline.postprocess_timeout": c.Pipeline.PostprocessTimeout,
	} {
		if value <= 0 {
			return configErr(fmt.Sprintf("%s must be positive, got %d", name, value))
		}
	}
	if _, ok := validLogFormats[c.Logging.Format]; !ok {
		return configErr(fmt.Sprintf("logging.format must be auto, console, or json, got %q", c.Logging.Format))
	}
	if _, ok := validLogLevels[c.Logging.Level]; !ok {
		return configErr(fmt.Sprintf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level))
	}
	return nil
}

func configErr(message string) error {
	return services.Wrap(services.ErrConfiguration, "config", "", message, nil)
}
