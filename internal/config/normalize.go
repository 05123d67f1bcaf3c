package config

import "strings"

// normalize expands paths and trims free-form string fields in place.
func (c *Config) normalize() error {
	for _, field := range []*string{
		&c.Paths.OutputDir,
		&c.Paths.WorkDir,
		&c.Paths.LogDir,
		&c.Paths.MetricsDB,
	} {
		expanded, err := expandPath(strings.TrimSpace(*field))
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Transcription.Binary = strings.TrimSpace(c.Transcription.Binary)
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	c.Transcription.Device = strings.ToLower(strings.TrimSpace(c.Transcription.Device))
	c.Transcription.Language = strings.TrimSpace(c.Transcription.Language)

	c.Diarization.Binary = strings.TrimSpace(c.Diarization.Binary)
	c.Diarization.Device = strings.ToLower(strings.TrimSpace(c.Diarization.Device))

	c.Speakers.UnknownLabel = strings.TrimSpace(c.Speakers.UnknownLabel)
	if c.Speakers.Labels == nil {
		c.Speakers.Labels = map[string]string{}
	}

	c.Postprocess.APIKey = strings.TrimSpace(c.Postprocess.APIKey)
	c.Postprocess.BaseURL = strings.TrimSpace(c.Postprocess.BaseURL)
	c.Postprocess.Model = strings.TrimSpace(c.Postprocess.Model)
	c.Postprocess.SystemPrompt = strings.TrimSpace(c.Postprocess.SystemPrompt)

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	return nil
}
