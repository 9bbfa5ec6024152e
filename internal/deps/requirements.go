package deps

import (
	"fmt"
	"strings"

	"subguard/internal/config"
)

// ForConfig lists the binaries the configured pipeline will execute.
func ForConfig(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	ffmpegUse := "Transcodes clips and samples frames"
	if strings.EqualFold(strings.TrimSpace(cfg.Pipeline.Transcoder), "drapto") {
		ffmpegUse = "Used by drapto for encoding and for frame sampling"
	}
	reqs := []Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Pipeline.FFmpegBinary,
			Description: ffmpegUse,
			VersionArgs: []string{"-version"},
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Pipeline.FFprobeBinary,
			Description: "Reads frame height and stream layout",
			VersionArgs: []string{"-version"},
		},
	}
	for _, engine := range cfg.Ensemble.Engines {
		if !strings.EqualFold(engine.Kind, "command") && strings.TrimSpace(engine.Kind) != "" {
			continue
		}
		reqs = append(reqs, Requirement{
			Name:        "engine " + engine.Name,
			Command:     engine.Command,
			Description: fmt.Sprintf("Detector engine (weight %.2f)", engine.Weight),
		})
	}
	return reqs
}
