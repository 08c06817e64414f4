package deps

import (
	"mediaworker/internal/config"
)

// UVXCommand launches WhisperX through uv's tool runner.
const UVXCommand = "uvx"

// RoleRequirements lists the binaries a worker needs for role under cfg.
// An empty role lists every binary the configuration refers to.
func RoleRequirements(cfg *config.Config, role string) []Requirement {
	reqs := []Requirement{
		{Name: "ffprobe", Command: cfg.FFprobeBinary(), Description: "Inspects media containers and streams"},
		{Name: "ffmpeg", Command: cfg.FFmpegBinary(), Description: "Decodes frames and audio"},
	}
	vision := role == "" || role == config.RoleVision
	transcribe := role == "" || role == config.RoleTranscribe

	if vision && cfg.Vision.Analyzer == config.AnalyzerPython {
		reqs = append(reqs, Requirement{Name: "python", Command: cfg.Vision.PythonCommand, Description: "Runs the frame analysis model", Optional: role == ""})
	}
	if transcribe {
		switch cfg.Transcribe.Engine {
		case config.EngineWhisperCPP:
			reqs = append(reqs, Requirement{Name: "whisper.cpp", Command: cfg.Transcribe.WhisperCPPBinary, Description: "Speech-to-text inference", Optional: role == ""})
		default:
			reqs = append(reqs, Requirement{Name: "uvx", Command: UVXCommand, Description: "Runs WhisperX speech-to-text", Optional: role == ""})
		}
	}
	return reqs
}

// Missing returns the required (non-optional) dependencies that are
// unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
