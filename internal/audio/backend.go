package audio

import (
	"log/slog"
	"strings"

	"github.com/audiolibrelab/cliprec/internal/clip"
	"github.com/audiolibrelab/cliprec/internal/config"
	"github.com/gen2brain/malgo"
)

// BackendType names the platform audio API used for capture
type BackendType string

const (
	BackendTypeAuto       BackendType = "auto"
	BackendTypePulseAudio BackendType = "pulseaudio"
	BackendTypePipeWire   BackendType = "pipewire"
	BackendTypeALSA       BackendType = "alsa"
	BackendTypeJACK       BackendType = "jack"
	BackendTypeCoreAudio  BackendType = "coreaudio"
	BackendTypeWASAPI     BackendType = "wasapi"
	BackendTypeNull       BackendType = "null"
)

// determineBackend maps the configured backend onto malgo backends. An empty
// list lets miniaudio probe in its default order.
func determineBackend(cfg config.AudioConfig) []malgo.Backend {
	switch BackendType(strings.ToLower(cfg.Backend)) {
	case BackendTypePulseAudio, BackendTypePipeWire:
		// PipeWire is reached through its PulseAudio server
		return []malgo.Backend{malgo.BackendPulseaudio}
	case BackendTypeALSA:
		return []malgo.Backend{malgo.BackendAlsa}
	case BackendTypeJACK:
		return []malgo.Backend{malgo.BackendJack}
	case BackendTypeCoreAudio:
		return []malgo.Backend{malgo.BackendCoreaudio}
	case BackendTypeWASAPI:
		return []malgo.Backend{malgo.BackendWasapi}
	case BackendTypeNull:
		return []malgo.Backend{malgo.BackendNull}
	case BackendTypeAuto, "":
		return nil
	default:
		slog.Warn("Unknown audio backend, falling back to auto", "backend", cfg.Backend)
		return nil
	}
}

// GetAvailableBackends returns the backend names accepted in configuration
func GetAvailableBackends() []BackendType {
	return []BackendType{
		BackendTypeAuto, BackendTypePulseAudio, BackendTypePipeWire, BackendTypeALSA,
		BackendTypeJACK, BackendTypeCoreAudio, BackendTypeWASAPI, BackendTypeNull,
	}
}

// FormatFromConfig returns the PCM format clips are captured in
func FormatFromConfig(cfg config.AudioConfig) clip.Format {
	return clip.Format{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		BitDepth:   16,
	}
}

// NewInputDevice creates the capture device for the configured backend
func NewInputDevice(cfg config.AudioConfig, verbose bool) InputDevice {
	return &MalgoInput{
		backends: determineBackend(cfg),
		device:   cfg.CaptureDevice,
		verbose:  verbose,
	}
}

// NewOutputDevice creates the playback device. It plays each clip in the
// format the clip was recorded in.
func NewOutputDevice() OutputDevice {
	return NewOtoOutput()
}
