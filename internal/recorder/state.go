package recorder

import (
	"time"

	"github.com/audiolibrelab/cliprec/internal/countdown"
)

type Mode string

const (
	ModeRecording Mode = "recording"
	ModePlayback  Mode = "playback"
)

type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseRecording      Phase = "recording"
	PhaseStopped        Phase = "stopped"
	PhasePlaybackPaused Phase = "playback-paused"
	PhasePlaybackActive Phase = "playback-active"
	PhasePlaybackEnded  Phase = "playback-ended"
)

// State is the display state of a Machine. Every field is derived on the
// event loop; readers get copies.
type State struct {
	Mode                 Mode   `json:"mode" yaml:"mode"`
	Phase                Phase  `json:"phase" yaml:"phase"`
	IsRecording          bool   `json:"isRecording" yaml:"is_recording"`
	IsPlaying            bool   `json:"isPlaying" yaml:"is_playing"`
	NextEnabled          bool   `json:"nextEnabled" yaml:"next_enabled"`
	Ready                bool   `json:"ready" yaml:"ready"` // playback duration known
	RecordingTimeDisplay string `json:"recordingTimeDisplay" yaml:"recording_time_display"`
	PlaybackTimeDisplay  string `json:"playbackTimeDisplay" yaml:"playback_time_display"`
	AudioURL             string `json:"audioUrl,omitempty" yaml:"audio_url,omitempty"`
}

func initialState(capacity time.Duration) State {
	zero := countdown.FormatDisplay(0, capacity)
	return State{
		Mode:                 ModeRecording,
		Phase:                PhaseIdle,
		RecordingTimeDisplay: zero,
		PlaybackTimeDisplay:  zero,
	}
}

// HasClip reports whether a recording is available for playback or submit.
func (s State) HasClip() bool { return s.AudioURL != "" }
