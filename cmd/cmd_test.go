package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/audiolibrelab/cliprec/internal/recorder"
)

func TestValidatePipeline(t *testing.T) {
	defer func() { pipeline = "" }()

	tests := []struct {
		steps   string
		wantErr bool
	}{
		{"", false},
		{"rps", false},
		{"RS", false},
		{"p", false},
		{"rm", true},
		{"x", true},
	}

	for _, tt := range tests {
		t.Run(tt.steps, func(t *testing.T) {
			pipeline = tt.steps
			err := validatePipeline()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDescribePipeline(t *testing.T) {
	assert.Equal(t, "record → play → submit", describePipeline("rps"))
	assert.Equal(t, "play", describePipeline("p"))
}

func TestContainsStep(t *testing.T) {
	assert.True(t, containsStep("rps", 'r'))
	assert.False(t, containsStep("ps", 'r'))
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		name  string
		state recorder.State
		want  string
	}{
		{"idle", recorder.State{Mode: recorder.ModeRecording, RecordingTimeDisplay: "0:00 / 0:30"}, "READY"},
		{"recording", recorder.State{Mode: recorder.ModeRecording, IsRecording: true, RecordingTimeDisplay: "0:04 / 0:30"}, "REC"},
		{"loading", recorder.State{Mode: recorder.ModePlayback, Phase: recorder.PhasePlaybackPaused}, "LOADING"},
		{"paused", recorder.State{Mode: recorder.ModePlayback, Phase: recorder.PhasePlaybackPaused, Ready: true}, "PAUSED"},
		{"playing", recorder.State{Mode: recorder.ModePlayback, Phase: recorder.PhasePlaybackActive, Ready: true, IsPlaying: true}, "PLAY"},
		{"ended", recorder.State{Mode: recorder.ModePlayback, Phase: recorder.PhasePlaybackEnded, Ready: true, PlaybackTimeDisplay: "0:30 / 0:30"}, "ENDED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := statusLine(tt.state)
			assert.Contains(t, line, tt.want)
		})
	}
}
