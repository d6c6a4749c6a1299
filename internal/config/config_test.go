package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTempConfig writes content to a temporary YAML file and returns its path
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cliprec-test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func containsSubstring(s, substr string) bool {
	return strings.Contains(s, substr)
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadWithProfile("", "")
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Recorder.MaxDuration)
	assert.Equal(t, 200*time.Millisecond, cfg.Recorder.TickInterval)
	assert.Equal(t, 256, cfg.Recorder.FFTSize)
	assert.Equal(t, "auto", cfg.Audio.Backend)
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
	assert.Equal(t, 1, cfg.Audio.Channels)
	assert.Equal(t, 250*time.Millisecond, cfg.Audio.UpdateInterval)
	assert.Equal(t, 80, cfg.Waveform.Height)
	assert.Equal(t, 16*time.Millisecond, cfg.Waveform.FrameInterval)
	assert.Equal(t, "#f26b8c", cfg.Waveform.StrokeColor.String())
	assert.Equal(t, uint8(38), cfg.Waveform.FadeColor.A)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "recordedAudio", cfg.Storage.Key)
	assert.Empty(t, cfg.Profile)
	assert.Empty(t, cfg.Overrides)
}

func TestLoadFile(t *testing.T) {
	path := createTempConfig(t, `
recorder:
  max_duration: 10s
audio:
  sample_rate: 16000
  channels: 2
waveform:
  stroke_color: "#00ff00"
storage:
  backend: redis
  redis:
    addr: redis:6379
    db: 2
`)

	cfg, err := LoadWithProfile(path, "")
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Recorder.MaxDuration)
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, 2, cfg.Audio.Channels)
	assert.Equal(t, uint8(0xff), cfg.Waveform.StrokeColor.G)
	assert.Equal(t, uint8(0), cfg.Waveform.StrokeColor.R)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "redis:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, 2, cfg.Storage.Redis.DB)
	// untouched keys keep their defaults
	assert.Equal(t, 200*time.Millisecond, cfg.Recorder.TickInterval)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadWithProfile(filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.Error(t, err)
	assert.True(t, containsSubstring(err.Error(), "error reading config file"))
}

func TestProfiles(t *testing.T) {
	content := `
active_config: short
recorder:
  max_duration: 20s
configs:
  short:
    recorder:
      max_duration: 5s
  studio:
    audio:
      sample_rate: 44100
      channels: 2
`
	path := createTempConfig(t, content)

	t.Run("active profile", func(t *testing.T) {
		cfg, err := LoadWithProfile(path, "")
		require.NoError(t, err)
		assert.Equal(t, "short", cfg.Profile)
		assert.Equal(t, 5*time.Second, cfg.Recorder.MaxDuration)
		assert.Equal(t, []string{"recorder.max_duration"}, cfg.Overrides)
	})

	t.Run("explicit profile wins", func(t *testing.T) {
		cfg, err := LoadWithProfile(path, "studio")
		require.NoError(t, err)
		assert.Equal(t, "studio", cfg.Profile)
		assert.Equal(t, 20*time.Second, cfg.Recorder.MaxDuration)
		assert.Equal(t, 44100, cfg.Audio.SampleRate)
		assert.Equal(t, []string{"audio.channels", "audio.sample_rate"}, cfg.Overrides)
	})

	t.Run("unknown profile", func(t *testing.T) {
		_, err := LoadWithProfile(path, "missing")
		require.Error(t, err)
		assert.True(t, containsSubstring(err.Error(), "profile 'missing' not found"))
	})
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CLIPREC_RECORDER_MAX_DURATION", "12s")
	t.Setenv("CLIPREC_STORAGE_KEY", "otherKey")

	cfg, err := LoadWithProfile("", "")
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, cfg.Recorder.MaxDuration)
	assert.Equal(t, "otherKey", cfg.Storage.Key)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad backend",
			content: "audio:\n  backend: oss\n",
			wantErr: "Backend",
		},
		{
			name:    "bad sample rate",
			content: "audio:\n  sample_rate: 12345\n",
			wantErr: "SampleRate",
		},
		{
			name:    "too many channels",
			content: "audio:\n  channels: 6\n",
			wantErr: "Channels",
		},
		{
			name:    "fft not power of two",
			content: "recorder:\n  fft_size: 300\n",
			wantErr: "power of two",
		},
		{
			name:    "tick longer than cap",
			content: "recorder:\n  max_duration: 1s\n  tick_interval: 2s\n",
			wantErr: "must be shorter than",
		},
		{
			name:    "cap below one second",
			content: "recorder:\n  max_duration: 500ms\n  tick_interval: 100ms\n",
			wantErr: "MaxDuration",
		},
		{
			name:    "fractional cap",
			content: "recorder:\n  max_duration: 1500ms\n",
			wantErr: "whole number of seconds",
		},
		{
			name:    "redis without addr",
			content: "storage:\n  backend: redis\n  redis:\n    addr: \"\"\n",
			wantErr: "storage.redis.addr is required",
		},
		{
			name:    "bad color",
			content: "waveform:\n  stroke_color: \"#xyz\"\n",
			wantErr: "invalid color",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := createTempConfig(t, tt.content)
			_, err := LoadWithProfile(path, "")
			require.Error(t, err)
			if !containsSubstring(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestFractionalCapFromEnv(t *testing.T) {
	t.Setenv("CLIPREC_RECORDER_MAX_DURATION", "1500ms")

	_, err := LoadWithProfile("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whole number of seconds")
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#f26b8c")
	require.NoError(t, err)
	assert.Equal(t, uint8(0xf2), c.R)
	assert.Equal(t, uint8(0x6b), c.G)
	assert.Equal(t, uint8(0x8c), c.B)
	assert.Equal(t, uint8(0xff), c.A)

	c, err = ParseColor("ffffff26")
	require.NoError(t, err)
	assert.Equal(t, "#ffffff26", c.String())

	_, err = ParseColor("#12345")
	assert.Error(t, err)
}

func TestUpdateActiveConfig(t *testing.T) {
	path := createTempConfig(t, `
active_config: a
configs:
  a:
    recorder:
      max_duration: 5s
  b:
    recorder:
      max_duration: 8s
`)

	require.NoError(t, UpdateActiveConfig(path, "b"))

	cfg, err := LoadWithProfile(path, "")
	require.NoError(t, err)
	assert.Equal(t, "b", cfg.Profile)
	assert.Equal(t, 8*time.Second, cfg.Recorder.MaxDuration)

	err = UpdateActiveConfig(path, "zzz")
	require.Error(t, err)
	assert.True(t, containsSubstring(err.Error(), "not found"))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "clips", "store.yaml"), expandPath("~/clips/store.yaml"))
	assert.Equal(t, "/abs/path", expandPath("/abs/path"))
}
