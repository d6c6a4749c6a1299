package audio_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/audiolibrelab/cliprec/internal/audio"
	"github.com/audiolibrelab/cliprec/internal/audio/audiotest"
	"github.com/audiolibrelab/cliprec/internal/clip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeArtifact(t *testing.T, seconds float64) *clip.Artifact {
	t.Helper()
	data, err := clip.EncodeWAV(audiotest.Signal(testFormat, seconds, 8000), testFormat)
	require.NoError(t, err)
	a, err := clip.NewArtifact(data, testFormat)
	require.NoError(t, err)
	return a
}

func waitLoaded(t *testing.T, s *audio.PlaybackSession) {
	t.Helper()
	select {
	case <-s.Loaded():
	case <-time.After(time.Second):
		t.Fatal("clip never finished decoding")
	}
}

func TestPlaybackSession_DurationUnknownUntilDecoded(t *testing.T) {
	gate := make(chan struct{})
	out := audiotest.NewOutput()
	s := audio.NewPlaybackSession(out, audio.PlaybackOptions{
		Decode: func(a *clip.Artifact) (*clip.Decoded, error) {
			<-gate
			return clip.DecodeWAV(a.Bytes())
		},
	})
	defer s.Close()

	require.NoError(t, s.Load(makeArtifact(t, 2)))
	_, ok := s.Duration()
	assert.False(t, ok)
	assert.ErrorIs(t, s.Play(), audio.ErrDurationUnknown)
	assert.False(t, s.Playing())
	assert.Zero(t, out.Voices())

	close(gate)
	waitLoaded(t, s)
	d, ok := s.Duration()
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
}

func TestPlaybackSession_Rejected(t *testing.T) {
	out := audiotest.NewOutput()
	out.Reject = errors.New("autoplay blocked")
	s := audio.NewPlaybackSession(out, audio.PlaybackOptions{})
	defer s.Close()

	require.NoError(t, s.Load(makeArtifact(t, 1)))
	waitLoaded(t, s)

	err := s.Play()
	assert.ErrorIs(t, err, audio.ErrPlaybackRejected)
	assert.False(t, s.Playing())
}

func TestPlaybackSession_PlayToEnd(t *testing.T) {
	var ended atomic.Int32
	var lastUpdate atomic.Int64
	out := audiotest.NewOutput()
	s := audio.NewPlaybackSession(out, audio.PlaybackOptions{
		UpdateInterval: 5 * time.Millisecond,
		OnTimeUpdate:   func(pos time.Duration) { lastUpdate.Store(int64(pos)) },
		OnEnded:        func() { ended.Add(1) },
	})
	defer s.Close()

	require.NoError(t, s.Load(makeArtifact(t, 2)))
	waitLoaded(t, s)
	require.NoError(t, s.Play())
	assert.True(t, s.Playing())

	bps := testFormat.BytesPerSecond()
	out.Pump(bps)
	require.Eventually(t, func() bool {
		return time.Duration(lastUpdate.Load()) == time.Second
	}, time.Second, time.Millisecond)
	assert.Equal(t, time.Second, s.Position())

	out.Pump(10 * bps)
	require.Eventually(t, func() bool { return ended.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, s.Playing())
	assert.True(t, s.Ended())
	assert.Equal(t, 2*time.Second, s.Position())

	// Playing again restarts from zero on a fresh voice.
	require.NoError(t, s.Play())
	assert.Equal(t, 2, out.Voices())
	assert.Zero(t, s.Position())
}

func TestPlaybackSession_PauseIsIdempotent(t *testing.T) {
	out := audiotest.NewOutput()
	s := audio.NewPlaybackSession(out, audio.PlaybackOptions{UpdateInterval: time.Millisecond})
	defer s.Close()

	require.NoError(t, s.Load(makeArtifact(t, 1)))
	waitLoaded(t, s)
	require.NoError(t, s.Play())

	s.Pause()
	s.Pause()
	assert.False(t, s.Playing())
	assert.False(t, out.Current().IsPlaying())
	assert.Zero(t, out.Pump(100))
}

func TestPlaybackSession_LoadDetachesPrevious(t *testing.T) {
	out := audiotest.NewOutput()
	s := audio.NewPlaybackSession(out, audio.PlaybackOptions{})
	defer s.Close()

	require.NoError(t, s.Load(makeArtifact(t, 1)))
	waitLoaded(t, s)
	require.NoError(t, s.Play())
	first := out.Current()
	out.Pump(100)

	require.NoError(t, s.Load(makeArtifact(t, 1)))
	assert.True(t, first.Closed(), "previous voice must be closed before a new clip loads")
	assert.False(t, s.Playing())
	assert.Zero(t, s.Position())
}

func TestPlaybackSession_RejectsReleasedArtifact(t *testing.T) {
	s := audio.NewPlaybackSession(audiotest.NewOutput(), audio.PlaybackOptions{})
	defer s.Close()

	a := makeArtifact(t, 1)
	a.Release()
	assert.ErrorIs(t, s.Load(a), clip.ErrReleased)
	assert.Error(t, s.Load(nil))
}

func TestPlaybackSession_ClosedRefusesPlay(t *testing.T) {
	s := audio.NewPlaybackSession(audiotest.NewOutput(), audio.PlaybackOptions{})
	require.NoError(t, s.Load(makeArtifact(t, 1)))
	waitLoaded(t, s)
	s.Close()
	s.Close()

	assert.Error(t, s.Play())
}

func TestPlaybackSession_VoiceUsesClipFormat(t *testing.T) {
	stereo := clip.Format{SampleRate: 16000, Channels: 2, BitDepth: 16}
	data, err := clip.EncodeWAV(audiotest.Signal(stereo, 1, 8000), stereo)
	require.NoError(t, err)
	a, err := clip.NewArtifact(data, stereo)
	require.NoError(t, err)

	out := audiotest.NewOutput()
	s := audio.NewPlaybackSession(out, audio.PlaybackOptions{})
	defer s.Close()

	require.NoError(t, s.Load(a))
	waitLoaded(t, s)
	require.NoError(t, s.Play())

	assert.Equal(t, []clip.Format{stereo}, out.Formats())
}

func TestPlaybackSession_RejectsOtherFormat(t *testing.T) {
	out := audiotest.NewOutput()
	out.Format = clip.Format{SampleRate: 48000, Channels: 1, BitDepth: 16}
	s := audio.NewPlaybackSession(out, audio.PlaybackOptions{})
	defer s.Close()

	require.NoError(t, s.Load(makeArtifact(t, 1)))
	waitLoaded(t, s)

	err := s.Play()
	assert.ErrorIs(t, err, audio.ErrPlaybackRejected)
	assert.False(t, s.Playing())
	assert.Zero(t, out.Voices())
	assert.Equal(t, []clip.Format{testFormat}, out.Formats())
}
