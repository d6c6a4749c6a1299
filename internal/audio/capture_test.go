package audio_test

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/audiolibrelab/cliprec/internal/audio"
	"github.com/audiolibrelab/cliprec/internal/audio/audiotest"
	"github.com/audiolibrelab/cliprec/internal/clip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFormat = clip.Format{SampleRate: 8000, Channels: 1, BitDepth: 16}

func TestCaptureSession_StopWithoutStartIsNoop(t *testing.T) {
	s := audio.NewCaptureSession(audiotest.NewInput(), testFormat, 256)

	artifact, err := s.Stop()
	assert.NoError(t, err)
	assert.Nil(t, artifact)
}

func TestCaptureSession_DeviceDenied(t *testing.T) {
	in := audiotest.NewInput()
	in.Deny = audiotest.ErrDenied
	s := audio.NewCaptureSession(in, testFormat, 256)

	err := s.Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, audio.ErrDeviceUnavailable))
	assert.False(t, s.Active())
	assert.False(t, in.Held())
}

func TestCaptureSession_PreservesFragmentOrder(t *testing.T) {
	in := audiotest.NewInput()
	s := audio.NewCaptureSession(in, testFormat, 256)
	require.NoError(t, s.Start())
	require.True(t, s.Active())

	var want []byte
	for i := 0; i < 50; i++ {
		fragment := make([]byte, 2*(i+1))
		for j := 0; j < i+1; j++ {
			binary.LittleEndian.PutUint16(fragment[j*2:], uint16(i))
		}
		want = append(want, fragment...)
		require.True(t, in.Emit(fragment))
	}

	artifact, err := s.Stop()
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.False(t, in.Held(), "device must be released on stop")
	assert.False(t, in.Emit([]byte{1, 0}), "no callbacks after stop")

	decoded, err := clip.DecodeWAV(artifact.Bytes())
	require.NoError(t, err)
	assert.Equal(t, want, decoded.PCM)
}

func TestCaptureSession_DurationMatchesCapturedAudio(t *testing.T) {
	in := audiotest.NewInput()
	s := audio.NewCaptureSession(in, testFormat, 256)
	require.NoError(t, s.Start())

	for i := 0; i < 5; i++ {
		in.EmitDuration(1, 1000)
	}
	assert.Equal(t, 5*time.Second, s.Captured())

	artifact, err := s.Stop()
	require.NoError(t, err)

	decoded, err := clip.DecodeWAV(artifact.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, decoded.Duration)
	assert.Equal(t, clip.ContentType, artifact.ContentType())
}

func TestCaptureSession_EmptyCaptureYieldsNoArtifact(t *testing.T) {
	in := audiotest.NewInput()
	s := audio.NewCaptureSession(in, testFormat, 256)
	require.NoError(t, s.Start())

	artifact, err := s.Stop()
	assert.NoError(t, err)
	assert.Nil(t, artifact)
}

func TestCaptureSession_FeedsRing(t *testing.T) {
	in := audiotest.NewInput()
	s := audio.NewCaptureSession(in, testFormat, 256)
	require.NoError(t, s.Start())
	defer s.Stop()

	in.EmitDuration(0.1, 16384)

	a := audio.NewAnalyzer(s.Ring(), 256)
	buf := a.Refresh()
	require.Len(t, buf, 128)
	for _, b := range buf {
		assert.Contains(t, []byte{64, 192}, b)
	}
}
