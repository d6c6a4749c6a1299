package service

import (
	"bytes"
	"context"
	"image/png"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/cliprec/internal/audio/audiotest"
	"github.com/audiolibrelab/cliprec/internal/config"
	"github.com/audiolibrelab/cliprec/internal/countdown"
	"github.com/audiolibrelab/cliprec/internal/recorder"
	"github.com/audiolibrelab/cliprec/internal/store"
)

type fixture struct {
	svc    *ClipService
	input  *audiotest.Input
	output *audiotest.Output
	store  *store.Memory
	clock  *countdown.Manual
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Audio.SampleRate = 8000
	cfg.Audio.UpdateInterval = 5 * time.Millisecond
	cfg.Waveform.Width = 120
	cfg.Waveform.FrameInterval = 2 * time.Millisecond

	f := &fixture{
		input:  audiotest.NewInput(),
		output: audiotest.NewOutput(),
		store:  store.NewMemory(),
		clock:  countdown.NewManual(time.Unix(0, 0)),
	}
	svc, err := New(cfg, Deps{
		Input:  f.input,
		Output: f.output,
		Store:  f.store,
		Clock:  f.clock,
	})
	require.NoError(t, err)
	f.svc = svc

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		svc.Close()
	})
	return f
}

func (f *fixture) record(t *testing.T, seconds float64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.svc.StartRecording(ctx))
	require.True(t, f.input.EmitDuration(seconds, 4000))
	f.clock.Add(time.Duration(seconds * float64(time.Second)))
	require.NoError(t, f.svc.StopRecording(ctx))
}

func TestSubmitAndReadBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.record(t, 1)
	require.True(t, f.svc.State().HasClip())
	require.NoError(t, f.svc.Submit(ctx))
	assert.False(t, f.svc.State().HasClip())

	info, err := f.svc.GetSavedClipInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "recordedAudio", info.Key)
	assert.Equal(t, "audio/wav", info.ContentType)
	assert.Equal(t, time.Second, info.Duration)
	assert.Equal(t, 8000, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 16, info.BitDepth)
	assert.Contains(t, info.SizeHuman, "KB")

	loaded, err := f.svc.LoadSaved(ctx)
	require.NoError(t, err)
	assert.Equal(t, info.Size, loaded.Size)
	assert.True(t, f.svc.State().HasClip())

	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.Metrics().Saves))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.Metrics().RecordingsCompleted))
}

func TestReadBackEmptySlot(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetSavedClipInfo(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReadBackForeignValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, "recordedAudio", "data:text/plain;base64,aGk="))

	_, err := f.svc.LoadSaved(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a clip")
}

func TestNoticesAndLastError(t *testing.T) {
	f := newFixture(t)
	notices, cancel := f.svc.SubscribeNotices()
	defer cancel()

	err := f.svc.Submit(context.Background())
	assert.ErrorIs(t, err, recorder.ErrEmptyArtifact)
	assert.Contains(t, f.svc.GetLastError(), "no recording")

	select {
	case n := <-notices:
		assert.Equal(t, recorder.NoticeEmptyArtifact, n.Kind)
	case <-time.After(time.Second):
		t.Fatal("no notice delivered")
	}

	require.NoError(t, f.svc.Reset(context.Background()))
	assert.Empty(t, f.svc.GetLastError())
}

func TestRunPipelineRejectsUnknownStep(t *testing.T) {
	f := newFixture(t)
	err := f.svc.RunPipeline(context.Background(), "rx", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown pipeline step: 'x'")
	assert.Equal(t, 0, f.input.Opens(), "no step may run when the pipeline is invalid")
}

func TestRunPipelinePlayWithoutClip(t *testing.T) {
	f := newFixture(t)
	err := f.svc.RunPipeline(context.Background(), "p", nil)
	assert.ErrorIs(t, err, recorder.ErrEmptyArtifact)
}

func TestRunPipelineRecordPlaySubmit(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stop := make(chan struct{})
	go func() {
		for f.clock.Tickers() == 0 {
			time.Sleep(time.Millisecond)
		}
		f.input.EmitDuration(1, 4000)
		f.clock.Add(time.Second)
		close(stop)
	}()

	// drain voices as the sound card would
	pumpDone := make(chan struct{})
	defer close(pumpDone)
	go func() {
		for {
			select {
			case <-pumpDone:
				return
			default:
				f.output.Pump(4096)
				time.Sleep(time.Millisecond)
			}
		}
	}()

	require.NoError(t, f.svc.RunPipeline(ctx, "rps", stop))

	v, err := f.store.Get(ctx, "recordedAudio")
	require.NoError(t, err)
	assert.Contains(t, v, "data:audio/wav;base64,")
	assert.Equal(t, recorder.ModeRecording, f.svc.State().Mode)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.Metrics().PlaybackEnded))
}

func TestWriteWaveformPNG(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	require.NoError(t, f.svc.WriteWaveformPNG(&buf))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 120, img.Bounds().Dx())
	assert.Equal(t, 80, img.Bounds().Dy())
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2*1024*1024))
}
