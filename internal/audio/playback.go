package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/cliprec/internal/clip"
)

// DefaultUpdateInterval is how often position updates fire while playing.
const DefaultUpdateInterval = 250 * time.Millisecond

// PlaybackOptions configures a PlaybackSession.
type PlaybackOptions struct {
	UpdateInterval time.Duration
	RingSize       int

	// Decode turns the artifact into PCM. Defaults to clip.DecodeWAV.
	Decode func(*clip.Artifact) (*clip.Decoded, error)

	// OnTimeUpdate and OnEnded run on the session's monitor goroutine and
	// must not block or call back into the session.
	OnTimeUpdate func(position time.Duration)
	OnEnded      func()
}

// PlaybackSession plays one loaded clip on an OutputDevice.
type PlaybackSession struct {
	out  OutputDevice
	opts PlaybackOptions
	ring *SampleRing

	mu       sync.Mutex
	artifact *clip.Artifact
	decoded  *clip.Decoded
	loaded   chan struct{}
	voice    Voice
	reader   *tapReader
	playing  bool
	ended    bool
	closed   bool

	monitorStop chan struct{}
	monitorDone chan struct{}
}

func NewPlaybackSession(out OutputDevice, opts PlaybackOptions) *PlaybackSession {
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = DefaultUpdateInterval
	}
	if opts.RingSize <= 0 {
		opts.RingSize = DefaultFFTSize
	}
	if opts.Decode == nil {
		opts.Decode = func(a *clip.Artifact) (*clip.Decoded, error) {
			return clip.DecodeWAV(a.Bytes())
		}
	}
	return &PlaybackSession{
		out:  out,
		opts: opts,
		ring: NewSampleRing(opts.RingSize, 1),
	}
}

// Ring is the sample source analyzers bind to while playing.
func (s *PlaybackSession) Ring() *SampleRing { return s.ring }

// Load binds an artifact and starts decoding it in the background. Any
// previously loaded clip is detached first. Playback does not start.
func (s *PlaybackSession) Load(a *clip.Artifact) error {
	if a == nil || a.Released() {
		return fmt.Errorf("cannot load clip: %w", clip.ErrReleased)
	}
	s.Rewind()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	loaded := make(chan struct{})
	s.ring.SetChannels(a.Format().Channels)
	s.artifact = a
	s.decoded = nil
	s.loaded = loaded
	s.mu.Unlock()

	go func() {
		defer close(loaded)
		decoded, err := s.opts.Decode(a)
		if err != nil {
			slog.Warn("Failed to decode clip", "ref", a.Ref(), "error", err)
			return
		}
		s.mu.Lock()
		if s.artifact == a && !s.closed {
			s.decoded = decoded
		}
		s.mu.Unlock()
	}()
	return nil
}

// Loaded is closed once the current decode finished, successfully or not.
func (s *PlaybackSession) Loaded() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return s.loaded
}

// Duration returns the clip length; ok is false until decoding finished.
func (s *PlaybackSession) Duration() (d time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decoded == nil {
		return 0, false
	}
	return s.decoded.Duration, true
}

func (s *PlaybackSession) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *PlaybackSession) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Position is the current play cursor.
func (s *PlaybackSession) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *PlaybackSession) positionLocked() time.Duration {
	if s.decoded == nil {
		return 0
	}
	if s.ended {
		return s.decoded.Duration
	}
	if s.reader == nil || s.voice == nil {
		return 0
	}
	heard := int(s.reader.consumed.Load()) - s.voice.BufferedSize()
	if heard < 0 {
		heard = 0
	}
	pos := bytesToDuration(heard, s.decoded.Format)
	if pos > s.decoded.Duration {
		pos = s.decoded.Duration
	}
	return pos
}

// Play starts or resumes playback. It fails with ErrDurationUnknown while
// the clip is decoding and with ErrPlaybackRejected when the output device
// refuses. Playing an ended clip restarts it from zero.
func (s *PlaybackSession) Play() error {
	if _, ok := s.Duration(); !ok {
		return ErrDurationUnknown
	}
	if err := s.out.Resume(); err != nil {
		return fmt.Errorf("%w: %v", ErrPlaybackRejected, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.decoded == nil {
		return ErrDurationUnknown
	}
	if s.playing {
		return nil
	}
	if s.ended {
		s.detachVoiceLocked()
	}
	if s.voice == nil {
		reader := &tapReader{r: bytes.NewReader(s.decoded.PCM), ring: s.ring}
		voice, err := s.out.NewVoice(s.decoded.Format, reader)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPlaybackRejected, err)
		}
		s.voice = voice
		s.reader = reader
	}

	s.voice.Play()
	s.playing = true
	s.startMonitorLocked()
	return nil
}

// Pause suspends playback. Idempotent.
func (s *PlaybackSession) Pause() {
	s.mu.Lock()
	if s.playing && s.voice != nil {
		s.voice.Pause()
	}
	s.playing = false
	stop, done := s.takeMonitorLocked()
	s.mu.Unlock()

	waitMonitor(stop, done)
}

// Rewind stops playback, drops the voice and resets the cursor to zero,
// so nothing of the previous stream can still be heard.
func (s *PlaybackSession) Rewind() {
	s.Pause()

	s.mu.Lock()
	s.detachVoiceLocked()
	s.mu.Unlock()
	s.ring.Reset()
}

// Close rewinds and releases the session. Idempotent.
func (s *PlaybackSession) Close() {
	s.Rewind()

	s.mu.Lock()
	s.closed = true
	s.artifact = nil
	s.decoded = nil
	s.mu.Unlock()
}

func (s *PlaybackSession) detachVoiceLocked() {
	if s.voice != nil {
		s.voice.Pause()
		if err := s.voice.Close(); err != nil {
			slog.Debug("Failed to close voice", "error", err)
		}
	}
	s.voice = nil
	s.reader = nil
	s.ended = false
}

func (s *PlaybackSession) startMonitorLocked() {
	if s.monitorStop != nil {
		// Left over from a stream that ended on its own; it has exited.
		close(s.monitorStop)
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	s.monitorStop, s.monitorDone = stop, done
	go s.monitor(stop, done)
}

func (s *PlaybackSession) takeMonitorLocked() (chan struct{}, chan struct{}) {
	stop, done := s.monitorStop, s.monitorDone
	s.monitorStop, s.monitorDone = nil, nil
	return stop, done
}

func waitMonitor(stop, done chan struct{}) {
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// monitor reports the cursor and detects the end of the stream.
func (s *PlaybackSession) monitor(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if !s.playing || s.voice == nil {
			s.mu.Unlock()
			return
		}
		drained := s.reader.eof.Load() && !s.voice.IsPlaying()
		if drained {
			s.playing = false
			s.ended = true
		}
		pos := s.positionLocked()
		s.mu.Unlock()

		if drained {
			if s.opts.OnEnded != nil {
				s.opts.OnEnded()
			}
			return
		}
		if s.opts.OnTimeUpdate != nil {
			s.opts.OnTimeUpdate(pos)
		}
	}
}

// tapReader feeds PCM to a voice while copying what it hands out into the
// visualization ring.
type tapReader struct {
	r        *bytes.Reader
	ring     *SampleRing
	consumed atomic.Int64
	eof      atomic.Bool
}

func (t *tapReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		t.ring.Write(p[:n])
		t.consumed.Add(int64(n))
	}
	if errors.Is(err, io.EOF) {
		t.eof.Store(true)
	}
	return n, err
}
