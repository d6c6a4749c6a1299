package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/cliprec/internal/audio"
	"github.com/audiolibrelab/cliprec/internal/clip"
	"github.com/audiolibrelab/cliprec/internal/countdown"
	"github.com/audiolibrelab/cliprec/internal/metrics"
	"github.com/audiolibrelab/cliprec/internal/store"
	"github.com/audiolibrelab/cliprec/internal/waveform"
)

const DefaultStorageKey = "recordedAudio"

// Options wires a Machine to its devices and collaborators.
type Options struct {
	Input    audio.InputDevice
	Output   audio.OutputDevice
	Format   clip.Format
	Store    store.Store
	Renderer *waveform.Renderer

	StorageKey     string
	MaxDuration    time.Duration
	TickInterval   time.Duration
	FFTSize        int
	UpdateInterval time.Duration
	Clock          countdown.Clock

	// Decode overrides how clips are decoded for playback.
	Decode func(*clip.Artifact) (*clip.Decoded, error)

	Notifier Notifier
	Metrics  *metrics.Metrics
}

// Machine orchestrates recording and playback. Every state change happens
// on the goroutine running Run; public methods post events to it and wait
// for the result.
type Machine struct {
	opts      Options
	countdown *countdown.Controller
	renderer  *waveform.Renderer

	// event queue, never blocks producers
	qmu    sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool

	running atomic.Bool
	done    chan struct{}

	// loop-owned
	state       State
	closing     bool
	artifact    *clip.Artifact
	capture     *audio.CaptureSession
	granted     bool
	startWait   chan error
	recGen      uint64
	playback    *audio.PlaybackSession
	playGen     uint64
	playPending bool
	playWait    chan error
	analyzer    *audio.Analyzer

	smu        sync.Mutex
	published  State
	subs       map[chan State]struct{}
	subsClosed bool
}

func New(opts Options) (*Machine, error) {
	if opts.Input == nil {
		return nil, errors.New("input device is required")
	}
	if opts.Output == nil {
		return nil, errors.New("output device is required")
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if opts.Format.SampleRate <= 0 || opts.Format.Channels <= 0 {
		return nil, fmt.Errorf("invalid sample format: %d Hz, %d channels", opts.Format.SampleRate, opts.Format.Channels)
	}
	if opts.MaxDuration != 0 && !countdown.ValidCap(opts.MaxDuration) {
		return nil, fmt.Errorf("max duration must be a whole number of seconds, at least 1s: %s", opts.MaxDuration)
	}
	if opts.StorageKey == "" {
		opts.StorageKey = DefaultStorageKey
	}
	if opts.FFTSize <= 0 {
		opts.FFTSize = audio.DefaultFFTSize
	}
	if opts.Notifier == nil {
		opts.Notifier = Notifiers(nil)
	}

	cd := countdown.New(opts.MaxDuration, opts.TickInterval, opts.Clock)
	m := &Machine{
		opts:      opts,
		countdown: cd,
		renderer:  opts.Renderer,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		state:     initialState(cd.Cap()),
		subs:      make(map[chan State]struct{}),
	}
	m.published = m.state
	return m, nil
}

// Cap is the maximum recording length.
func (m *Machine) Cap() time.Duration { return m.countdown.Cap() }

// Surface is the drawing surface the waveform is painted on.
func (m *Machine) Surface() waveform.Surface { return m.renderer.Surface() }

// Run processes events until ctx is cancelled, then releases every device
// and session.
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("recorder already running")
	}
	defer close(m.done)

	slog.Debug("Recorder loop started", "cap", m.Cap())
	for {
		if fn, ok := m.next(); ok {
			fn()
			m.publish()
			continue
		}
		select {
		case <-m.wake:
		case <-ctx.Done():
			m.shutdown()
			slog.Debug("Recorder loop stopped")
			return nil
		}
	}
}

// Done is closed when Run returned.
func (m *Machine) Done() <-chan struct{} { return m.done }

// post queues fn for the loop. It reports false once the loop has shut down.
func (m *Machine) post(fn func()) bool {
	m.qmu.Lock()
	if m.closed {
		m.qmu.Unlock()
		return false
	}
	m.queue = append(m.queue, fn)
	m.qmu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

func (m *Machine) next() (func(), bool) {
	m.qmu.Lock()
	defer m.qmu.Unlock()
	if len(m.queue) == 0 {
		return nil, false
	}
	fn := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	return fn, true
}

func (m *Machine) shutdown() {
	m.closing = true
	m.teardown()

	m.qmu.Lock()
	m.closed = true
	pending := m.queue
	m.queue = nil
	m.qmu.Unlock()

	// Late completions release what they hold; calls get ErrClosed.
	for _, fn := range pending {
		fn()
	}
	m.publish()

	m.smu.Lock()
	for ch := range m.subs {
		close(ch)
	}
	m.subs = make(map[chan State]struct{})
	m.subsClosed = true
	m.smu.Unlock()
}

// call runs fn on the loop and waits for its result. fn is skipped when
// ctx is already done by the time the loop reaches it.
func (m *Machine) call(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	ok := m.post(func() {
		if m.closing {
			res <- ErrClosed
			return
		}
		if err := ctx.Err(); err != nil {
			res <- err
			return
		}
		err := fn()
		m.publish()
		res <- err
	})
	if !ok {
		return ErrClosed
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await waits on a completion handed out by the loop.
func await(ctx context.Context, wait <-chan error) error {
	if wait == nil {
		return nil
	}
	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the last published state.
func (m *Machine) State() State {
	m.smu.Lock()
	defer m.smu.Unlock()
	return m.published
}

// Subscribe returns a channel carrying the latest state. Slow readers skip
// intermediate states. The channel closes when the machine stops or the
// returned cancel func is called.
func (m *Machine) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	m.smu.Lock()
	ch <- m.published
	if m.subsClosed {
		close(ch)
		m.smu.Unlock()
		return ch, func() {}
	}
	m.subs[ch] = struct{}{}
	m.smu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.smu.Lock()
			if _, ok := m.subs[ch]; ok {
				delete(m.subs, ch)
				close(ch)
			}
			m.smu.Unlock()
		})
	}
}

func (m *Machine) publish() {
	m.smu.Lock()
	defer m.smu.Unlock()
	if m.state == m.published {
		return
	}
	m.published = m.state
	for ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- m.state
	}
}

func (m *Machine) notify(kind NoticeKind, message string) {
	slog.Debug("Recorder notice", "kind", kind, "message", message)
	m.opts.Notifier.Notify(Notice{Kind: kind, Message: message})
}

func (m *Machine) zeroDisplay() string {
	return countdown.FormatDisplay(0, m.countdown.Cap())
}

// StartRecording releases any previous clip and acquires the input device.
// It returns once the device was granted or refused. Calls made while a
// recording is active or pending are ignored.
func (m *Machine) StartRecording(ctx context.Context) error {
	var wait <-chan error
	if err := m.call(ctx, func() error {
		wait = m.startRecording()
		return nil
	}); err != nil {
		return err
	}
	return await(ctx, wait)
}

func (m *Machine) startRecording() <-chan error {
	if m.state.IsRecording {
		slog.Debug("Start ignored, already recording")
		return nil
	}

	m.teardownPlayback()
	m.releaseArtifact()

	m.state.Mode = ModeRecording
	m.state.Phase = PhaseRecording
	m.state.IsRecording = true
	m.state.IsPlaying = false
	m.state.Ready = false
	m.state.NextEnabled = false
	m.state.RecordingTimeDisplay = m.zeroDisplay()
	m.state.PlaybackTimeDisplay = m.zeroDisplay()

	m.recGen++
	gen := m.recGen
	cs := audio.NewCaptureSession(m.opts.Input, m.opts.Format, m.opts.FFTSize)
	m.capture = cs
	m.granted = false
	m.startWait = make(chan error, 1)

	go func() {
		err := cs.Start()
		if !m.post(func() { m.onGrant(gen, cs, err) }) && err == nil {
			if _, serr := cs.Stop(); serr != nil {
				slog.Debug("Failed to release late capture", "error", serr)
			}
		}
	}()

	slog.Info("Recording requested", "cap", m.Cap())
	return m.startWait
}

func (m *Machine) onGrant(gen uint64, cs *audio.CaptureSession, err error) {
	if gen != m.recGen || m.capture != cs {
		if err == nil {
			slog.Debug("Releasing input granted after stop")
			if _, serr := cs.Stop(); serr != nil {
				slog.Debug("Failed to release late capture", "error", serr)
			}
		}
		return
	}

	if err != nil {
		slog.Warn("Input device unavailable", "error", err)
		m.capture = nil
		m.state.IsRecording = false
		m.state.Phase = PhaseIdle
		m.opts.Metrics.DeviceDenied()
		m.notify(NoticeDeviceUnavailable, "Microphone is not available. Check that a device is connected and access is allowed.")
		m.resolveStart(err)
		return
	}

	m.granted = true
	m.analyzer = audio.NewAnalyzer(cs.Ring(), m.opts.FFTSize)
	m.renderer.Start(m.analyzer)
	m.countdown.Start(func(elapsed time.Duration) {
		m.post(func() { m.onTick(gen, elapsed) })
	})
	m.opts.Metrics.RecordingStarted()
	slog.Info("Recording started", "sample_rate", m.opts.Format.SampleRate, "channels", m.opts.Format.Channels)
	m.resolveStart(nil)
}

func (m *Machine) resolveStart(err error) {
	if m.startWait != nil {
		m.publish()
		m.startWait <- err
		m.startWait = nil
	}
}

func (m *Machine) onTick(gen uint64, elapsed time.Duration) {
	if gen != m.recGen || !m.state.IsRecording {
		return
	}
	m.state.RecordingTimeDisplay = m.countdown.Display(elapsed)
	if m.countdown.Reached(elapsed) {
		slog.Info("Recording reached cap", "cap", m.Cap())
		m.finishRecording(true)
	}
}

// StopRecording ends the current recording and keeps its clip. Stopping
// while nothing records is a no-op.
func (m *Machine) StopRecording(ctx context.Context) error {
	return m.call(ctx, func() error {
		if !m.state.IsRecording {
			return nil
		}
		m.finishRecording(false)
		return nil
	})
}

// ToggleRecording starts or stops depending on the current state.
func (m *Machine) ToggleRecording(ctx context.Context) error {
	var wait <-chan error
	if err := m.call(ctx, func() error {
		if m.state.IsRecording {
			m.finishRecording(false)
			return nil
		}
		wait = m.startRecording()
		return nil
	}); err != nil {
		return err
	}
	return await(ctx, wait)
}

func (m *Machine) finishRecording(auto bool) {
	a := m.stopCapture(auto)

	m.state.IsRecording = false
	m.state.RecordingTimeDisplay = m.zeroDisplay()
	if a != nil {
		m.artifact = a
		m.state.AudioURL = a.Ref()
		m.state.Phase = PhaseStopped
	} else {
		m.state.Phase = PhaseIdle
	}
	if auto {
		m.state.NextEnabled = true
	}
}

// stopCapture is the single exit path for a capture session. It cancels
// the countdown and the draw loop before releasing the device.
func (m *Machine) stopCapture(auto bool) *clip.Artifact {
	m.countdown.Stop()
	m.renderer.Stop()
	if m.analyzer != nil {
		m.analyzer.Detach()
		m.analyzer = nil
	}

	cs := m.capture
	m.capture = nil
	m.recGen++
	if cs == nil {
		return nil
	}

	if !m.granted {
		// The grant goroutine releases the device when it completes.
		m.resolveStart(ErrRecordingAborted)
		slog.Info("Recording aborted while waiting for the device")
		return nil
	}
	m.granted = false

	captured := cs.Captured()
	a, err := cs.Stop()
	if err != nil {
		slog.Warn("Failed to finalize recording", "error", err)
		return nil
	}

	size := 0
	if a != nil {
		size = a.Size()
	}
	m.opts.Metrics.RecordingFinished(captured, size, auto)
	slog.Info("Recording stopped", "duration", captured, "bytes", size)
	return a
}

// GoToPlayback switches to playback mode for the current clip. Without a
// clip it is a no-op.
func (m *Machine) GoToPlayback(ctx context.Context) error {
	return m.call(ctx, m.goToPlayback)
}

func (m *Machine) goToPlayback() error {
	if m.artifact == nil || m.artifact.Released() || m.state.IsRecording {
		slog.Debug("Playback ignored, no clip")
		return nil
	}
	if m.state.Mode == ModePlayback && m.playback != nil {
		return nil
	}

	m.teardownPlayback()

	m.playGen++
	gen := m.playGen
	ps := audio.NewPlaybackSession(m.opts.Output, audio.PlaybackOptions{
		UpdateInterval: m.opts.UpdateInterval,
		RingSize:       m.opts.FFTSize,
		Decode:         m.opts.Decode,
		OnTimeUpdate: func(pos time.Duration) {
			m.post(func() { m.onTimeUpdate(gen, pos) })
		},
		OnEnded: func() {
			m.post(func() { m.onEnded(gen) })
		},
	})
	if err := ps.Load(m.artifact); err != nil {
		ps.Close()
		return fmt.Errorf("failed to load clip: %w", err)
	}

	m.playback = ps
	m.analyzer = audio.NewAnalyzer(ps.Ring(), m.opts.FFTSize)
	m.renderer.Clear()

	m.state.Mode = ModePlayback
	m.state.Phase = PhasePlaybackPaused
	m.state.IsPlaying = false
	m.state.Ready = false
	m.state.PlaybackTimeDisplay = m.zeroDisplay()

	loaded := ps.Loaded()
	go func() {
		<-loaded
		m.post(func() { m.onLoaded(gen) })
	}()

	slog.Info("Entered playback", "ref", m.artifact.Ref())
	return nil
}

func (m *Machine) onLoaded(gen uint64) {
	if gen != m.playGen || m.playback == nil {
		return
	}
	d, ok := m.playback.Duration()
	m.state.Ready = ok
	if ok {
		slog.Debug("Clip decoded", "duration", d)
	}
}

// TogglePlayPause plays or pauses the clip. It is a no-op outside playback
// mode, while the clip duration is unknown, and while a play request is
// pending. A refused play returns audio.ErrPlaybackRejected.
func (m *Machine) TogglePlayPause(ctx context.Context) error {
	var wait <-chan error
	if err := m.call(ctx, func() error {
		wait = m.togglePlayPause()
		return nil
	}); err != nil {
		return err
	}
	return await(ctx, wait)
}

func (m *Machine) togglePlayPause() <-chan error {
	ps := m.playback
	if m.state.Mode != ModePlayback || ps == nil || m.playPending {
		return nil
	}
	if _, ok := ps.Duration(); !ok {
		slog.Debug("Play ignored, duration not known yet")
		return nil
	}

	if m.state.IsPlaying {
		ps.Pause()
		m.renderer.Stop()
		m.state.IsPlaying = false
		m.state.Phase = PhasePlaybackPaused
		m.state.PlaybackTimeDisplay = countdown.FormatDisplay(ps.Position(), m.Cap())
		return nil
	}

	gen := m.playGen
	m.playPending = true
	m.playWait = make(chan error, 1)
	go func() {
		err := ps.Play()
		m.post(func() { m.onPlayResult(gen, ps, err) })
	}()
	return m.playWait
}

func (m *Machine) onPlayResult(gen uint64, ps *audio.PlaybackSession, err error) {
	if gen != m.playGen || m.playback != ps {
		if err == nil {
			ps.Pause()
		}
		return
	}
	m.playPending = false

	if err != nil {
		slog.Warn("Playback rejected", "error", err)
		m.state.IsPlaying = false
		m.opts.Metrics.PlaybackRejected()
		m.notify(NoticePlaybackRejected, "Playback was blocked. Press play again to retry.")
		m.resolvePlay(err)
		return
	}

	m.state.IsPlaying = true
	m.state.Phase = PhasePlaybackActive
	m.state.PlaybackTimeDisplay = countdown.FormatDisplay(ps.Position(), m.Cap())
	if m.analyzer != nil {
		m.renderer.Start(m.analyzer)
	}
	m.opts.Metrics.PlaybackStarted()
	m.resolvePlay(nil)
}

func (m *Machine) resolvePlay(err error) {
	if m.playWait != nil {
		m.publish()
		m.playWait <- err
		m.playWait = nil
	}
}

func (m *Machine) onTimeUpdate(gen uint64, pos time.Duration) {
	if gen != m.playGen || !m.state.IsPlaying {
		return
	}
	m.state.PlaybackTimeDisplay = countdown.FormatDisplay(pos, m.Cap())
}

func (m *Machine) onEnded(gen uint64) {
	if gen != m.playGen || m.playback == nil {
		return
	}
	// a pause or restart may have run since the session drained
	if !m.playback.Ended() {
		return
	}
	m.renderer.Stop()
	m.state.IsPlaying = false
	m.state.Phase = PhasePlaybackEnded
	m.state.PlaybackTimeDisplay = countdown.FormatDisplay(m.Cap(), m.Cap())
	m.opts.Metrics.PlaybackFinished()
	slog.Debug("Playback ended")
}

// teardownPlayback is the single exit path for a playback session.
func (m *Machine) teardownPlayback() {
	if m.playback == nil {
		return
	}
	m.renderer.Stop()
	if m.analyzer != nil {
		m.analyzer.Detach()
		m.analyzer = nil
	}
	m.playback.Close()
	m.playback = nil
	m.playGen++
	m.playPending = false
	m.resolvePlay(ErrPlaybackAborted)
	m.state.IsPlaying = false
	m.state.Ready = false
}

func (m *Machine) releaseArtifact() {
	if m.artifact != nil {
		m.artifact.Release()
		m.artifact = nil
	}
	m.state.AudioURL = ""
}

// teardown releases everything and returns to the initial state.
func (m *Machine) teardown() {
	m.stopCapture(false)
	m.teardownPlayback()
	m.releaseArtifact()
	m.renderer.Clear()
	m.state = initialState(m.countdown.Cap())
}

// Reset discards the clip, cancels every loop and releases all devices.
// Idempotent.
func (m *Machine) Reset(ctx context.Context) error {
	return m.call(ctx, func() error {
		m.teardown()
		slog.Debug("Recorder reset")
		return nil
	})
}

// Load replaces the current clip with a, e.g. one read back from the store.
// It is ignored while recording.
func (m *Machine) Load(ctx context.Context, a *clip.Artifact) error {
	if a == nil {
		return ErrEmptyArtifact
	}
	return m.call(ctx, func() error {
		if m.state.IsRecording {
			return nil
		}
		m.teardownPlayback()
		m.releaseArtifact()
		m.artifact = a
		m.state = initialState(m.countdown.Cap())
		m.state.Phase = PhaseStopped
		m.state.AudioURL = a.Ref()
		return nil
	})
}

// SubmitRecording stores the clip as a data URL and resets. Without a clip
// it returns ErrEmptyArtifact and writes nothing. A store failure keeps the
// clip and returns ErrPersistenceFailure.
func (m *Machine) SubmitRecording(ctx context.Context) error {
	return m.call(ctx, func() error {
		if m.artifact == nil || m.artifact.Released() {
			m.notify(NoticeEmptyArtifact, "No recording found!")
			return ErrEmptyArtifact
		}

		if err := m.opts.Store.Set(ctx, m.opts.StorageKey, m.artifact.DataURL()); err != nil {
			slog.Error("Failed to persist recording", "key", m.opts.StorageKey, "error", err)
			m.opts.Metrics.Saved(false)
			m.notify(NoticePersistenceFailure, "Failed to save the recording.")
			return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		}

		slog.Info("Recording stored", "key", m.opts.StorageKey, "bytes", m.artifact.Size())
		m.opts.Metrics.Saved(true)
		m.notify(NoticeSaved, "Recording successfully stored!")
		m.teardown()
		return nil
	})
}
