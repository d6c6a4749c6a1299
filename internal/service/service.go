package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/audiolibrelab/cliprec/internal/audio"
	"github.com/audiolibrelab/cliprec/internal/clip"
	"github.com/audiolibrelab/cliprec/internal/config"
	"github.com/audiolibrelab/cliprec/internal/countdown"
	"github.com/audiolibrelab/cliprec/internal/metrics"
	"github.com/audiolibrelab/cliprec/internal/recorder"
	"github.com/audiolibrelab/cliprec/internal/store"
	"github.com/audiolibrelab/cliprec/internal/waveform"
)

// Service represents the core cliprec service interface
type Service interface {
	// Recording operations
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	ToggleRecording(ctx context.Context) error

	// Playback operations
	GoToPlayback(ctx context.Context) error
	TogglePlayPause(ctx context.Context) error

	// Clip operations
	Reset(ctx context.Context) error
	Submit(ctx context.Context) error
	LoadSaved(ctx context.Context) (*ClipInfo, error)
	GetSavedClipInfo(ctx context.Context) (*ClipInfo, error)

	// Pipeline operations
	RunPipeline(ctx context.Context, steps string, stop <-chan struct{}) error

	// State operations
	State() recorder.State
	Subscribe() (<-chan recorder.State, func())
	SubscribeNotices() (<-chan recorder.Notice, func())
	GetLastError() string

	// Waveform operations
	WriteWaveformPNG(w io.Writer) error

	// Configuration operations
	GetConfig() *config.Config
	Registry() *prometheus.Registry
}

// ClipInfo describes a clip held in the store slot
type ClipInfo struct {
	Key         string        `json:"key" yaml:"key"`
	ContentType string        `json:"contentType" yaml:"content_type"`
	Size        int           `json:"size" yaml:"size"`
	SizeHuman   string        `json:"sizeHuman" yaml:"size_human"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
	SampleRate  int           `json:"sampleRate" yaml:"sample_rate"`
	Channels    int           `json:"channels" yaml:"channels"`
	BitDepth    int           `json:"bitDepth" yaml:"bit_depth"`
}

// Deps overrides the collaborators New would otherwise build from config.
type Deps struct {
	Input    audio.InputDevice
	Output   audio.OutputDevice
	Store    store.Store
	Surface  waveform.Surface
	Clock    countdown.Clock
	Registry *prometheus.Registry
	Notifier recorder.Notifier

	// MalgoDebug forwards miniaudio's own log lines to slog.
	MalgoDebug bool
}

// ClipService is the main service implementation
type ClipService struct {
	cfg      *config.Config
	machine  *recorder.Machine
	store    store.Store
	surface  waveform.Surface
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	noticeMutex sync.Mutex
	noticeSubs  map[chan recorder.Notice]struct{}

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

var _ Service = (*ClipService)(nil)

// New creates a new cliprec service instance
func New(cfg *config.Config, deps Deps) (*ClipService, error) {
	if deps.Input == nil {
		deps.Input = audio.NewInputDevice(cfg.Audio, deps.MalgoDebug)
	}
	if deps.Output == nil {
		deps.Output = audio.NewOutputDevice()
	}
	if deps.Store == nil {
		st, err := store.New(cfg.Storage)
		if err != nil {
			return nil, err
		}
		deps.Store = st
	}
	if deps.Surface == nil {
		deps.Surface = waveform.NewRaster(cfg.Waveform.Width, cfg.Waveform.Height)
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}

	s := &ClipService{
		cfg:        cfg,
		store:      deps.Store,
		surface:    deps.Surface,
		registry:   deps.Registry,
		metrics:    metrics.New(deps.Registry),
		noticeSubs: make(map[chan recorder.Notice]struct{}),
	}

	renderer := waveform.NewRenderer(deps.Surface, waveform.Options{
		FrameInterval: cfg.Waveform.FrameInterval,
		Stroke:        cfg.Waveform.StrokeColor.NRGBA,
		Fade:          cfg.Waveform.FadeColor.NRGBA,
		LineWidth:     cfg.Waveform.LineWidth,
	})

	notifier := recorder.Notifiers{recorder.NotifierFunc(s.onNotice)}
	if deps.Notifier != nil {
		notifier = append(notifier, deps.Notifier)
	}

	m, err := recorder.New(recorder.Options{
		Input:          deps.Input,
		Output:         deps.Output,
		Format:         audio.FormatFromConfig(cfg.Audio),
		Store:          deps.Store,
		Renderer:       renderer,
		StorageKey:     cfg.Storage.Key,
		MaxDuration:    cfg.Recorder.MaxDuration,
		TickInterval:   cfg.Recorder.TickInterval,
		FFTSize:        cfg.Recorder.FFTSize,
		UpdateInterval: cfg.Audio.UpdateInterval,
		Clock:          deps.Clock,
		Notifier:       notifier,
		Metrics:        s.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder: %w", err)
	}
	s.machine = m
	return s, nil
}

// Run drives the recorder until ctx is cancelled.
func (s *ClipService) Run(ctx context.Context) error {
	return s.machine.Run(ctx)
}

// Close releases the store connection
func (s *ClipService) Close() error {
	s.noticeMutex.Lock()
	for ch := range s.noticeSubs {
		close(ch)
	}
	s.noticeSubs = make(map[chan recorder.Notice]struct{})
	s.noticeMutex.Unlock()
	return s.store.Close()
}

// StartRecording acquires the input device and starts the countdown
func (s *ClipService) StartRecording(ctx context.Context) error {
	slog.Debug("Service.StartRecording called")
	s.clearLastError()
	err := s.machine.StartRecording(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
	}
	return err
}

// StopRecording stops the current recording session
func (s *ClipService) StopRecording(ctx context.Context) error {
	err := s.machine.StopRecording(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to stop recording: %v", err))
	}
	return err
}

// ToggleRecording starts or stops depending on the current state
func (s *ClipService) ToggleRecording(ctx context.Context) error {
	err := s.machine.ToggleRecording(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to toggle recording: %v", err))
	}
	return err
}

// GoToPlayback switches to playback mode
func (s *ClipService) GoToPlayback(ctx context.Context) error {
	return s.machine.GoToPlayback(ctx)
}

// TogglePlayPause plays or pauses the clip
func (s *ClipService) TogglePlayPause(ctx context.Context) error {
	err := s.machine.TogglePlayPause(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to play: %v", err))
	} else {
		s.clearLastError()
	}
	return err
}

// Reset discards the clip and returns to recording mode
func (s *ClipService) Reset(ctx context.Context) error {
	s.clearLastError()
	return s.machine.Reset(ctx)
}

// Submit persists the clip and resets
func (s *ClipService) Submit(ctx context.Context) error {
	err := s.machine.SubmitRecording(ctx)
	if err != nil {
		s.setLastError(err.Error())
	}
	return err
}

// savedClip reads the store slot back into an artifact
func (s *ClipService) savedClip(ctx context.Context) (*clip.Artifact, *ClipInfo, error) {
	value, err := s.store.Get(ctx, s.cfg.Storage.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", s.cfg.Storage.Key, err)
	}
	a, err := clip.FromDataURL(value)
	if err != nil {
		return nil, nil, fmt.Errorf("stored value under %s is not a clip: %w", s.cfg.Storage.Key, err)
	}
	decoded, err := clip.DecodeWAV(a.Bytes())
	if err != nil {
		return nil, nil, err
	}
	info := &ClipInfo{
		Key:         s.cfg.Storage.Key,
		ContentType: a.ContentType(),
		Size:        a.Size(),
		SizeHuman:   formatBytes(int64(a.Size())),
		Duration:    decoded.Duration,
		SampleRate:  decoded.Format.SampleRate,
		Channels:    decoded.Format.Channels,
		BitDepth:    decoded.Format.BitDepth,
	}
	return a, info, nil
}

// GetSavedClipInfo describes the persisted clip without loading it
func (s *ClipService) GetSavedClipInfo(ctx context.Context) (*ClipInfo, error) {
	_, info, err := s.savedClip(ctx)
	return info, err
}

// LoadSaved makes the persisted clip the current clip
func (s *ClipService) LoadSaved(ctx context.Context) (*ClipInfo, error) {
	a, info, err := s.savedClip(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.machine.Load(ctx, a); err != nil {
		return nil, err
	}
	return info, nil
}

// RunPipeline executes a sequence of operations (r=record, p=play, s=submit).
// A record step ends at the cap or when stop fires.
func (s *ClipService) RunPipeline(ctx context.Context, steps string, stop <-chan struct{}) error {
	for _, step := range steps {
		switch step {
		case 'r', 'p', 's':
		default:
			return fmt.Errorf("unknown pipeline step: '%c' (valid: r=record, p=play, s=submit)", step)
		}
	}

	for _, step := range steps {
		var err error
		switch step {
		case 'r':
			if err = s.recordStep(ctx, stop); err != nil {
				return fmt.Errorf("pipeline record failed: %w", err)
			}
		case 'p':
			if err = s.playStep(ctx); err != nil {
				return fmt.Errorf("pipeline play failed: %w", err)
			}
		case 's':
			if err = s.Submit(ctx); err != nil {
				return fmt.Errorf("pipeline submit failed: %w", err)
			}
		}
	}
	return nil
}

func (s *ClipService) recordStep(ctx context.Context, stop <-chan struct{}) error {
	if err := s.StartRecording(ctx); err != nil {
		return err
	}

	states, cancel := s.machine.Subscribe()
	defer cancel()

	for {
		select {
		case st, ok := <-states:
			if !ok {
				return recorder.ErrClosed
			}
			if !st.IsRecording {
				return nil
			}
		case <-stop:
			stop = nil
			if err := s.StopRecording(ctx); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *ClipService) playStep(ctx context.Context) error {
	if !s.State().HasClip() {
		return recorder.ErrEmptyArtifact
	}

	if err := s.GoToPlayback(ctx); err != nil {
		return err
	}

	states, cancel := s.machine.Subscribe()
	defer cancel()

	started := false
	for {
		select {
		case st, ok := <-states:
			if !ok {
				return recorder.ErrClosed
			}
			if st.Mode != recorder.ModePlayback {
				return errors.New("playback was reset")
			}
			if !started && st.Ready {
				if err := s.TogglePlayPause(ctx); err != nil {
					return err
				}
				started = true
				continue
			}
			if started && st.Phase == recorder.PhasePlaybackEnded {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// State returns the current recorder state
func (s *ClipService) State() recorder.State {
	return s.machine.State()
}

func (s *ClipService) Subscribe() (<-chan recorder.State, func()) {
	return s.machine.Subscribe()
}

// SubscribeNotices returns user-facing notices as they happen. Notices are
// dropped for readers that fall behind.
func (s *ClipService) SubscribeNotices() (<-chan recorder.Notice, func()) {
	ch := make(chan recorder.Notice, 16)
	s.noticeMutex.Lock()
	s.noticeSubs[ch] = struct{}{}
	s.noticeMutex.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.noticeMutex.Lock()
			if _, ok := s.noticeSubs[ch]; ok {
				delete(s.noticeSubs, ch)
				close(ch)
			}
			s.noticeMutex.Unlock()
		})
	}
}

// onNotice runs on the recorder loop
func (s *ClipService) onNotice(n recorder.Notice) {
	switch n.Kind {
	case recorder.NoticeSaved:
		slog.Info("Recorder notice", "kind", n.Kind, "message", n.Message)
	default:
		slog.Warn("Recorder notice", "kind", n.Kind, "message", n.Message)
	}

	s.noticeMutex.Lock()
	defer s.noticeMutex.Unlock()
	for ch := range s.noticeSubs {
		select {
		case ch <- n:
		default:
		}
	}
}

// WriteWaveformPNG encodes the current waveform frame
func (s *ClipService) WriteWaveformPNG(w io.Writer) error {
	r, ok := s.surface.(*waveform.Raster)
	if !ok {
		return fmt.Errorf("waveform surface %T cannot be encoded as PNG", s.surface)
	}
	return r.WritePNG(w)
}

// GetConfig returns the current configuration
func (s *ClipService) GetConfig() *config.Config {
	return s.cfg
}

func (s *ClipService) Registry() *prometheus.Registry {
	return s.registry
}

func (s *ClipService) Metrics() *metrics.Metrics {
	return s.metrics
}

// GetLastError returns the last error message (thread-safe)
func (s *ClipService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *ClipService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *ClipService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
