package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/cliprec/internal/clip"
)

// CaptureSession owns an input stream between Start and Stop and turns the
// fragments it emits into a clip.
type CaptureSession struct {
	device InputDevice
	format clip.Format
	ring   *SampleRing

	mu        sync.Mutex
	stream    InputStream
	accepting bool
	fragments [][]byte
	size      int
}

// NewCaptureSession prepares a session; ringSize is the number of samples
// kept for visualization.
func NewCaptureSession(device InputDevice, format clip.Format, ringSize int) *CaptureSession {
	return &CaptureSession{
		device: device,
		format: format,
		ring:   NewSampleRing(ringSize, format.Channels),
	}
}

// Ring is the sample source analyzers bind to while capturing.
func (s *CaptureSession) Ring() *SampleRing { return s.ring }

// Active reports whether the device is held.
func (s *CaptureSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// Captured is the audio length buffered so far.
func (s *CaptureSession) Captured() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytesToDuration(s.size, s.format)
}

// Start acquires the device and begins buffering. Failures wrap
// ErrDeviceUnavailable and leave the session closed.
func (s *CaptureSession) Start() error {
	s.mu.Lock()
	if s.stream != nil {
		s.mu.Unlock()
		return errors.New("capture already started")
	}
	s.fragments = nil
	s.size = 0
	s.mu.Unlock()

	stream, err := s.device.Open(s.format, s.onData)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	s.mu.Lock()
	s.stream = stream
	s.accepting = true
	s.mu.Unlock()

	if err := stream.Start(); err != nil {
		s.release()
		return fmt.Errorf("%w: failed to start stream: %v", ErrDeviceUnavailable, err)
	}

	slog.Debug("Capture started", "sample_rate", s.format.SampleRate, "channels", s.format.Channels)
	return nil
}

// onData appends one fragment. Fragments are kept in the order the device
// delivers them.
func (s *CaptureSession) onData(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	fragment := make([]byte, len(pcm))
	copy(fragment, pcm)

	s.mu.Lock()
	if !s.accepting {
		s.mu.Unlock()
		return
	}
	s.fragments = append(s.fragments, fragment)
	s.size += len(fragment)
	s.mu.Unlock()

	s.ring.Write(fragment)
}

// Stop releases the device and encodes the buffered fragments. It returns
// a nil artifact when nothing was captured, and is a no-op when the
// session is not started.
func (s *CaptureSession) Stop() (*clip.Artifact, error) {
	if !s.release() {
		return nil, nil
	}

	s.mu.Lock()
	fragments := s.fragments
	size := s.size
	s.fragments = nil
	s.size = 0
	s.mu.Unlock()

	frame := 2 * s.format.Channels
	size -= size % frame
	if size == 0 {
		slog.Debug("Capture stopped with no data")
		return nil, nil
	}

	pcm := make([]byte, 0, size)
	for _, f := range fragments {
		pcm = append(pcm, f...)
	}
	pcm = pcm[:size]

	data, err := clip.EncodeWAV(pcm, s.format)
	if err != nil {
		return nil, fmt.Errorf("failed to encode clip: %w", err)
	}
	artifact, err := clip.NewArtifact(data, s.format)
	if err != nil {
		return nil, err
	}

	slog.Debug("Capture stopped", "bytes", len(data), "duration", bytesToDuration(size, s.format))
	return artifact, nil
}

// release closes the stream outside the lock, since closing waits for the
// device callback which itself takes the lock.
func (s *CaptureSession) release() bool {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.accepting = false
	s.mu.Unlock()

	if stream == nil {
		return false
	}
	if err := stream.Close(); err != nil {
		slog.Warn("Failed to close capture stream", "error", err)
	}
	return true
}

func bytesToDuration(n int, f clip.Format) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}
