package audio

import (
	"errors"
	"io"

	"github.com/audiolibrelab/cliprec/internal/clip"
)

var (
	// ErrDeviceUnavailable is returned when input access is denied or no
	// capture device exists.
	ErrDeviceUnavailable = errors.New("audio input device unavailable")

	// ErrPlaybackRejected is returned when the output device refuses to
	// start playback. Callers should offer a retry.
	ErrPlaybackRejected = errors.New("playback rejected by output device")

	// ErrDurationUnknown is returned by Play while the clip is still decoding.
	ErrDurationUnknown = errors.New("clip duration not yet known")

	ErrSessionClosed = errors.New("session closed")
)

// InputDevice grants exclusive access to a capture stream.
type InputDevice interface {
	// Open acquires the device. onData receives interleaved S16LE PCM in
	// emission order; the slice is only valid during the call.
	Open(format clip.Format, onData func(pcm []byte)) (InputStream, error)
}

// InputStream is an acquired capture stream.
type InputStream interface {
	Start() error
	// Close stops the stream and releases the device. No onData call runs
	// after Close returns.
	Close() error
}

// OutputDevice plays PCM through a platform sink.
type OutputDevice interface {
	// Resume makes the sink ready to play. It fails when the platform
	// blocks playback.
	Resume() error
	// NewVoice starts a stream of S16LE PCM in format. Devices that cannot
	// play format return an error.
	NewVoice(format clip.Format, src io.Reader) (Voice, error)
}

// Voice is one playing stream on an OutputDevice. *oto.Player satisfies it.
type Voice interface {
	Play()
	Pause()
	IsPlaying() bool
	// BufferedSize is the number of bytes read from src but not yet heard.
	BufferedSize() int
	Close() error
}
