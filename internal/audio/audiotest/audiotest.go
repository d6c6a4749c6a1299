// Package audiotest provides in-memory input and output devices for tests.
package audiotest

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"github.com/audiolibrelab/cliprec/internal/audio"
	"github.com/audiolibrelab/cliprec/internal/clip"
)

var (
	ErrDenied         = errors.New("permission denied")
	ErrFormatMismatch = errors.New("sink opened in another format")
)

// Input is a fake capture device. Emit pushes PCM through the open
// stream's callback as the device thread would.
type Input struct {
	mu      sync.Mutex
	Deny    error
	gate    chan struct{}
	onData  func([]byte)
	format  clip.Format
	opened  int
	closed  int
	started bool
}

func NewInput() *Input {
	return &Input{}
}

// Hold makes the next Open block until Release is called, like a pending
// permission prompt.
func (in *Input) Hold() {
	in.mu.Lock()
	in.gate = make(chan struct{})
	in.mu.Unlock()
}

func (in *Input) Release() {
	in.mu.Lock()
	gate := in.gate
	in.gate = nil
	in.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

func (in *Input) Open(format clip.Format, onData func([]byte)) (audio.InputStream, error) {
	in.mu.Lock()
	gate := in.gate
	in.mu.Unlock()
	if gate != nil {
		<-gate
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.Deny != nil {
		return nil, in.Deny
	}
	in.opened++
	in.onData = onData
	in.format = format
	return &inputStream{in: in}, nil
}

// Emit delivers one fragment if a stream is running.
func (in *Input) Emit(pcm []byte) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.started || in.onData == nil {
		return false
	}
	in.onData(pcm)
	return true
}

// EmitDuration delivers d worth of a constant-amplitude signal.
func (in *Input) EmitDuration(seconds float64, amplitude int16) bool {
	in.mu.Lock()
	f := in.format
	in.mu.Unlock()
	return in.Emit(Signal(f, seconds, amplitude))
}

// Held reports whether a stream is currently open.
func (in *Input) Held() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.opened > in.closed
}

func (in *Input) Opens() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.opened
}

type inputStream struct {
	in   *Input
	once sync.Once
}

func (s *inputStream) Start() error {
	s.in.mu.Lock()
	s.in.started = true
	s.in.mu.Unlock()
	return nil
}

func (s *inputStream) Close() error {
	s.once.Do(func() {
		s.in.mu.Lock()
		s.in.started = false
		s.in.onData = nil
		s.in.closed++
		s.in.mu.Unlock()
	})
	return nil
}

// Signal builds interleaved S16LE PCM of the given length.
func Signal(f clip.Format, seconds float64, amplitude int16) []byte {
	frames := int(seconds * float64(f.SampleRate))
	pcm := make([]byte, frames*f.Channels*2)
	for i := 0; i < frames*f.Channels; i++ {
		v := amplitude
		if (i/f.Channels)%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}

// Output is a fake playback device. Voices only consume bytes when Pump is
// called, so tests control the play cursor.
type Output struct {
	mu     sync.Mutex
	Reject error
	// Format, when set, is the only format NewVoice accepts, like a sink
	// already opened in one format.
	Format  clip.Format
	voices  []*Voice
	formats []clip.Format
}

func NewOutput() *Output {
	return &Output{}
}

func (o *Output) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Reject
}

func (o *Output) NewVoice(format clip.Format, src io.Reader) (audio.Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.formats = append(o.formats, format)
	if o.Format != (clip.Format{}) && o.Format != format {
		return nil, ErrFormatMismatch
	}
	v := &Voice{src: src}
	o.voices = append(o.voices, v)
	return v, nil
}

// Formats returns the format of every NewVoice request in order.
func (o *Output) Formats() []clip.Format {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]clip.Format(nil), o.formats...)
}

// Current returns the most recently created voice.
func (o *Output) Current() *Voice {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.voices) == 0 {
		return nil
	}
	return o.voices[len(o.voices)-1]
}

// Voices returns how many voices were created.
func (o *Output) Voices() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.voices)
}

// Pump consumes n bytes from the current voice if it is playing.
func (o *Output) Pump(n int) int {
	v := o.Current()
	if v == nil {
		return 0
	}
	return v.Pump(n)
}

type Voice struct {
	mu      sync.Mutex
	src     io.Reader
	playing bool
	drained bool
	closed  bool
}

func (v *Voice) Play() {
	v.mu.Lock()
	v.playing = true
	v.mu.Unlock()
}

func (v *Voice) Pause() {
	v.mu.Lock()
	v.playing = false
	v.mu.Unlock()
}

func (v *Voice) IsPlaying() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing && !v.drained
}

func (v *Voice) BufferedSize() int { return 0 }

func (v *Voice) Close() error {
	v.mu.Lock()
	v.closed = true
	v.playing = false
	v.mu.Unlock()
	return nil
}

func (v *Voice) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// Pump reads up to n bytes, as the sink pulling audio would.
func (v *Voice) Pump(n int) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.playing || v.closed || v.drained {
		return 0
	}
	buf := make([]byte, n)
	total := 0
	for total < n {
		m, err := v.src.Read(buf[total:])
		total += m
		if err != nil {
			v.drained = true
			break
		}
	}
	return total
}
