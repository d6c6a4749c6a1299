package audio

import (
	"encoding/binary"
	"sync"
)

// SampleRing keeps the most recent mono samples of a stream for
// visualization. Writers are the device callback or the playback reader;
// readers are analyzers.
type SampleRing struct {
	mu       sync.Mutex
	buf      []int16
	pos      int
	size     int
	channels int
}

// NewSampleRing holds size samples of a stream with the given channel count.
func NewSampleRing(size, channels int) *SampleRing {
	if channels < 1 {
		channels = 1
	}
	if size < 1 {
		size = 1
	}
	return &SampleRing{
		buf:      make([]int16, size),
		size:     size,
		channels: channels,
	}
}

// Write appends interleaved S16LE PCM, down-mixing frames to mono.
func (r *SampleRing) Write(pcm []byte) {
	r.mu.Lock()
	frame := 2 * r.channels
	for off := 0; off+frame <= len(pcm); off += frame {
		var sum int
		for c := 0; c < r.channels; c++ {
			sum += int(int16(binary.LittleEndian.Uint16(pcm[off+2*c:])))
		}
		r.buf[r.pos] = int16(sum / r.channels)
		r.pos = (r.pos + 1) % r.size
	}
	r.mu.Unlock()
}

// Latest copies the last len(dst) samples into dst in chronological order.
func (r *SampleRing) Latest(dst []int16) {
	n := len(dst)
	if n > r.size {
		n = r.size
	}
	r.mu.Lock()
	start := (r.pos - n + r.size) % r.size
	for i := 0; i < n; i++ {
		dst[i] = r.buf[(start+i)%r.size]
	}
	r.mu.Unlock()
}

// SetChannels changes the interleaving expected by Write.
func (r *SampleRing) SetChannels(channels int) {
	if channels < 1 {
		channels = 1
	}
	r.mu.Lock()
	r.channels = channels
	r.mu.Unlock()
}

// Reset fills the ring with silence.
func (r *SampleRing) Reset() {
	r.mu.Lock()
	clear(r.buf)
	r.pos = 0
	r.mu.Unlock()
}
