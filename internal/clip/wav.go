package clip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Decoded is the PCM payload of a clip.
type Decoded struct {
	Format   Format
	PCM      []byte // interleaved signed 16-bit little endian
	Duration time.Duration
}

// EncodeWAV wraps interleaved S16LE PCM in a WAV container.
func EncodeWAV(pcm []byte, f Format) ([]byte, error) {
	if f.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d", f.BitDepth)
	}
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return nil, fmt.Errorf("invalid format %+v", f)
	}

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, f.SampleRate, f.BitDepth, f.Channels, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: f.Channels,
			SampleRate:  f.SampleRate,
		},
		Data:           samples,
		SourceBitDepth: f.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize wav: %w", err)
	}
	return ws.buf, nil
}

// DecodeWAV parses a WAV container back into S16LE PCM.
func DecodeWAV(data []byte) (*Decoded, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav: %w", err)
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d", dec.BitDepth)
	}

	f := Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if f.SampleRate == 0 || f.Channels == 0 {
		return nil, errors.New("wav header carries no sample format")
	}

	pcm := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s)))
	}

	frames := len(buf.Data) / f.Channels
	return &Decoded{
		Format:   f,
		PCM:      pcm,
		Duration: time.Duration(frames) * time.Second / time.Duration(f.SampleRate),
	}, nil
}

// writeSeeker is the in-memory io.WriteSeeker the wav encoder needs to
// patch its header sizes on Close.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		if end > cap(w.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, w.buf)
			w.buf = grown
		} else {
			w.buf = w.buf[:end]
		}
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.New("negative seek position")
	}
	w.pos = int(abs)
	return abs, nil
}
