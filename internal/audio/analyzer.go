package audio

import "sync"

// DefaultFFTSize is the analysis window in samples.
const DefaultFFTSize = 256

// Midline is the byte value of a silent sample.
const Midline = 128

// Analyzer exposes a fixed-size byte buffer of time-domain amplitudes
// (fftSize/2 samples, silence at 128) read from one SampleRing. It is
// bound to exactly one source; rebinding means detaching this analyzer and
// creating a new one.
type Analyzer struct {
	mu      sync.Mutex
	ring    *SampleRing
	samples []int16
	buf     []byte
}

func NewAnalyzer(ring *SampleRing, fftSize int) *Analyzer {
	if fftSize <= 0 {
		fftSize = DefaultFFTSize
	}
	n := fftSize / 2
	a := &Analyzer{
		ring:    ring,
		samples: make([]int16, n),
		buf:     make([]byte, n),
	}
	fillMidline(a.buf)
	return a
}

// BufferLength is the number of bytes Refresh returns.
func (a *Analyzer) BufferLength() int { return len(a.buf) }

// Refresh pulls the latest samples and returns the analyzer's buffer. The
// slice is reused by the next call.
func (a *Analyzer) Refresh() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ring == nil {
		fillMidline(a.buf)
		return a.buf
	}
	a.ring.Latest(a.samples)
	for i, s := range a.samples {
		a.buf[i] = byte(int(s)>>8 + Midline)
	}
	return a.buf
}

// Detach unbinds the analyzer from its source; later refreshes are flat.
func (a *Analyzer) Detach() {
	a.mu.Lock()
	a.ring = nil
	a.mu.Unlock()
}

func (a *Analyzer) Attached() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ring != nil
}

func fillMidline(b []byte) {
	for i := range b {
		b[i] = Midline
	}
}
