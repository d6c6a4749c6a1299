package clip

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ContentType is the only container format clips are encoded in.
const ContentType = "audio/wav"

// refScheme prefixes the playable reference handed to the UI layer.
const refScheme = "clip:"

var ErrReleased = errors.New("clip has been released")

// Format describes the PCM layout inside a clip.
type Format struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
	BitDepth   int `json:"bit_depth"`
}

// BytesPerSecond returns the PCM byte rate for the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitDepth / 8
}

// Artifact is an immutable encoded clip. Only the reference is mutable: it
// is revoked by Release.
type Artifact struct {
	data        []byte
	contentType string
	format      Format
	createdAt   time.Time

	mu  sync.RWMutex
	ref string
}

// NewArtifact wraps encoded bytes. The slice is copied.
func NewArtifact(data []byte, format Format) (*Artifact, error) {
	if len(data) == 0 {
		return nil, errors.New("clip data is empty")
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	return &Artifact{
		data:        buf,
		contentType: ContentType,
		format:      format,
		createdAt:   time.Now(),
		ref:         refScheme + uuid.NewString(),
	}, nil
}

// Ref returns the playable reference, or "" once released.
func (a *Artifact) Ref() string {
	if a == nil {
		return ""
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ref
}

// Released reports whether Release has been called.
func (a *Artifact) Released() bool {
	return a.Ref() == ""
}

// Release revokes the reference. Safe to call more than once.
func (a *Artifact) Release() {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.ref = ""
	a.mu.Unlock()
}

// Bytes returns the encoded clip. Callers must not modify it.
func (a *Artifact) Bytes() []byte { return a.data }

func (a *Artifact) ContentType() string { return a.contentType }

func (a *Artifact) Format() Format { return a.format }

func (a *Artifact) CreatedAt() time.Time { return a.createdAt }

func (a *Artifact) Size() int { return len(a.data) }
