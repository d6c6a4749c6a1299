package clip

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DataURL renders the artifact as a self-describing text value
// ("data:audio/wav;base64,...") suitable for a key-value slot.
func (a *Artifact) DataURL() string {
	return "data:" + a.contentType + ";base64," + base64.StdEncoding.EncodeToString(a.data)
}

// ParseDataURL decodes a value produced by DataURL.
func ParseDataURL(s string) (contentType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data url has no payload")
	}
	contentType, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("data url is not base64 encoded")
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return contentType, data, nil
}

// FromDataURL rebuilds an artifact from a persisted data URL.
func FromDataURL(s string) (*Artifact, error) {
	contentType, data, err := ParseDataURL(s)
	if err != nil {
		return nil, err
	}
	if contentType != ContentType {
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}
	decoded, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	return NewArtifact(data, decoded.Format)
}
