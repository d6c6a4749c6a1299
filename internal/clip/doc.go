// Package clip holds the encoded voice clip produced by a capture session:
// a WAV byte buffer with a revocable playable reference, and its
// data-URL text form used for persistence.
package clip
