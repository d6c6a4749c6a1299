package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessagesGoToOut(t *testing.T) {
	var buf bytes.Buffer
	prev := Out
	Out = &buf
	defer func() { Out = prev }()

	Success("saved %s", "recordedAudio")
	Warn("retry")
	Error("denied")
	KV("format", "wav")

	s := buf.String()
	assert.Contains(t, s, "saved recordedAudio")
	assert.Contains(t, s, "retry")
	assert.Contains(t, s, "denied")
	assert.Contains(t, s, "format")
	assert.Contains(t, s, "wav")
}

func TestStatusLine(t *testing.T) {
	line := StatusLine("REC", true, "0:04 / 0:30")
	assert.Contains(t, line, "REC")
	assert.Contains(t, line, "0:04 / 0:30")
	assert.Contains(t, line, "●")

	assert.Contains(t, StatusLine("PLAY", false, "0:00 / 0:02"), "○")
}
