package recorder

import "errors"

var (
	// ErrEmptyArtifact is returned by SubmitRecording when nothing was recorded.
	ErrEmptyArtifact = errors.New("no recording found")

	// ErrPersistenceFailure wraps store errors from SubmitRecording. The
	// recording is kept so the submit can be retried.
	ErrPersistenceFailure = errors.New("failed to save the recording")

	// ErrRecordingAborted is returned by StartRecording when the recording
	// was stopped or reset while the input device grant was pending.
	ErrRecordingAborted = errors.New("recording aborted before the device was granted")

	// ErrPlaybackAborted is returned by TogglePlayPause when the playback
	// session was torn down while the play request was pending.
	ErrPlaybackAborted = errors.New("playback aborted")

	ErrClosed = errors.New("recorder closed")
)
