package recorder

import "sync"

type NoticeKind string

const (
	NoticeDeviceUnavailable  NoticeKind = "device-unavailable"
	NoticePlaybackRejected   NoticeKind = "playback-rejected"
	NoticeEmptyArtifact      NoticeKind = "empty-artifact"
	NoticePersistenceFailure NoticeKind = "persistence-failure"
	NoticeSaved              NoticeKind = "saved"
)

// Notice is a message meant for the user.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// Notifier receives notices on the machine's event loop. Implementations
// must not block or call back into the machine.
type Notifier interface {
	Notify(Notice)
}

type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Notifiers fans a notice out to several notifiers.
type Notifiers []Notifier

func (ns Notifiers) Notify(n Notice) {
	for _, x := range ns {
		if x != nil {
			x.Notify(n)
		}
	}
}

// NoticeLog keeps every notice it receives. Useful for tests and the CLI.
type NoticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (l *NoticeLog) Notify(n Notice) {
	l.mu.Lock()
	l.notices = append(l.notices, n)
	l.mu.Unlock()
}

func (l *NoticeLog) All() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notice(nil), l.notices...)
}

// Last returns the most recent notice of the given kind.
func (l *NoticeLog) Last(kind NoticeKind) (Notice, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.notices) - 1; i >= 0; i-- {
		if l.notices[i].Kind == kind {
			return l.notices[i], true
		}
	}
	return Notice{}, false
}
