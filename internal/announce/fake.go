package announce

import "sync"

// Recorder records announcements for test assertions. Safe for concurrent use.
type Recorder struct {
	mu            sync.Mutex
	announcements []Announcement
	notify        chan Announcement
}

// Verify Recorder implements Announcer
var _ Announcer = (*Recorder)(nil)

// NewRecorder creates a Recorder. If buffer > 0, every announcement is also sent on C()
// without blocking.
func NewRecorder(buffer int) *Recorder {
	r := &Recorder{}
	if buffer > 0 {
		r.notify = make(chan Announcement, buffer)
	}
	return r
}

func (r *Recorder) Announce(a Announcement) {
	r.mu.Lock()
	r.announcements = append(r.announcements, a)
	r.mu.Unlock()

	if r.notify != nil {
		select {
		case r.notify <- a:
		default:
		}
	}
}

// C returns the notification channel, nil when the recorder was created without a buffer.
func (r *Recorder) C() <-chan Announcement {
	return r.notify
}

// Announcements returns a copy of everything recorded so far.
func (r *Recorder) Announcements() []Announcement {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Announcement, len(r.announcements))
	copy(out, r.announcements)
	return out
}

// Count returns how many announcements were recorded.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.announcements)
}

// Reset clears recorded announcements.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.announcements = nil
	r.mu.Unlock()
}
