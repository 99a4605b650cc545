// Package announce delivers zone-change announcements to whatever speaks them.
package announce

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/lowaak/smart-trainer/runbeat/internal/zones"
)

// Announcement is a single request to speak a zone.
type Announcement struct {
	Mode      string
	Zone      zones.Zone
	Previous  zones.Zone
	At        time.Time
	SessionID string
}

// Announcer accepts announcements. Implementations must not block the caller on I/O;
// completion and failures are the announcer's own concern.
type Announcer interface {
	Announce(a Announcement)
}

// Payload is the JSON body sent to remote announcers.
type Payload struct {
	Announcement AnnouncementPayload `json:"announcement"`
}

// AnnouncementPayload contains the announcement details.
type AnnouncementPayload struct {
	Timestamp string `json:"timestamp"`
	Mode      string `json:"mode"`
	Zone      int    `json:"zone"`
	Previous  *int   `json:"previous,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// FormatPayload renders a as JSON. An absent previous zone is omitted.
func FormatPayload(a Announcement) ([]byte, error) {
	p := AnnouncementPayload{
		Timestamp: a.At.UTC().Format(time.RFC3339Nano),
		Mode:      a.Mode,
		Zone:      int(a.Zone),
		SessionID: a.SessionID,
	}
	if a.Previous.Valid() {
		prev := int(a.Previous)
		p.Previous = &prev
	}
	return json.Marshal(Payload{Announcement: p})
}

// LogAnnouncer writes announcements to the log.
type LogAnnouncer struct {
	logger *zap.SugaredLogger
}

// NewLogAnnouncer creates a LogAnnouncer.
func NewLogAnnouncer(logger *zap.SugaredLogger) *LogAnnouncer {
	if logger == nil {
		panic("LogAnnouncer: logger cannot be nil")
	}
	return &LogAnnouncer{logger: logger}
}

func (l *LogAnnouncer) Announce(a Announcement) {
	l.logger.Infow("Announcer: zone change",
		"mode", a.Mode,
		"zone", int(a.Zone),
		"previous", a.Previous.String(),
		"session", a.SessionID,
	)
}

// Multi fans an announcement out to several announcers in order.
type Multi []Announcer

func (m Multi) Announce(a Announcement) {
	for _, target := range m {
		if target != nil {
			target.Announce(a)
		}
	}
}
