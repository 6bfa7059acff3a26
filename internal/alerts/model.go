package alerts

import (
	"time"
)

// Status is the lifecycle stage of a single alert. Transitions are
// monotonic: New -> Acknowledged -> Resolved. Acknowledged may be skipped,
// Resolved is terminal.
type Status string

const (
	StatusNew          Status = "New"
	StatusAcknowledged Status = "Acknowledged"
	StatusResolved     Status = "Resolved"
)

// Rank orders statuses along the lifecycle. Unknown statuses rank below
// New so they can never displace a known one.
func (s Status) Rank() int {
	switch s {
	case StatusNew:
		return 0
	case StatusAcknowledged:
		return 1
	case StatusResolved:
		return 2
	default:
		return -1
	}
}

func (s Status) Valid() bool {
	return s.Rank() >= 0
}

// PlaceholderSnapshotURL substitutes for events that arrive without a
// snapshot medium, so the UI always has something to render.
const PlaceholderSnapshotURL = "https://placehold.co/600x400/111827/9CA3AF?text=No+Snapshot"

type Note struct {
	AuthorID  string    `json:"authorId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type MediaRefs struct {
	SnapshotURL string `json:"snapshotUrl"`
	ClipURL     string `json:"clipUrl,omitempty"`
}

// Alert is one detected security event tied to a camera and a site.
// ID is server-assigned and is the merge key for deduplication.
type Alert struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"siteId"`
	CameraID  string    `json:"cameraId"`
	EventType string    `json:"eventType"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	Notes     []Note    `json:"notes,omitempty"`
	Media     MediaRefs `json:"mediaRefs"`
}

func (a Alert) Resolved() bool {
	return a.Status == StatusResolved
}

// EventKind discriminates the two push-channel event types. Anything else
// coming off the wire is dropped before it reaches the store.
type EventKind string

const (
	EventCreated EventKind = "alert-created"
	EventUpdated EventKind = "alert-updated"
)

// Event is a typed domain event emitted by the stream client.
type Event struct {
	Kind  EventKind
	Alert Alert
}
