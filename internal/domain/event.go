package domain

import "time"

// EventKind identifies a step of the publish pipeline.
type EventKind string

const (
	EventFeedFetched      EventKind = "feed_fetched"
	EventFeedFailed       EventKind = "feed_failed"
	EventStateUnreadable  EventKind = "state_unreadable"
	EventAlreadyPublished EventKind = "already_published"
	EventAuthenticated    EventKind = "authenticated"
	EventAuthFailed       EventKind = "auth_failed"
	EventCardBuilt        EventKind = "card_built"
	EventPublished        EventKind = "published"
	EventPublishFailed    EventKind = "publish_failed"
	EventPersisted        EventKind = "persisted"
	EventPersistFailed    EventKind = "persist_failed"
	EventConfirmed        EventKind = "confirmed"
	EventConfirmFailed    EventKind = "confirm_failed"
)

// Event is a structured record of a pipeline step.
type Event struct {
	Kind  EventKind
	Time  time.Time
	Title string
	Link  string

	// URI is the record URI once the post exists.
	URI string

	// Text is the composed post text, set on publish events.
	Text string

	// HasThumb reports whether the card carries a thumbnail.
	HasThumb bool

	// ExpiresAt is the session expiry, set on EventAuthenticated when the
	// access token carries one.
	ExpiresAt time.Time

	Err error
}

// Failed reports whether the event describes a failure.
func (e Event) Failed() bool {
	switch e.Kind {
	case EventFeedFailed, EventAuthFailed, EventPublishFailed, EventPersistFailed:
		return true
	}
	return false
}
