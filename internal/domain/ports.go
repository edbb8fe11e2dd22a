package domain

import (
	"context"
	"time"
)

// FeedSource yields the newest item of the watched feed.
type FeedSource interface {
	// Latest fetches the feed and returns its first item. Errors wrap
	// ErrFetchFailed, ErrMalformedFeed or ErrEmptyFeed.
	Latest(ctx context.Context) (FeedItem, error)
}

// LinkStore persists the set of published links.
type LinkStore interface {
	// Load returns the stored links. It fails open: when the store is
	// missing or unreadable it returns an empty set, with a non-nil error
	// only to report why.
	Load(ctx context.Context) (PublishedLinks, error)

	// Save replaces the stored links with links.
	Save(ctx context.Context, links PublishedLinks) error
}

// SocialClient talks to the remote social network API.
type SocialClient interface {
	// CreateSession authenticates and returns a session. Errors wrap
	// ErrAuthFailed.
	CreateSession(ctx context.Context, handle, password string) (Session, error)

	// CreateRecord publishes a post and returns its record URI. Errors wrap
	// ErrPublishFailed.
	CreateRecord(ctx context.Context, session Session, record PostRecord) (string, error)
}

// CardBuilder builds the link preview for a post. It never fails; missing
// pieces are left empty.
type CardBuilder interface {
	Build(ctx context.Context, url string, session Session) EmbedCard
}

// PostWatcher waits for a published post to show up on the network.
type PostWatcher interface {
	WaitForPost(ctx context.Context, did, uri string, timeout time.Duration) error
}

// EventSink records what happened during a run.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}
