package domain

import (
	"encoding/json"
	"slices"
	"time"
)

// FeedItem is the newest entry of the watched feed.
type FeedItem struct {
	Title string
	Link  string
}

// PublishedLinks is the ordered set of links that were already posted.
type PublishedLinks []string

// Contains reports whether link has been published before.
func (p PublishedLinks) Contains(link string) bool {
	return slices.Contains(p, link)
}

// Append returns a copy of p with link added at the end. If link is already
// present the copy is returned unchanged.
func (p PublishedLinks) Append(link string) PublishedLinks {
	out := make(PublishedLinks, len(p), len(p)+1)
	copy(out, p)
	if p.Contains(link) {
		return out
	}
	return append(out, link)
}

// EmbedCard is an external link preview attached to a post.
type EmbedCard struct {
	// URI is the link the card points to.
	URI string

	Title       string
	Description string

	// Thumb is the blob reference returned by the upload call. It is passed
	// back to the API untouched. Nil means the card has no thumbnail.
	Thumb json.RawMessage
}

// Facet marks a byte range of the post text as a link.
type Facet struct {
	ByteStart int
	ByteEnd   int
	URI       string
}

// PostRecord is the post submitted to the API.
type PostRecord struct {
	Text      string
	Facets    []Facet
	Embed     EmbedCard
	CreatedAt time.Time
}

// NewPostRecord composes the post text and link facet for item.
func NewPostRecord(item FeedItem, card EmbedCard, now time.Time) PostRecord {
	return PostRecord{
		Text:      ComposeText(item.Title, item.Link),
		Facets:    ComputeFacets(item.Title, item.Link),
		Embed:     card,
		CreatedAt: now.UTC(),
	}
}

// Session is an authenticated API session. It lives for one run.
type Session struct {
	AccessToken string
	DID         string
	Handle      string

	// ExpiresAt is read from the access token and reported when the session
	// is created. Zero if the
	// token carries no expiry.
	ExpiresAt time.Time
}

// Repo returns the repository identifier records are written to.
func (s Session) Repo() string {
	if s.DID != "" {
		return s.DID
	}
	return s.Handle
}
