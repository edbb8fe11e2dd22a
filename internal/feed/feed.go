package feed

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/blackmichael/rss2bsky/internal/domain"
)

const acceptFeed = "application/rss+xml, application/atom+xml, application/xml, text/xml, */*"

// Getter downloads a URL.
type Getter interface {
	Get(ctx context.Context, rawURL, accept string) ([]byte, error)
}

// Client reads the newest item of a single RSS or Atom feed.
type Client struct {
	url    string
	getter Getter
}

// NewClient creates a feed client for feedURL.
func NewClient(feedURL string, getter Getter) *Client {
	return &Client{url: feedURL, getter: getter}
}

// Fetch downloads the raw feed document.
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	body, err := c.getter.Get(ctx, c.url, acceptFeed)
	if err != nil {
		return nil, fmt.Errorf("%w: feed %s: %w", domain.ErrFetchFailed, c.url, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: feed %s: empty response", domain.ErrFetchFailed, c.url)
	}
	return body, nil
}

// Latest fetches the feed and returns its first item.
func (c *Client) Latest(ctx context.Context) (domain.FeedItem, error) {
	raw, err := c.Fetch(ctx)
	if err != nil {
		return domain.FeedItem{}, err
	}
	return Parse(raw)
}

// Parse returns the first item of an RSS or Atom document. Later items are
// ignored.
func Parse(raw []byte) (domain.FeedItem, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return domain.FeedItem{}, fmt.Errorf("%w: %w", domain.ErrMalformedFeed, err)
	}
	if len(parsed.Items) == 0 {
		return domain.FeedItem{}, domain.ErrEmptyFeed
	}

	first := parsed.Items[0]
	item := domain.FeedItem{
		Title: strings.TrimSpace(first.Title),
		Link:  strings.TrimSpace(first.Link),
	}
	if item.Link == "" {
		return domain.FeedItem{}, fmt.Errorf("%w: first item has no link", domain.ErrEmptyFeed)
	}
	return item, nil
}
