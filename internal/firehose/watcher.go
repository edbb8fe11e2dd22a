package firehose

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultURL is the public Jetstream endpoint.
const DefaultURL = "wss://jetstream1.us-east.bsky.network/subscribe"

const postCollection = "app.bsky.feed.post"

// replayWindow is how far back the subscription starts, so a post created
// just before we connect is still delivered.
const replayWindow = time.Minute

// Watcher waits for a specific post to appear on the Jetstream firehose.
type Watcher struct {
	url    string
	logger *slog.Logger
	now    func() time.Time
}

// NewWatcher creates a watcher for the Jetstream endpoint at jetstreamURL.
func NewWatcher(jetstreamURL string, logger *slog.Logger) *Watcher {
	if jetstreamURL == "" {
		jetstreamURL = DefaultURL
	}
	return &Watcher{
		url:    jetstreamURL,
		logger: logger,
		now:    time.Now,
	}
}

// WaitForPost blocks until a create commit for uri by did is seen or the
// timeout elapses.
func (w *Watcher) WaitForPost(ctx context.Context, did, uri string, timeout time.Duration) error {
	rkey, err := postRKey(did, uri)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wsURL, err := w.buildURL(did, w.now().Add(-replayWindow).UnixMicro())
	if err != nil {
		return err
	}
	w.logger.Info("connecting to firehose", "url", wsURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial firehose: %w", err)
	}
	defer conn.Close()

	// ReadMessage does not take a context; closing the conn unblocks it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	var eventsReceived int64
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("post %s not seen after %d events: %w", uri, eventsReceived, ctx.Err())
			}
			return fmt.Errorf("read message: %w", err)
		}
		eventsReceived++

		var event jetstreamEvent
		if err := json.Unmarshal(message, &event); err != nil {
			w.logger.Error("failed to parse event", "error", err)
			continue
		}

		if isCreate(&event, did, rkey) {
			w.logger.Info("post seen on firehose", "uri", uri, "cid", event.Commit.CID, "events_received", eventsReceived)
			return nil
		}
	}
}

func (w *Watcher) buildURL(did string, cursor int64) (string, error) {
	u, err := url.Parse(w.url)
	if err != nil {
		return "", fmt.Errorf("parse firehose url: %w", err)
	}
	q := u.Query()
	q.Set("wantedCollections", postCollection)
	q.Set("wantedDids", did)
	if cursor > 0 {
		q.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func isCreate(event *jetstreamEvent, did, rkey string) bool {
	return event.Kind == "commit" &&
		event.DID == did &&
		event.Commit != nil &&
		event.Commit.Operation == "create" &&
		event.Commit.Collection == postCollection &&
		event.Commit.RKey == rkey
}

// postRKey extracts the record key from an at://did/app.bsky.feed.post/rkey URI.
func postRKey(did, uri string) (string, error) {
	parts := strings.Split(strings.TrimPrefix(uri, "at://"), "/")
	if !strings.HasPrefix(uri, "at://") || len(parts) != 3 || parts[1] != postCollection || parts[2] == "" {
		return "", fmt.Errorf("invalid post uri %q", uri)
	}
	if parts[0] != did {
		return "", fmt.Errorf("post uri %q does not belong to %s", uri, did)
	}
	return parts[2], nil
}
