package domain

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"
)

type fakeFeed struct {
	item FeedItem
	err  error
}

func (f *fakeFeed) Latest(context.Context) (FeedItem, error) {
	return f.item, f.err
}

type fakeStore struct {
	links   PublishedLinks
	loadErr error
	saveErr error
	saves   []PublishedLinks
}

func (s *fakeStore) Load(context.Context) (PublishedLinks, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.links, nil
}

func (s *fakeStore) Save(_ context.Context, links PublishedLinks) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves = append(s.saves, links)
	s.links = links
	return nil
}

type fakeClient struct {
	session    Session
	sessionErr error
	uri        string
	recordErr  error

	sessionCalls int
	records      []PostRecord
}

func (c *fakeClient) CreateSession(context.Context, string, string) (Session, error) {
	c.sessionCalls++
	return c.session, c.sessionErr
}

func (c *fakeClient) CreateRecord(_ context.Context, _ Session, rec PostRecord) (string, error) {
	c.records = append(c.records, rec)
	return c.uri, c.recordErr
}

type fakeCards struct {
	card  EmbedCard
	calls int
}

func (c *fakeCards) Build(_ context.Context, url string, _ Session) EmbedCard {
	c.calls++
	card := c.card
	card.URI = url
	return card
}

type fakeWatcher struct {
	err   error
	calls int
}

func (w *fakeWatcher) WaitForPost(context.Context, string, string, time.Duration) error {
	w.calls++
	return w.err
}

type recordingSink struct {
	events []Event
}

func (r *recordingSink) Emit(_ context.Context, e Event) {
	r.events = append(r.events, e)
}

func (r *recordingSink) kinds() []EventKind {
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

type fixture struct {
	feed   *fakeFeed
	store  *fakeStore
	client *fakeClient
	cards  *fakeCards
	sink   *recordingSink
	svc    *PublishService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		feed:   &fakeFeed{item: FeedItem{Title: "Hello World", Link: "https://x.com/1"}},
		store:  &fakeStore{},
		client: &fakeClient{session: Session{AccessToken: "jwt", DID: "did:plc:me"}, uri: "at://did:plc:me/app.bsky.feed.post/3k"},
		cards:  &fakeCards{card: EmbedCard{Title: "Hello", Thumb: json.RawMessage(`{"$type":"blob"}`)}},
		sink:   &recordingSink{},
	}
	svc, err := NewPublishService(PublishConfig{Handle: "me.bsky.social", Password: "pw"}, f.feed, f.store, f.client, f.cards, f.sink)
	if err != nil {
		t.Fatalf("NewPublishService: %v", err)
	}
	svc.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	f.svc = svc
	return f
}

func TestNewPublishServiceValidates(t *testing.T) {
	if _, err := NewPublishService(PublishConfig{}, &fakeFeed{}, &fakeStore{}, &fakeClient{}, &fakeCards{}, &recordingSink{}); err == nil {
		t.Fatal("expected error for missing credentials")
	}
	if _, err := NewPublishService(PublishConfig{Handle: "h", Password: "p"}, nil, &fakeStore{}, &fakeClient{}, &fakeCards{}, &recordingSink{}); err == nil {
		t.Fatal("expected error for missing feed")
	}
}

func TestRunPublishes(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomePublished {
		t.Errorf("Outcome = %q", res.Outcome)
	}
	if res.URI != f.client.uri {
		t.Errorf("URI = %q", res.URI)
	}
	if len(f.client.records) != 1 {
		t.Fatalf("got %d records, want 1", len(f.client.records))
	}
	rec := f.client.records[0]
	if rec.Text != "Hello World\n\nhttps://x.com/1\n" {
		t.Errorf("Text = %q", rec.Text)
	}
	if rec.Facets[0].ByteStart != 13 || rec.Facets[0].ByteEnd != 13+len("https://x.com/1") {
		t.Errorf("Facets = %+v", rec.Facets)
	}
	if rec.Embed.Title != "Hello" || rec.Embed.URI != "https://x.com/1" {
		t.Errorf("Embed = %+v", rec.Embed)
	}
	if len(f.store.saves) != 1 || !slices.Equal(f.store.saves[0], PublishedLinks{"https://x.com/1"}) {
		t.Errorf("saves = %v", f.store.saves)
	}

	want := []EventKind{EventFeedFetched, EventAuthenticated, EventCardBuilt, EventPublished, EventPersisted}
	if !slices.Equal(f.sink.kinds(), want) {
		t.Errorf("events = %v, want %v", f.sink.kinds(), want)
	}
}

func TestRunReportsSessionExpiry(t *testing.T) {
	f := newFixture(t)
	exp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.client.session.ExpiresAt = exp

	if _, err := f.svc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, e := range f.sink.events {
		if e.Kind == EventAuthenticated {
			if !e.ExpiresAt.Equal(exp) {
				t.Errorf("ExpiresAt = %v, want %v", e.ExpiresAt, exp)
			}
			return
		}
	}
	t.Fatal("no authenticated event")
}

func TestRunTitleFallsBackToLink(t *testing.T) {
	f := newFixture(t)
	f.cards.card = EmbedCard{}

	if _, err := f.svc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := f.client.records[0].Embed.Title; got != "https://x.com/1" {
		t.Errorf("Embed.Title = %q, want link", got)
	}
}

func TestRunAlreadyPublished(t *testing.T) {
	f := newFixture(t)
	f.store.links = PublishedLinks{"https://x.com/0", "https://x.com/1"}

	res, err := f.svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomeAlreadyPublished {
		t.Errorf("Outcome = %q", res.Outcome)
	}
	if f.client.sessionCalls != 0 || len(f.client.records) != 0 {
		t.Errorf("remote API was called: sessions=%d records=%d", f.client.sessionCalls, len(f.client.records))
	}
	if f.cards.calls != 0 {
		t.Errorf("card builder was called")
	}
	if len(f.store.saves) != 0 {
		t.Errorf("state was rewritten: %v", f.store.saves)
	}
}

func TestRunFeedFailure(t *testing.T) {
	for _, kind := range []error{ErrFetchFailed, ErrMalformedFeed, ErrEmptyFeed} {
		t.Run(kind.Error(), func(t *testing.T) {
			f := newFixture(t)
			f.feed.err = kind

			_, err := f.svc.Run(context.Background())
			if !errors.Is(err, kind) {
				t.Fatalf("err = %v, want %v", err, kind)
			}
			if f.client.sessionCalls != 0 {
				t.Error("authenticated after feed failure")
			}
			if got := f.sink.kinds(); !slices.Equal(got, []EventKind{EventFeedFailed}) {
				t.Errorf("events = %v", got)
			}
		})
	}
}

func TestRunAuthFailed(t *testing.T) {
	f := newFixture(t)
	f.client.sessionErr = &APIError{Kind: ErrAuthFailed, Status: 401, Body: `{"error":"AuthenticationRequired"}`}

	res, err := f.svc.Run(context.Background())
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
	if res.Outcome != "" {
		t.Errorf("Outcome = %q", res.Outcome)
	}
	if len(f.client.records) != 0 {
		t.Error("publish attempted after auth failure")
	}
	if len(f.store.saves) != 0 {
		t.Error("state saved after auth failure")
	}
	if f.cards.calls != 0 {
		t.Error("card built after auth failure")
	}
}

func TestRunPublishFailed(t *testing.T) {
	f := newFixture(t)
	f.client.recordErr = &APIError{Kind: ErrPublishFailed, Status: 400, Body: `{"error":"InvalidRequest"}`}

	_, err := f.svc.Run(context.Background())
	if !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("err = %v, want ErrPublishFailed", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Body != `{"error":"InvalidRequest"}` {
		t.Errorf("raw body not preserved: %v", err)
	}
	if len(f.store.saves) != 0 {
		t.Error("state saved after publish failure")
	}
	last := f.sink.events[len(f.sink.events)-1]
	if last.Kind != EventPublishFailed || last.Text == "" {
		t.Errorf("last event = %+v", last)
	}
}

func TestRunPersistFailed(t *testing.T) {
	f := newFixture(t)
	f.store.saveErr = errors.New("disk full")

	res, err := f.svc.Run(context.Background())
	if !errors.Is(err, ErrPersistFailed) {
		t.Fatalf("err = %v, want ErrPersistFailed", err)
	}
	if res.URI == "" {
		t.Error("expected URI of the published post")
	}
}

func TestRunUnreadableStateFailsOpen(t *testing.T) {
	f := newFixture(t)
	f.store.loadErr = errors.New("invalid JSON")

	res, err := f.svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomePublished {
		t.Errorf("Outcome = %q", res.Outcome)
	}
	if f.sink.events[1].Kind != EventStateUnreadable {
		t.Errorf("events = %v", f.sink.kinds())
	}
}

func TestRunConfirmation(t *testing.T) {
	f := newFixture(t)
	w := &fakeWatcher{}
	f.svc.cfg.ConfirmTimeout = time.Second
	f.svc.SetWatcher(w)

	if _, err := f.svc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if w.calls != 1 {
		t.Fatalf("watcher calls = %d", w.calls)
	}
	if last := f.sink.events[len(f.sink.events)-1]; last.Kind != EventConfirmed {
		t.Errorf("last event = %v", last.Kind)
	}
}

func TestRunConfirmationFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.ConfirmTimeout = time.Second
	f.svc.SetWatcher(&fakeWatcher{err: context.DeadlineExceeded})

	res, err := f.svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomePublished {
		t.Errorf("Outcome = %q", res.Outcome)
	}
	if last := f.sink.events[len(f.sink.events)-1]; last.Kind != EventConfirmFailed {
		t.Errorf("last event = %v", last.Kind)
	}
}

func TestAPIErrorIs(t *testing.T) {
	err := &APIError{Kind: ErrAuthFailed, Err: errors.New("connection refused")}
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatal("expected ErrAuthFailed")
	}
	if errors.Is(err, ErrPublishFailed) {
		t.Fatal("unexpected ErrPublishFailed")
	}
	if err.Error() != "authentication failed: connection refused" {
		t.Errorf("Error() = %q", err.Error())
	}
}
