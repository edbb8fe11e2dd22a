package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Outcome is how a successful run ended.
type Outcome string

const (
	OutcomePublished        Outcome = "published"
	OutcomeAlreadyPublished Outcome = "already_published"
)

// Result describes a finished run. Outcome is empty when the run failed.
type Result struct {
	Outcome Outcome
	Item    FeedItem

	// URI is the record URI of the new post.
	URI string
}

// PublishConfig holds the account and tuning values for a PublishService.
type PublishConfig struct {
	Handle   string
	Password string

	// ConfirmTimeout bounds the wait for the post to appear on the network.
	// Zero disables confirmation.
	ConfirmTimeout time.Duration
}

// PublishService is the core domain service. It takes the newest feed item,
// skips it if it was published before, and otherwise posts it with a link
// card and records the link.
type PublishService struct {
	cfg     PublishConfig
	feed    FeedSource
	store   LinkStore
	client  SocialClient
	cards   CardBuilder
	sink    EventSink
	watcher PostWatcher
	now     func() time.Time
}

// NewPublishService creates a PublishService from its collaborators.
func NewPublishService(cfg PublishConfig, feed FeedSource, store LinkStore, client SocialClient, cards CardBuilder, sink EventSink) (*PublishService, error) {
	if cfg.Handle == "" || cfg.Password == "" {
		return nil, errors.New("handle and password are required")
	}
	if feed == nil || store == nil || client == nil || cards == nil || sink == nil {
		return nil, errors.New("feed, store, client, cards and sink are required")
	}
	return &PublishService{
		cfg:    cfg,
		feed:   feed,
		store:  store,
		client: client,
		cards:  cards,
		sink:   sink,
		now:    time.Now,
	}, nil
}

// SetWatcher enables post confirmation after a successful publish.
func (s *PublishService) SetWatcher(w PostWatcher) {
	s.watcher = w
}

// Run performs one pass of the pipeline. Only a confirmed publish mutates
// the link store. An already published item is not an error.
func (s *PublishService) Run(ctx context.Context) (Result, error) {
	item, err := s.feed.Latest(ctx)
	if err != nil {
		s.emit(ctx, Event{Kind: EventFeedFailed, Err: err})
		return Result{}, fmt.Errorf("latest feed item: %w", err)
	}
	s.emit(ctx, Event{Kind: EventFeedFetched, Title: item.Title, Link: item.Link})

	result := Result{Item: item}

	links, err := s.store.Load(ctx)
	if err != nil {
		s.emit(ctx, Event{Kind: EventStateUnreadable, Link: item.Link, Err: err})
	}
	if links.Contains(item.Link) {
		s.emit(ctx, Event{Kind: EventAlreadyPublished, Title: item.Title, Link: item.Link})
		result.Outcome = OutcomeAlreadyPublished
		return result, nil
	}

	session, err := s.client.CreateSession(ctx, s.cfg.Handle, s.cfg.Password)
	if err != nil {
		s.emit(ctx, Event{Kind: EventAuthFailed, Link: item.Link, Err: err})
		return result, fmt.Errorf("create session: %w", err)
	}
	s.emit(ctx, Event{Kind: EventAuthenticated, Link: item.Link, ExpiresAt: session.ExpiresAt})

	card := s.cards.Build(ctx, item.Link, session)
	if card.Title == "" {
		card.Title = item.Link
	}
	s.emit(ctx, Event{Kind: EventCardBuilt, Title: card.Title, Link: item.Link, HasThumb: card.Thumb != nil})

	record := NewPostRecord(item, card, s.now())
	uri, err := s.client.CreateRecord(ctx, session, record)
	if err != nil {
		s.emit(ctx, Event{Kind: EventPublishFailed, Title: item.Title, Link: item.Link, Text: record.Text, Err: err})
		return result, fmt.Errorf("create record: %w", err)
	}
	result.Outcome = OutcomePublished
	result.URI = uri
	s.emit(ctx, Event{Kind: EventPublished, Title: item.Title, Link: item.Link, URI: uri, Text: record.Text})

	if err := s.store.Save(ctx, links.Append(item.Link)); err != nil {
		err = fmt.Errorf("%w: %w", ErrPersistFailed, err)
		s.emit(ctx, Event{Kind: EventPersistFailed, Link: item.Link, URI: uri, Err: err})
		return result, fmt.Errorf("save published links: %w", err)
	}
	s.emit(ctx, Event{Kind: EventPersisted, Link: item.Link, URI: uri})

	s.confirm(ctx, session, item, uri)
	return result, nil
}

func (s *PublishService) confirm(ctx context.Context, session Session, item FeedItem, uri string) {
	if s.watcher == nil || s.cfg.ConfirmTimeout <= 0 || session.DID == "" {
		return
	}
	if err := s.watcher.WaitForPost(ctx, session.DID, uri, s.cfg.ConfirmTimeout); err != nil {
		s.emit(ctx, Event{Kind: EventConfirmFailed, Link: item.Link, URI: uri, Err: err})
		return
	}
	s.emit(ctx, Event{Kind: EventConfirmed, Link: item.Link, URI: uri})
}

func (s *PublishService) emit(ctx context.Context, e Event) {
	if e.Time.IsZero() {
		e.Time = s.now()
	}
	s.sink.Emit(ctx, e)
}
