package eventlog

import (
	"context"
	"log/slog"

	"github.com/blackmichael/rss2bsky/internal/domain"
)

// Sink writes pipeline events to a slog.Logger.
type Sink struct {
	logger *slog.Logger
}

// NewSink creates a Sink backed by logger.
func NewSink(logger *slog.Logger) *Sink {
	return &Sink{logger: logger}
}

// Emit logs the event as a single record.
func (s *Sink) Emit(ctx context.Context, e domain.Event) {
	attrs := []slog.Attr{slog.String("event", string(e.Kind))}
	if !e.Time.IsZero() {
		attrs = append(attrs, slog.Time("at", e.Time))
	}
	if e.Title != "" {
		attrs = append(attrs, slog.String("title", e.Title))
	}
	if e.Link != "" {
		attrs = append(attrs, slog.String("link", e.Link))
	}
	if e.URI != "" {
		attrs = append(attrs, slog.String("uri", e.URI))
	}
	if e.Text != "" {
		attrs = append(attrs, slog.String("text", e.Text))
	}
	if !e.ExpiresAt.IsZero() {
		attrs = append(attrs, slog.Time("expires_at", e.ExpiresAt))
	}
	if e.Kind == domain.EventCardBuilt {
		attrs = append(attrs, slog.Bool("has_thumb", e.HasThumb))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}

	s.logger.LogAttrs(ctx, level(e), message(e.Kind), attrs...)
}

func level(e domain.Event) slog.Level {
	switch {
	case e.Failed():
		return slog.LevelError
	case e.Kind == domain.EventStateUnreadable, e.Kind == domain.EventConfirmFailed:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

func message(kind domain.EventKind) string {
	switch kind {
	case domain.EventFeedFetched:
		return "fetched latest feed item"
	case domain.EventFeedFailed:
		return "failed to fetch feed"
	case domain.EventStateUnreadable:
		return "published links unreadable, starting empty"
	case domain.EventAlreadyPublished:
		return "item already published"
	case domain.EventAuthenticated:
		return "authenticated"
	case domain.EventAuthFailed:
		return "failed to authenticate"
	case domain.EventCardBuilt:
		return "built link card"
	case domain.EventPublished:
		return "post published"
	case domain.EventPublishFailed:
		return "failed to publish post"
	case domain.EventPersisted:
		return "published links saved"
	case domain.EventPersistFailed:
		return "failed to save published links"
	case domain.EventConfirmed:
		return "post confirmed on network"
	case domain.EventConfirmFailed:
		return "post not confirmed"
	}
	return string(kind)
}
