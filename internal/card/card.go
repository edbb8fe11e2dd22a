// Package card builds external link cards from a page's Open Graph tags.
package card

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/html"

	"github.com/blackmichael/rss2bsky/internal/domain"
)

const (
	acceptHTML  = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptImage = "image/avif,image/webp,image/png,image/jpeg,image/*;q=0.8,*/*;q=0.5"
)

// Getter downloads a URL.
type Getter interface {
	Get(ctx context.Context, rawURL, accept string) ([]byte, error)
}

// BlobUploader stores image bytes on the remote API and returns the blob
// reference.
type BlobUploader interface {
	UploadBlob(ctx context.Context, session domain.Session, data []byte, mimeType string) (json.RawMessage, error)
}

// Builder creates link cards. Every step is best effort: a failure leaves
// the affected fields empty and never aborts the card.
type Builder struct {
	getter   Getter
	uploader BlobUploader
	logger   *slog.Logger

	// maxThumbBytes is the largest blob the API accepts.
	maxThumbBytes int
}

// NewBuilder creates a Builder.
func NewBuilder(getter Getter, uploader BlobUploader, logger *slog.Logger) *Builder {
	return &Builder{
		getter:        getter,
		uploader:      uploader,
		logger:        logger,
		maxThumbBytes: MaxThumbBytes,
	}
}

// Build returns the card for pageURL, uploading the og:image as its
// thumbnail when possible.
func (b *Builder) Build(ctx context.Context, pageURL string, session domain.Session) domain.EmbedCard {
	card := domain.EmbedCard{URI: pageURL}

	page, err := b.getter.Get(ctx, pageURL, acceptHTML)
	if err != nil {
		b.logger.Warn("card page fetch failed", "url", pageURL, "error", err)
		return card
	}

	meta := ExtractMeta(page)
	card.Title = meta.Title
	card.Description = meta.Description

	if meta.Image == "" {
		b.logger.Info("card has no image", "url", pageURL)
		return card
	}

	imageURL := ResolveImageURL(pageURL, meta.Image)
	if thumb := b.thumbnail(ctx, imageURL, session); thumb != nil {
		card.Thumb = thumb
	}
	return card
}

func (b *Builder) thumbnail(ctx context.Context, imageURL string, session domain.Session) json.RawMessage {
	data, err := b.getter.Get(ctx, imageURL, acceptImage)
	if err != nil {
		b.logger.Warn("card image fetch failed", "image_url", imageURL, "error", err)
		return nil
	}

	mimeType := mimetype.Detect(data).String()
	if !strings.HasPrefix(mimeType, "image/") {
		b.logger.Warn("card image is not an image", "image_url", imageURL, "mime_type", mimeType)
		return nil
	}

	if len(data) > b.maxThumbBytes {
		shrunk, err := Shrink(data, b.maxThumbBytes)
		if err != nil {
			b.logger.Warn("card image shrink failed, uploading original",
				"image_url", imageURL,
				"size", humanize.Bytes(uint64(len(data))),
				"error", err,
			)
		} else {
			b.logger.Info("card image shrunk",
				"image_url", imageURL,
				"from", humanize.Bytes(uint64(len(data))),
				"to", humanize.Bytes(uint64(len(shrunk))),
			)
			data, mimeType = shrunk, "image/jpeg"
		}
	}

	ref, err := b.uploader.UploadBlob(ctx, session, data, mimeType)
	if err != nil {
		b.logger.Warn("card image upload failed", "image_url", imageURL, "error", err)
		return nil
	}

	b.logger.Info("card image uploaded",
		"image_url", imageURL,
		"mime_type", mimeType,
		"size", humanize.Bytes(uint64(len(data))),
	)
	return ref
}

// Meta holds the Open Graph values of a page. Each is empty when absent.
type Meta struct {
	Title       string
	Description string
	Image       string
}

// ExtractMeta reads the first og:title, og:description and og:image of an
// HTML document. Malformed markup is tolerated.
func ExtractMeta(page []byte) Meta {
	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return Meta{}
	}
	doc := goquery.NewDocumentFromNode(root)

	property := func(name string) string {
		return doc.Find(`meta[property="` + name + `"]`).First().AttrOr("content", "")
	}

	return Meta{
		Title:       property("og:title"),
		Description: property("og:description"),
		Image:       strings.TrimSpace(property("og:image")),
	}
}

// ResolveImageURL makes an og:image value absolute. Values containing "://"
// are returned unchanged and protocol-relative values take the scheme of
// base. Anything else is joined to base with exactly one slash.
func ResolveImageURL(base, image string) string {
	if strings.Contains(image, "://") {
		return image
	}
	if strings.HasPrefix(image, "//") {
		scheme := "https"
		if u, err := url.Parse(base); err == nil && u.Scheme != "" {
			scheme = u.Scheme
		}
		return scheme + ":" + image
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(image, "/")
}
