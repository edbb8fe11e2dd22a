package bluesky

import (
	"encoding/json"
	"time"

	"github.com/blackmichael/rss2bsky/internal/domain"
)

// postRecord is the wire form of an app.bsky.feed.post record.
type postRecord struct {
	Type      string         `json:"$type"`
	Text      string         `json:"text"`
	Facets    []facet        `json:"facets,omitempty"`
	Embed     *externalEmbed `json:"embed,omitempty"`
	CreatedAt string         `json:"createdAt"`
}

// facet annotates a byte range of the post text.
type facet struct {
	Index    byteSlice      `json:"index"`
	Features []facetFeature `json:"features"`
}

type byteSlice struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

type facetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri"`
}

// externalEmbed is an app.bsky.embed.external link card.
type externalEmbed struct {
	Type     string   `json:"$type"`
	External external `json:"external"`
}

type external struct {
	URI         string          `json:"uri"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Thumb       json.RawMessage `json:"thumb,omitempty"`
}

func newPostRecord(r domain.PostRecord) postRecord {
	rec := postRecord{
		Type:      postCollection,
		Text:      r.Text,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
	}

	for _, f := range r.Facets {
		rec.Facets = append(rec.Facets, facet{
			Index: byteSlice{ByteStart: f.ByteStart, ByteEnd: f.ByteEnd},
			Features: []facetFeature{{
				Type: "app.bsky.richtext.facet#link",
				URI:  f.URI,
			}},
		})
	}

	if r.Embed.URI != "" {
		rec.Embed = &externalEmbed{
			Type: "app.bsky.embed.external",
			External: external{
				URI:         r.Embed.URI,
				Title:       r.Embed.Title,
				Description: r.Embed.Description,
				Thumb:       r.Embed.Thumb,
			},
		}
	}

	return rec
}
