package domain

const (
	// TextSeparator sits between the title and the link in a post.
	TextSeparator = "\n\n"

	// TextTerminator ends every post.
	TextTerminator = "\n"
)

// ComposeText lays out the post text for a feed item.
func ComposeText(title, link string) string {
	return title + TextSeparator + link + TextTerminator
}

// ComputeFacets returns the link facet for the text built by ComposeText.
// Offsets are UTF-8 byte offsets.
func ComputeFacets(title, link string) []Facet {
	start := len(title) + len(TextSeparator)
	return []Facet{{
		ByteStart: start,
		ByteEnd:   start + len(link),
		URI:       link,
	}}
}
