package feed

import "time"

// Metadata is the feed-level header of a parsed document.
type Metadata struct {
	Title       string
	Link        string
	Description string
}

// Item is a normalized feed entry, independent of whether the source was
// RSS or Atom.
type Item struct {
	GUID        string
	Title       string
	Link        string
	Description string
	Content     string
	PublishedAt *time.Time
}
