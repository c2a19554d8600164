package strategy

import (
	"bytes"
	"fmt"

	"github.com/mmcdole/gofeed"
)

// FeedExtractor parses an RSS/Atom/JSON feed body into one Item per entry.
// Grounded on the monitor skill's fetchFeed/normalizeItem pair: gofeed.Parser
// reused across calls, item.Title/item.Link/item.Description/
// item.PublishedParsed read directly off the parsed *gofeed.Item.
type FeedExtractor struct {
	parser *gofeed.Parser
}

func NewFeedExtractor() *FeedExtractor {
	return &FeedExtractor{parser: gofeed.NewParser()}
}

func (f *FeedExtractor) Extract(body []byte) ([]Item, error) {
	feed, err := f.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("feed parse: %w", err)
	}

	items := make([]Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry.Link == "" {
			continue
		}
		text := entry.Description
		if text == "" {
			text = entry.Content
		}
		item := Item{
			Title: entry.Title,
			URL:   entry.Link,
			Text:  truncate(text, MaxTextChars),
		}
		if entry.PublishedParsed != nil {
			item.PublishedAt = entry.PublishedParsed
		}
		if entry.UpdatedParsed != nil {
			item.ModifiedAt = entry.UpdatedParsed
		}
		if entry.Author != nil {
			item.Author = entry.Author.Name
		} else if len(entry.Authors) > 0 {
			item.Author = entry.Authors[0].Name
		}
		items = append(items, item)
	}
	return items, nil
}
