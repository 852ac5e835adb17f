package notion

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll pages through a database and returns every matching page. The
// filter's Filter, Sorts and PageSize carry over to each page request.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var (
		all    []notionapi.Page
		cursor notionapi.Cursor
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}

		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if filter != nil {
			req.Filter = filter.Filter
			req.Sorts = filter.Sorts
			req.PageSize = filter.PageSize
		}

		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}
		all = append(all, resp.Results...)

		if !resp.HasMore || resp.NextCursor == "" {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}

// PlainText concatenates the plain text of rich text segments.
func PlainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, r := range rt {
		switch {
		case r.PlainText != "":
			b.WriteString(r.PlainText)
		case r.Text != nil:
			b.WriteString(r.Text.Content)
		}
	}
	return b.String()
}

// Title returns the text of a page's title property, or "" when the
// property is missing or not a title.
func Title(p notionapi.Page, prop string) string {
	switch tp := p.Properties[prop].(type) {
	case *notionapi.TitleProperty:
		return PlainText(tp.Title)
	case notionapi.TitleProperty:
		return PlainText(tp.Title)
	}
	return ""
}

// TitleIndex maps lowercased page titles to page IDs. The first page wins
// when titles repeat.
func TitleIndex(pages []notionapi.Page, prop string) map[string]string {
	idx := make(map[string]string, len(pages))
	for _, p := range pages {
		key := strings.ToLower(strings.TrimSpace(Title(p, prop)))
		if key == "" {
			continue
		}
		if _, ok := idx[key]; !ok {
			idx[key] = string(p.ID)
		}
	}
	return idx
}

// TextProperty builds a title or rich_text property value.
func TextProperty(content string, title bool) notionapi.Property {
	rt := []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: content}}}
	if title {
		return notionapi.TitleProperty{Type: notionapi.PropertyTypeTitle, Title: rt}
	}
	return notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: rt}
}
