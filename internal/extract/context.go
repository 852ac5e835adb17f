// Package extract turns raw search results into structured company leads
// with a language model.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// MaxContextResults caps how many results are shown to the model.
	MaxContextResults = 20
	// MaxSnippetRunes caps each result's content.
	MaxSnippetRunes = 600
)

// Hit is a search result tagged with where and how it was found.
type Hit struct {
	URL            string
	Title          string
	Content        string
	Rank           int
	SourceName     string
	SourcePriority int
	Query          string
}

// BuildContext renders hits into the text block given to the extractor.
func BuildContext(hits []Hit) string {
	if len(hits) > MaxContextResults {
		hits = hits[:MaxContextResults]
	}

	blocks := make([]string, 0, len(hits))
	for _, h := range hits {
		source := h.SourceName
		if source == "" {
			source = "Unknown"
		}
		blocks = append(blocks, fmt.Sprintf("[Result #%d from %s]\nURL: %s\nTitle: %s\nContent: %s",
			h.Rank, source, orNA(h.URL), orNA(stripHTML(h.Title)), truncateRunes(stripHTML(h.Content), MaxSnippetRunes)))
	}
	return strings.Join(blocks, "\n\n")
}

// stripHTML reduces markup in search snippets to its text.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
