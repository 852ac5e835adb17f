// Package search abstracts the web search providers a hunt queries.
package search

import (
	"context"
	"net/url"
	"strings"
)

// Request is a provider-neutral search query.
type Request struct {
	Query      string   `json:"query"`
	MaxResults int      `json:"max_results"`
	Domains    []string `json:"domains,omitempty"`
	Depth      string   `json:"depth,omitempty"`
}

// Result is one ranked hit.
type Result struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Searcher runs a web search. Implementations make one attempt per call;
// retries belong to the caller.
type Searcher interface {
	Search(ctx context.Context, req Request) ([]Result, error)
	Name() string
}

// InDomains reports whether rawURL's host matches one of domains. An empty
// domain list matches everything.
func InDomains(rawURL string, domains []string) bool {
	if len(domains) == 0 {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
