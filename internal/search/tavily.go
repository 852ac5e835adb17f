package search

import (
	"context"

	"github.com/sells-group/pharmhunter/pkg/tavily"
)

// Tavily adapts pkg/tavily to Searcher.
type Tavily struct {
	client tavily.Client
	depth  string
}

// NewTavily wraps a Tavily client. depth is "basic" or "advanced".
func NewTavily(client tavily.Client, depth string) *Tavily {
	return &Tavily{client: client, depth: depth}
}

// Name implements Searcher.
func (t *Tavily) Name() string { return "tavily" }

// Search implements Searcher.
func (t *Tavily) Search(ctx context.Context, req Request) ([]Result, error) {
	depth := req.Depth
	if depth == "" {
		depth = t.depth
	}
	resp, err := t.client.Search(ctx, tavily.SearchRequest{
		Query:          req.Query,
		SearchDepth:    depth,
		MaxResults:     req.MaxResults,
		IncludeDomains: req.Domains,
	})
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, Result{
			URL:     r.URL,
			Title:   r.Title,
			Content: r.Content,
			Score:   r.Score,
		})
	}
	return out, nil
}
