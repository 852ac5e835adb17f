package search

import (
	"context"

	"github.com/sells-group/pharmhunter/pkg/jina"
)

// Jina adapts pkg/jina to Searcher. The domain filter is sent as site
// parameters and enforced again on the results, since Jina treats it as a
// hint.
type Jina struct {
	client jina.Client
}

// NewJina wraps a Jina client.
func NewJina(client jina.Client) *Jina {
	return &Jina{client: client}
}

// Name implements Searcher.
func (j *Jina) Name() string { return "jina" }

// Search implements Searcher.
func (j *Jina) Search(ctx context.Context, req Request) ([]Result, error) {
	var opts []jina.SearchOption
	if len(req.Domains) > 0 {
		opts = append(opts, jina.WithSiteFilter(req.Domains...))
	}
	if req.MaxResults > 0 {
		opts = append(opts, jina.WithCount(req.MaxResults))
	}

	resp, err := j.client.Search(ctx, req.Query, opts...)
	if err != nil {
		return nil, err
	}

	var out []Result
	for _, r := range resp.Data {
		if !InDomains(r.URL, req.Domains) {
			continue
		}
		content := r.Content
		if content == "" {
			content = r.Description
		}
		out = append(out, Result{URL: r.URL, Title: r.Title, Content: content})
		if req.MaxResults > 0 && len(out) == req.MaxResults {
			break
		}
	}
	return out, nil
}
