package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pharmhunter/internal/resilience"
)

func TestSearch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer tvly-key", r.Header.Get("Authorization"))

		var req SearchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "site:clinicaltrials.gov Oncology Phase 2 imaging RECIST", req.Query)
		assert.Equal(t, "advanced", req.SearchDepth)
		assert.Equal(t, 8, req.MaxResults)
		assert.Equal(t, []string{"clinicaltrials.gov"}, req.IncludeDomains)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"query": "q",
			"results": [
				{"title": "Orbit PET study", "url": "https://clinicaltrials.gov/study/NCT1", "content": "Phase 2", "score": 0.91},
				{"title": "Helix MRI trial", "url": "https://clinicaltrials.gov/study/NCT2", "content": "Phase 2", "score": 0.77}
			]
		}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("tvly-key", WithBaseURL(srv.URL))
	resp, err := c.Search(context.Background(), SearchRequest{
		Query:          "site:clinicaltrials.gov Oncology Phase 2 imaging RECIST",
		SearchDepth:    "advanced",
		MaxResults:     8,
		IncludeDomains: []string{"clinicaltrials.gov"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "https://clinicaltrials.gov/study/NCT1", resp.Results[0].URL)
	assert.InDelta(t, 0.91, resp.Results[0].Score, 0.001)
}

func TestSearch_AppliesDefaults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "basic", body["search_depth"])
		assert.Equal(t, "general", body["topic"])
		assert.EqualValues(t, 5, body["max_results"])
		assert.NotContains(t, body, "include_domains")
		w.Write([]byte(`{"results": []}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	resp, err := c.Search(context.Background(), SearchRequest{Query: "q"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSearch_ServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down")) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.Search(context.Background(), SearchRequest{Query: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tavily: unexpected status 502")
	assert.True(t, resilience.IsTransient(err))
}

func TestSearch_BadRequestNotTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.Search(context.Background(), SearchRequest{Query: "q"})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestSearch_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.Search(context.Background(), SearchRequest{Query: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestWithHTTPClient(t *testing.T) {
	t.Parallel()
	hc := &http.Client{}
	c := NewClient("k", WithHTTPClient(hc))
	assert.Same(t, hc, c.(*httpClient).http)
}
