package search

import (
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pharmhunter/internal/config"
	"github.com/sells-group/pharmhunter/internal/resilience"
	"github.com/sells-group/pharmhunter/pkg/jina"
	"github.com/sells-group/pharmhunter/pkg/tavily"
)

// New builds the configured provider, wrapped in a circuit breaker and,
// when cache.addr is set, a Redis cache. The breaker sits inside the cache
// so cache hits keep working while a provider is down.
func New(cfg *config.Config) (Searcher, error) {
	timeout := time.Duration(cfg.Search.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	hc := &http.Client{Timeout: timeout}

	var s Searcher
	switch cfg.Search.Provider {
	case "tavily", "":
		if cfg.Tavily.Key == "" {
			return nil, eris.New("search: tavily api key is missing")
		}
		opts := []tavily.Option{tavily.WithHTTPClient(hc)}
		if cfg.Tavily.BaseURL != "" {
			opts = append(opts, tavily.WithBaseURL(cfg.Tavily.BaseURL))
		}
		s = NewTavily(tavily.NewClient(cfg.Tavily.Key, opts...), cfg.Search.Depth)
	case "jina":
		if cfg.Jina.Key == "" {
			return nil, eris.New("search: jina api key is missing")
		}
		opts := []jina.Option{jina.WithHTTPClient(hc)}
		if cfg.Jina.SearchBaseURL != "" {
			opts = append(opts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
		}
		s = NewJina(jina.NewClient(cfg.Jina.Key, opts...))
	default:
		return nil, eris.Errorf("search: unknown provider %q", cfg.Search.Provider)
	}

	s = NewGuarded(s, resilience.FromCircuitConfig(s.Name(), cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeoutSecs))

	if cfg.Cache.Addr != "" {
		s = NewCached(s, CacheOptions{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL(),
		})
	}
	return s, nil
}
