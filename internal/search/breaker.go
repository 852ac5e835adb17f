package search

import (
	"context"

	"github.com/sells-group/pharmhunter/internal/resilience"
)

// Guarded rejects calls while the provider's circuit is open.
type Guarded struct {
	next    Searcher
	breaker *resilience.CircuitBreaker
}

// NewGuarded wraps next with a circuit breaker.
func NewGuarded(next Searcher, cfg resilience.CircuitBreakerConfig) *Guarded {
	if cfg.Name == "" {
		cfg.Name = next.Name()
	}
	return &Guarded{next: next, breaker: resilience.NewCircuitBreaker(cfg)}
}

// Name implements Searcher.
func (g *Guarded) Name() string { return g.next.Name() }

// Search implements Searcher.
func (g *Guarded) Search(ctx context.Context, req Request) ([]Result, error) {
	return resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) ([]Result, error) {
		return g.next.Search(ctx, req)
	})
}
