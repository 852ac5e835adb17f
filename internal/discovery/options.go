package discovery

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/pharmhunter/internal/history"
	"github.com/sells-group/pharmhunter/internal/resilience"
)

// Progress is a snapshot of the loop, sent before each query and once at
// the end.
type Progress struct {
	Round       int    `json:"round"`
	MaxRounds   int    `json:"max_rounds"`
	Tier        int    `json:"tier,omitempty"`
	Query       string `json:"query,omitempty"`
	QueryIndex  int    `json:"query_index,omitempty"`
	QueryCount  int    `json:"query_count,omitempty"`
	Accumulated int    `json:"accumulated"`
	Quota       int    `json:"quota"`
	Message     string `json:"message"`
}

// ProgressFunc receives progress events. It is called synchronously from
// the loop and must not block.
type ProgressFunc func(Progress)

// Option configures a Controller.
type Option func(*Controller)

// WithRoundDelay sets the pause between rounds. Zero disables it.
func WithRoundDelay(d time.Duration) Option {
	return func(c *Controller) { c.roundDelay = d }
}

// WithQueryRate paces queries to qps per second. Zero or less removes the
// limit.
func WithQueryRate(qps float64) Option {
	return func(c *Controller) {
		if qps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(qps), 1)
	}
}

// WithRetry sets the backoff policy for search calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Controller) { c.retry = cfg }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Controller) { c.progress = fn }
}

// WithMatchThreshold sets the history similarity threshold.
func WithMatchThreshold(t int) Option {
	return func(c *Controller) { c.resolver = history.NewResolver(t) }
}

// WithClock overrides time.Now (for testing).
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}
