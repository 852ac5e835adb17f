package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const cachePrefix = "pharmhunter:search:"

// Cached serves repeated queries from Redis. Cache failures are logged and
// fall through to the wrapped searcher.
type Cached struct {
	next   Searcher
	client redis.UniversalClient
	ttl    time.Duration
}

// CacheOptions configures the Redis connection.
type CacheOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewCached wraps next with a Redis response cache.
func NewCached(next Searcher, opts CacheOptions) *Cached {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Cached{next: next, client: client, ttl: opts.TTL}
}

// Name implements Searcher.
func (c *Cached) Name() string { return c.next.Name() }

// Search implements Searcher.
func (c *Cached) Search(ctx context.Context, req Request) ([]Result, error) {
	key := c.key(req)
	log := zap.L().With(zap.String("provider", c.next.Name()), zap.String("query", req.Query))

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var results []Result
		if jerr := json.Unmarshal(data, &results); jerr == nil {
			log.Debug("search cache hit")
			return results, nil
		}
	case !errors.Is(err, redis.Nil):
		log.Warn("search cache read failed", zap.Error(err))
	}

	results, err := c.next.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	if payload, jerr := json.Marshal(results); jerr == nil {
		if serr := c.client.Set(ctx, key, payload, c.ttl).Err(); serr != nil {
			log.Warn("search cache write failed", zap.Error(serr))
		}
	}
	return results, nil
}

// Close releases the Redis connection.
func (c *Cached) Close() error {
	if err := c.client.Close(); err != nil {
		return eris.Wrap(err, "search: close cache")
	}
	return nil
}

func (c *Cached) key(req Request) string {
	h := sha256.New()
	h.Write([]byte(c.next.Name()))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(req.Query))))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(req.Domains, ",")))
	h.Write([]byte{0})
	h.Write([]byte(req.Depth))
	h.Write([]byte{byte(req.MaxResults)})
	return cachePrefix + hex.EncodeToString(h.Sum(nil))
}
