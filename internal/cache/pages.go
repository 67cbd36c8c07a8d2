package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"threads/internal/middleware"
	"threads/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	pagePrefix = "page:"
	scanBatch  = 100

	// generationKey is bumped by every invalidation. A fill only stores its
	// result if no invalidation ran since the fill started.
	generationKey = "page-generation"

	// DefaultPageTTL is used when no TTL is configured.
	DefaultPageTTL = time.Minute
)

// Page paths whose rendered data is cached and invalidated.
const (
	FeedPath        = "/"
	OnboardingPath  = "/onboarding"
	ProfileEditPath = "/profile/edit"
)

// Path prefixes for InvalidateTree.
const (
	ThreadPrefix  = "/thread/"
	ProfilePrefix = "/profile/"
)

// ThreadPath is the page showing a thread and its replies.
func ThreadPath(id uint) string {
	return "/thread/" + strconv.FormatUint(uint64(id), 10)
}

// ProfilePath is the public profile page of a user.
func ProfilePath(externalID string) string {
	return "/profile/" + externalID
}

// PageKey is the Redis key holding the data behind a page path. Query
// variants of the same path, such as feed pages, live under path?query.
func PageKey(path, query string) string {
	if query == "" {
		return pagePrefix + path
	}
	return pagePrefix + path + "?" + query
}

// Cache is the page cache. A nil client disables it: reads always go to
// the source and invalidation is a no-op.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps client. ttl <= 0 selects DefaultPageTTL.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultPageTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Enabled reports whether a Redis client is attached.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// Aside serves dest from the cached copy of key, or calls fetch to fill dest
// and stores the result. Cache failures never fail the read.
func (c *Cache) Aside(ctx context.Context, key string, dest any, fetch func() error) error {
	if !c.Enabled() {
		observability.PageCacheResults.WithLabelValues("bypass").Inc()
		return fetch()
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(raw, dest); jsonErr == nil {
			observability.PageCacheResults.WithLabelValues("hit").Inc()
			return nil
		}
		middleware.Logger.WarnContext(ctx, "Discarding unreadable page cache entry", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		middleware.Logger.WarnContext(ctx, "Page cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	observability.PageCacheResults.WithLabelValues("miss").Inc()
	generation, genErr := readGeneration(ctx, c.client)
	if err := fetch(); err != nil {
		return err
	}
	if genErr != nil {
		middleware.Logger.WarnContext(ctx, "Page cache generation read failed", slog.String("error", genErr.Error()))
		return nil
	}

	b, err := json.Marshal(dest)
	if err != nil {
		return nil
	}
	switch err := c.fill(ctx, key, b, generation); {
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		observability.PageCacheResults.WithLabelValues("stale").Inc()
	case err != nil:
		middleware.Logger.WarnContext(ctx, "Page cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return nil
}

var errStaleFill = errors.New("page invalidated during fill")

// fill stores b under key unless the generation moved past seen.
func (c *Cache) fill(ctx context.Context, key string, b []byte, seen int64) error {
	return c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx)
		if err != nil {
			return err
		}
		if current != seen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, c.ttl)
			return nil
		})
		return err
	}, generationKey)
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, r stringGetter) (int64, error) {
	n, err := r.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Invalidate marks a page path stale by dropping its cached data and every
// query variant of it. An empty path is a no-op. Failures are logged and
// otherwise ignored.
func (c *Cache) Invalidate(ctx context.Context, path string) {
	if path == "" {
		return
	}
	c.drop(ctx, path, func(ctx context.Context) error {
		if err := c.client.Del(ctx, PageKey(path, "")).Err(); err != nil {
			return err
		}
		return c.deleteMatching(ctx, pagePrefix+escapeGlob(path)+`\?*`)
	})
}

// InvalidateTree drops every cached page whose path starts with prefix.
func (c *Cache) InvalidateTree(ctx context.Context, prefix string) {
	if prefix == "" {
		return
	}
	c.drop(ctx, prefix+"*", func(ctx context.Context) error {
		return c.deleteMatching(ctx, pagePrefix+escapeGlob(prefix)+"*")
	})
}

// drop bumps the generation before deleting so fills racing with it are
// not stored.
func (c *Cache) drop(ctx context.Context, target string, del func(context.Context) error) {
	if !c.Enabled() {
		observability.PageInvalidations.WithLabelValues("disabled").Inc()
		return
	}

	ctx, span := observability.GetTraceLayer().TraceRedisOperation(ctx, "invalidate")
	err := c.client.Incr(ctx, generationKey).Err()
	if err == nil {
		err = del(ctx)
	}
	observability.EndSpan(span, err)

	if err != nil {
		observability.PageInvalidations.WithLabelValues("failed").Inc()
		middleware.Logger.WarnContext(ctx, "Page invalidation failed",
			slog.String("path", target), slog.String("error", err.Error()))
		return
	}
	observability.PageInvalidations.WithLabelValues("ok").Inc()
}

func (c *Cache) deleteMatching(ctx context.Context, match string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
