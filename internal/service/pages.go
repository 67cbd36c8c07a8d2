package service

import (
	"context"
	"net/url"
	"strconv"

	"threads/internal/cache"
)

// PageCache is the page cache the services read through and invalidate.
// *cache.Cache implements it.
type PageCache interface {
	Aside(ctx context.Context, key string, dest any, fetch func() error) error
	Invalidate(ctx context.Context, path string)
	InvalidateTree(ctx context.Context, prefix string)
}

var _ PageCache = (*cache.Cache)(nil)

func pageQuery(page, size int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	return q.Encode()
}

func invalidateAll(ctx context.Context, pages PageCache, paths ...string) {
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		pages.Invalidate(ctx, p)
	}
}
