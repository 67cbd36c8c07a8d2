package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feedPage struct {
	Items []string `json:"items"`
}

func setupCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, time.Minute), mr
}

func TestPageKey(t *testing.T) {
	assert.Equal(t, "page:/", PageKey(FeedPath, ""))
	assert.Equal(t, "page:/?page=2&size=20", PageKey(FeedPath, "page=2&size=20"))
	assert.Equal(t, "page:/thread/7", PageKey(ThreadPath(7), ""))
	assert.Equal(t, "page:/profile/user_1", PageKey(ProfilePath("user_1"), ""))
}

func TestCache_AsideFetchesOnceThenHits(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()
	calls := 0
	fetch := func(dest *feedPage) func() error {
		return func() error {
			calls++
			dest.Items = []string{"a", "b"}
			return nil
		}
	}

	var first feedPage
	require.NoError(t, c.Aside(ctx, PageKey(FeedPath, ""), &first, fetch(&first)))
	assert.Equal(t, []string{"a", "b"}, first.Items)
	assert.True(t, mr.Exists("page:/"))
	assert.InDelta(t, time.Minute.Seconds(), mr.TTL("page:/").Seconds(), 1)

	var second feedPage
	require.NoError(t, c.Aside(ctx, PageKey(FeedPath, ""), &second, fetch(&second)))
	assert.Equal(t, []string{"a", "b"}, second.Items)
	assert.Equal(t, 1, calls)
}

func TestCache_AsideDoesNotStoreFailures(t *testing.T) {
	c, mr := setupCache(t)
	boom := errors.New("boom")

	var page feedPage
	err := c.Aside(context.Background(), "page:/", &page, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("page:/"))
}

func TestCache_AsideIgnoresCorruptEntries(t *testing.T) {
	c, mr := setupCache(t)
	require.NoError(t, mr.Set("page:/", "{not json"))

	var page feedPage
	err := c.Aside(context.Background(), "page:/", &page, func() error {
		page.Items = []string{"fresh"}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, page.Items)
}

func TestCache_InvalidateDropsPathAndQueryVariants(t *testing.T) {
	c, mr := setupCache(t)
	for _, key := range []string{
		"page:/",
		"page:/?page=1&size=20",
		"page:/?page=2&size=20",
		"page:/thread/1",
		"page:/thread/1?x=1",
		"page:/thread/10",
		"page:/profile/user_1",
	} {
		require.NoError(t, mr.Set(key, "{}"))
	}

	c.Invalidate(context.Background(), FeedPath)
	assert.False(t, mr.Exists("page:/"))
	assert.False(t, mr.Exists("page:/?page=1&size=20"))
	assert.False(t, mr.Exists("page:/?page=2&size=20"))
	assert.True(t, mr.Exists("page:/thread/1"))
	assert.True(t, mr.Exists("page:/profile/user_1"))

	c.Invalidate(context.Background(), ThreadPath(1))
	assert.False(t, mr.Exists("page:/thread/1"))
	assert.False(t, mr.Exists("page:/thread/1?x=1"))
	assert.True(t, mr.Exists("page:/thread/10"))
}

func TestCache_InvalidationDuringFillIsNotOverwritten(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()
	key := PageKey(ThreadPath(1), "")

	var stale feedPage
	require.NoError(t, c.Aside(ctx, key, &stale, func() error {
		stale.Items = []string{"before reply"}
		// A reply commits and invalidates while this read is in flight.
		c.Invalidate(ctx, ThreadPath(1))
		return nil
	}))
	assert.Equal(t, []string{"before reply"}, stale.Items)
	assert.False(t, mr.Exists(key))

	var fresh feedPage
	require.NoError(t, c.Aside(ctx, key, &fresh, func() error {
		fresh.Items = []string{"before reply", "reply"}
		return nil
	}))
	assert.True(t, mr.Exists(key))

	var cached feedPage
	require.NoError(t, c.Aside(ctx, key, &cached, func() error {
		t.Fatal("expected a cache hit")
		return nil
	}))
	assert.Equal(t, []string{"before reply", "reply"}, cached.Items)
}

func TestCache_InvalidateTree(t *testing.T) {
	c, mr := setupCache(t)
	for _, key := range []string{
		"page:/",
		"page:/?page=1&size=20",
		"page:/thread/1",
		"page:/thread/22?x=1",
		"page:/profile/user_1",
		"page:/profile/edit",
	} {
		require.NoError(t, mr.Set(key, "{}"))
	}

	c.InvalidateTree(context.Background(), ThreadPrefix)
	assert.False(t, mr.Exists("page:/thread/1"))
	assert.False(t, mr.Exists("page:/thread/22?x=1"))
	assert.True(t, mr.Exists("page:/"))
	assert.True(t, mr.Exists("page:/profile/user_1"))

	c.InvalidateTree(context.Background(), ProfilePrefix)
	assert.False(t, mr.Exists("page:/profile/user_1"))
	assert.False(t, mr.Exists("page:/profile/edit"))
	assert.True(t, mr.Exists("page:/?page=1&size=20"))

	c.InvalidateTree(context.Background(), "")
	assert.True(t, mr.Exists("page:/"))
}

func TestCache_InvalidateEmptyPathIsNoop(t *testing.T) {
	c, mr := setupCache(t)
	require.NoError(t, mr.Set("page:/", "{}"))

	c.Invalidate(context.Background(), "")
	assert.True(t, mr.Exists("page:/"))
}

func TestCache_Disabled(t *testing.T) {
	c := New(nil, 0)
	assert.False(t, c.Enabled())

	calls := 0
	var page feedPage
	for i := 0; i < 2; i++ {
		require.NoError(t, c.Aside(context.Background(), "page:/", &page, func() error {
			calls++
			return nil
		}))
	}
	assert.Equal(t, 2, calls)

	assert.NotPanics(t, func() { c.Invalidate(context.Background(), FeedPath) })

	var nilCache *Cache
	assert.False(t, nilCache.Enabled())
	assert.NotPanics(t, func() { nilCache.Invalidate(context.Background(), FeedPath) })
}

func TestCache_RedisDownFallsBackToSource(t *testing.T) {
	c, mr := setupCache(t)
	mr.Close()

	var page feedPage
	err := c.Aside(context.Background(), "page:/", &page, func() error {
		page.Items = []string{"from db"}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"from db"}, page.Items)

	assert.NotPanics(t, func() { c.Invalidate(context.Background(), FeedPath) })
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client := Connect(context.Background(), mr.Addr())
	require.NotNil(t, client)
	_ = client.Close()

	client = Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NotNil(t, client)
	_ = client.Close()

	assert.Nil(t, Connect(context.Background(), "redis://%zz"))
}
