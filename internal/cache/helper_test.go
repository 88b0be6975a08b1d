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

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func setupCache(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { SetClient(nil) })
	return mr
}

func TestGetJSON_Miss(t *testing.T) {
	setupCache(t)

	var dest payload
	assert.ErrorIs(t, GetJSON(context.Background(), "absent", &dest), ErrMiss)
}

func TestSetGetJSON_RoundTrip(t *testing.T) {
	setupCache(t)
	ctx := context.Background()

	SetJSON(ctx, "k", payload{Name: "feed", Count: 3}, time.Minute)

	var dest payload
	require.NoError(t, GetJSON(ctx, "k", &dest))
	assert.Equal(t, payload{Name: "feed", Count: 3}, dest)
}

func TestGetJSON_DropsPoisonedEntry(t *testing.T) {
	mr := setupCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("k", "{not json"))

	var dest payload
	assert.ErrorIs(t, GetJSON(ctx, "k", &dest), ErrMiss)
	assert.False(t, mr.Exists("k"), "unparseable entries should be evicted")
}

func TestAside(t *testing.T) {
	setupCache(t)
	ctx := context.Background()

	loads := 0
	load := func(dest *payload) func() error {
		return func() error {
			loads++
			*dest = payload{Name: "loaded", Count: loads}
			return nil
		}
	}

	var first payload
	require.NoError(t, Aside(ctx, "k", &first, time.Minute, load(&first)))
	assert.Equal(t, 1, loads)

	// Second read is served from the cache.
	var second payload
	require.NoError(t, Aside(ctx, "k", &second, time.Minute, load(&second)))
	assert.Equal(t, 1, loads)
	assert.Equal(t, first, second)
}

func TestAside_LoadFailureIsNotCached(t *testing.T) {
	mr := setupCache(t)
	ctx := context.Background()

	boom := errors.New("db down")
	var dest payload
	err := Aside(ctx, "k", &dest, time.Minute, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("k"))
}

func TestHelpers_NilClient(t *testing.T) {
	SetClient(nil)
	ctx := context.Background()

	var dest payload
	assert.ErrorIs(t, GetJSON(ctx, "k", &dest), ErrMiss)

	// Must not panic.
	SetJSON(ctx, "k", payload{}, time.Minute)
	Invalidate(ctx, "k")

	// Aside degrades to calling the loader every time.
	loads := 0
	require.NoError(t, Aside(ctx, "k", &dest, time.Minute, func() error {
		loads++
		return nil
	}))
	require.NoError(t, Aside(ctx, "k", &dest, time.Minute, func() error {
		loads++
		return nil
	}))
	assert.Equal(t, 2, loads)
}

func TestInvalidatePost(t *testing.T) {
	mr := setupCache(t)
	ctx := context.Background()

	SetJSON(ctx, PostKey(4), payload{}, time.Minute)
	SetJSON(ctx, CommentsKey(4), payload{}, time.Minute)

	InvalidatePost(ctx, 4)

	assert.False(t, mr.Exists(PostKey(4)))
	assert.False(t, mr.Exists(CommentsKey(4)))
}
