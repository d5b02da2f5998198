package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdvovkes/reyestr/internal/config"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()

	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)

	c, err := New(context.Background(), &config.CacheConfig{
		Enabled:       true,
		Host:          srv.Host(),
		Port:          port,
		TaskTTL:       10 * time.Second,
		StatisticsTTL: 30 * time.Second,
		DocumentTTL:   60 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	require.True(t, c.Enabled())
	return c
}

func TestCache_SetGetRoundtrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	c.SetJSON(ctx, TaskKey("abc"), payload{Name: "task", Count: 3}, c.TaskTTL())

	var got payload
	require.True(t, c.GetJSON(ctx, TaskKey("abc"), &got))
	assert.Equal(t, payload{Name: "task", Count: 3}, got)
}

func TestCache_GetMiss(t *testing.T) {
	c := newTestCache(t)

	var got map[string]any
	assert.False(t, c.GetJSON(context.Background(), TaskKey("missing"), &got))
}

func TestCache_UndecodableEntryIsDropped(t *testing.T) {
	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)

	c, err := New(context.Background(), &config.CacheConfig{
		Enabled: true,
		Host:    srv.Host(),
		Port:    port,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	require.NoError(t, srv.Set(TaskKey("bad"), "not json"))

	var got map[string]any
	assert.False(t, c.GetJSON(context.Background(), TaskKey("bad"), &got))
	assert.False(t, srv.Exists(TaskKey("bad")))
}

func TestCache_DeletePattern(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.SetJSON(ctx, TasksSummaryKey("", 100), "a", time.Minute)
	c.SetJSON(ctx, TasksSummaryKey("pending", 50), "b", time.Minute)
	c.SetJSON(ctx, TaskKey("keep"), "c", time.Minute)

	c.DeletePattern(ctx, TasksSummaryPattern())

	var got string
	assert.False(t, c.GetJSON(ctx, TasksSummaryKey("", 100), &got))
	assert.False(t, c.GetJSON(ctx, TasksSummaryKey("pending", 50), &got))
	assert.True(t, c.GetJSON(ctx, TaskKey("keep"), &got))
}

func TestCache_DisabledIsNoop(t *testing.T) {
	c, err := New(context.Background(), &config.CacheConfig{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	assert.False(t, c.Enabled())

	// All operations must be safe on a disabled cache.
	c.SetJSON(ctx, "k", "v", time.Minute)
	c.Delete(ctx, "k")
	c.DeletePattern(ctx, "k*")

	var got string
	assert.False(t, c.GetJSON(ctx, "k", &got))
	assert.NoError(t, c.Close())
}

func TestCache_OptionalUnreachableDegradesToNoop(t *testing.T) {
	c, err := New(context.Background(), &config.CacheConfig{
		Enabled:  true,
		Required: false,
		Host:     "127.0.0.1",
		Port:     1, // nothing listens here
	})
	require.NoError(t, err)
	assert.False(t, c.Enabled())
}

func TestCache_RequiredUnreachableFails(t *testing.T) {
	_, err := New(context.Background(), &config.CacheConfig{
		Enabled:  true,
		Required: true,
		Host:     "127.0.0.1",
		Port:     1,
	})
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "cache:task:abc", TaskKey("abc"))
	assert.Equal(t, "cache:tasks_summary:all:100", TasksSummaryKey("", 100))
	assert.Equal(t, "cache:tasks_summary:pending:50", TasksSummaryKey("pending", 50))
	assert.Equal(t, "cache:tasks_summary:*", TasksSummaryPattern())
	assert.Equal(t, "cache:client_stats:id1", ClientStatisticsKey("id1"))
	assert.Equal(t, "cache:document:sys1", DocumentKey("sys1"))
}
