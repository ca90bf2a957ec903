package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAggregator(t *testing.T) (*Aggregator, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewAggregator(client, 24*time.Hour), mr
}

func TestAddAndGet(t *testing.T) {
	agg, _ := setupAggregator(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	require.NoError(t, agg.Add(ctx, "tn-1", "speech", 400, day))
	require.NoError(t, agg.Add(ctx, "tn-1", "vision", 250, day))
	require.NoError(t, agg.Add(ctx, "tn-1", "speech", 100, day))

	got, err := agg.Get(ctx, "tn-1", day)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(750), got.TotalCents)
	assert.Equal(t, int64(500), got.ByService["speech"])
	assert.Equal(t, int64(250), got.ByService["vision"])
}

func TestGetAbsentReturnsNil(t *testing.T) {
	agg, _ := setupAggregator(t)

	got, err := agg.Get(context.Background(), "tn-none", time.Now())
	require.NoError(t, err)
	assert.Nil(t, got, "absence means zero spend, not an error")
}

func TestTotalAbsentIsZero(t *testing.T) {
	agg, _ := setupAggregator(t)

	total, err := agg.Total(context.Background(), "tn-none", time.Now())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestKeySchema(t *testing.T) {
	agg, _ := setupAggregator(t)

	day := time.Date(2026, 1, 2, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "cost:realtime:tn-7:2026-01-02", agg.Key("tn-7", day))
}

func TestAddSetsTTL(t *testing.T) {
	agg, mr := setupAggregator(t)
	day := time.Now().UTC()

	require.NoError(t, agg.Add(context.Background(), "tn-1", "speech", 100, day))

	ttl := mr.TTL(agg.Key("tn-1", day))
	assert.Greater(t, ttl, 23*time.Hour)
	assert.LessOrEqual(t, ttl, 24*time.Hour)
}

func TestDaysAreIsolated(t *testing.T) {
	agg, _ := setupAggregator(t)
	ctx := context.Background()

	day1 := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	require.NoError(t, agg.Add(ctx, "tn-1", "speech", 100, day1))
	require.NoError(t, agg.Add(ctx, "tn-1", "speech", 300, day2))

	total1, err := agg.Total(ctx, "tn-1", day1)
	require.NoError(t, err)
	total2, err := agg.Total(ctx, "tn-1", day2)
	require.NoError(t, err)

	assert.Equal(t, int64(100), total1)
	assert.Equal(t, int64(300), total2)
}

// Concurrent adds must never lose an update: the total is the exact sum
// of every recorded amount regardless of interleaving.
func TestConcurrentAddsAreLossless(t *testing.T) {
	agg, _ := setupAggregator(t)
	ctx := context.Background()
	day := time.Now().UTC()

	const goroutines = 20
	const addsPerGoroutine = 25

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < addsPerGoroutine; i++ {
				if err := agg.Add(ctx, "tn-1", "speech", 3, day); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	total, err := agg.Total(ctx, "tn-1", day)
	require.NoError(t, err)
	assert.Equal(t, int64(goroutines*addsPerGoroutine*3), total)
}
