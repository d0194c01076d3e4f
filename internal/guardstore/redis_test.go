package guardstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real server only when TEST_REDIS_URL is set.
func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	t.Cleanup(func() { rdb.Close() })

	ctx := context.Background()
	s := NewRedisStore(rdb, time.Minute)
	fp := "test-" + uuid.NewString()
	t0 := time.Now().Truncate(time.Millisecond)

	st, err := s.Recent(ctx, fp, t0.Add(-30*time.Second))
	require.NoError(t, err)
	assert.True(t, st.LastAccepted.IsZero())
	assert.Empty(t, st.Hashes)

	require.NoError(t, s.Record(ctx, fp, "aaa", t0.Add(-40*time.Second)))
	require.NoError(t, s.Record(ctx, fp, "bbb", t0))

	st, err = s.Recent(ctx, fp, t0.Add(-30*time.Second))
	require.NoError(t, err)
	assert.True(t, t0.Equal(st.LastAccepted))
	assert.Equal(t, []string{"bbb"}, st.Hashes)
}
