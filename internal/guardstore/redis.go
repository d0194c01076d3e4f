package guardstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares guard state between instances. The last accepted time is
// a plain key and the hash window is a sorted set scored by accept time; both
// expire on their own once a fingerprint goes quiet.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore keeps keys for ttl after the last write. ttl should cover
// both the rate-limit interval and the dedup window.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "anonboard/guard/", ttl: ttl}
}

func (s *RedisStore) lastKey(fp string) string {
	return s.prefix + fp + "/last"
}

func (s *RedisStore) hashesKey(fp string) string {
	return s.prefix + fp + "/hashes"
}

func (s *RedisStore) Recent(ctx context.Context, fingerprint string, since time.Time) (State, error) {
	hk := s.hashesKey(fingerprint)

	pipe := s.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, hk, "-inf", "("+strconv.FormatInt(since.UnixMilli(), 10))
	hashes := pipe.ZRange(ctx, hk, 0, -1)
	last := pipe.Get(ctx, s.lastKey(fingerprint))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return State{}, fmt.Errorf("failed to read guard state: %w", err)
	}

	st := State{Hashes: hashes.Val()}
	if ms, err := last.Int64(); err == nil {
		st.LastAccepted = time.UnixMilli(ms)
	}
	return st, nil
}

func (s *RedisStore) Record(ctx context.Context, fingerprint, hash string, at time.Time) error {
	hk := s.hashesKey(fingerprint)

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.lastKey(fingerprint), at.UnixMilli(), s.ttl)
	pipe.ZAdd(ctx, hk, redis.Z{Score: float64(at.UnixMilli()), Member: hash})
	pipe.Expire(ctx, hk, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record guard state: %w", err)
	}
	return nil
}
