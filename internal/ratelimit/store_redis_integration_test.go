//go:build integration

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ndaflow/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *Redis
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestLimitIsShared() {
	ctx := context.Background()
	other := NewRedis(s.redis.Client)

	r1, err := s.store.Allow(ctx, "actor:a", 2, time.Minute)
	s.Require().NoError(err)
	s.True(r1.Allowed)
	s.Equal(1, r1.Remaining)

	r2, err := other.Allow(ctx, "actor:a", 2, time.Minute)
	s.Require().NoError(err)
	s.True(r2.Allowed)
	s.Equal(0, r2.Remaining)

	r3, err := s.store.Allow(ctx, "actor:a", 2, time.Minute)
	s.Require().NoError(err)
	s.False(r3.Allowed)
	s.False(r3.ResetAt.IsZero())
}

func (s *RedisStoreSuite) TestDeniedRequestsAreWithdrawn() {
	ctx := context.Background()
	for range 5 {
		_, err := s.store.Allow(ctx, "actor:b", 1, time.Minute)
		s.Require().NoError(err)
	}
	count, err := s.redis.Client.ZCard(ctx, redisKeyPrefix+"actor:b").Result()
	s.Require().NoError(err)
	s.Equal(int64(1), count)
}

func (s *RedisStoreSuite) TestWindowExpires() {
	ctx := context.Background()
	start := time.Now()
	s.store.now = func() time.Time { return start }
	_, err := s.store.Allow(ctx, "actor:c", 1, time.Minute)
	s.Require().NoError(err)

	s.store.now = func() time.Time { return start.Add(time.Minute + time.Millisecond) }
	result, err := s.store.Allow(ctx, "actor:c", 1, time.Minute)
	s.Require().NoError(err)
	s.True(result.Allowed)
}

func (s *RedisStoreSuite) TestConcurrentAdmissionsNeverExceedTheLimit() {
	ctx := context.Background()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.store.Allow(ctx, "actor:d", 5, time.Minute)
			if err == nil && result.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.LessOrEqual(allowed, 5)
	s.Positive(allowed)
}
