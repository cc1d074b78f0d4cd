//go:build integration

package idempotency

import (
	"context"
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

func (s *RedisStoreSuite) TestReserveIsExclusive() {
	ctx := context.Background()
	_, reserved, err := s.store.Reserve(ctx, "k1", "fp", time.Minute)
	s.Require().NoError(err)
	s.True(reserved)

	existing, reserved, err := s.store.Reserve(ctx, "k1", "fp", time.Minute)
	s.Require().NoError(err)
	s.False(reserved)
	s.Equal(StatePending, existing.State)
	s.Equal("fp", existing.Fingerprint)
}

func (s *RedisStoreSuite) TestCompleteIsReplayed() {
	ctx := context.Background()
	_, _, err := s.store.Reserve(ctx, "k2", "fp", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Complete(ctx, "k2", Record{State: StateDone, Fingerprint: "fp", StatusCode: 202, Body: []byte(`{"ok":true}`)}, time.Minute))

	existing, reserved, err := s.store.Reserve(ctx, "k2", "fp", time.Minute)
	s.Require().NoError(err)
	s.False(reserved)
	s.Equal(202, existing.StatusCode)
	s.JSONEq(`{"ok":true}`, string(existing.Body))

	ttl, err := s.redis.Client.TTL(ctx, keyPrefix+"k2").Result()
	s.Require().NoError(err)
	s.Positive(ttl)
}

func (s *RedisStoreSuite) TestRelease() {
	ctx := context.Background()
	_, _, err := s.store.Reserve(ctx, "k3", "fp", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Release(ctx, "k3"))

	_, reserved, err := s.store.Reserve(ctx, "k3", "fp", time.Minute)
	s.Require().NoError(err)
	s.True(reserved)
}
