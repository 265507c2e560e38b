//go:build integration

package cache

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"netban/internal/punish/models"
	"netban/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.cache = NewRedis(s.redis.Client, time.Minute, slog.New(slog.DiscardHandler))
}

func (s *RedisCacheSuite) TestPutGetRoundTrip() {
	s.cache.Put("p1", Entry{
		View:     &models.Effective{Subject: "p1"},
		Revision: 3,
	})

	got, ok := s.cache.Get("p1")
	s.Require().True(ok)
	s.Equal(int64(3), got.Revision)
	s.Require().NotNil(got.View)
	s.Equal("p1", got.View.Subject.String())

	_, ok = s.cache.Get("p2")
	s.False(ok)
}

func (s *RedisCacheSuite) TestSharedAcrossClients() {
	s.cache.Put("p1", Entry{View: &models.Effective{Subject: "p1"}, Revision: 1})

	other := NewRedis(s.redis.NewClient(s.T()), time.Minute, slog.New(slog.DiscardHandler))
	_, ok := other.Get("p1")
	s.True(ok, "a second node must see the shared fill")
}

func (s *RedisCacheSuite) TestGetWithinTightensBound() {
	s.cache.Put("p1", Entry{View: &models.Effective{Subject: "p1"}, Revision: 1})

	// Pretend the entry is older than it is.
	s.cache.now = func() time.Time { return time.Now().Add(30 * time.Second) }

	_, ok := s.cache.Get("p1")
	s.True(ok)
	_, ok = s.cache.GetWithin("p1", 10*time.Second)
	s.False(ok)
}

func (s *RedisCacheSuite) TestInvalidateIfStale() {
	s.cache.Put("p1", Entry{View: &models.Effective{Subject: "p1"}, Revision: 5})

	s.False(s.cache.InvalidateIfStale("p1", 4))
	s.False(s.cache.InvalidateIfStale("p1", 5))
	_, ok := s.cache.Get("p1")
	s.True(ok)

	s.True(s.cache.InvalidateIfStale("p1", 6))
	_, ok = s.cache.Get("p1")
	s.False(ok)

	s.True(s.cache.InvalidateIfStale("missing", 1))
}

func (s *RedisCacheSuite) TestCorruptEntryDegradesToMiss() {
	ctx := context.Background()
	s.Require().NoError(s.redis.Client.Set(ctx, subjectKeyPrefix+"p1", "not json", time.Minute).Err())

	_, ok := s.cache.Get("p1")
	s.False(ok)

	// The corrupt value was dropped, not left to fail every read.
	exists, err := s.redis.Client.Exists(ctx, subjectKeyPrefix+"p1").Result()
	s.Require().NoError(err)
	s.Zero(exists)
}
