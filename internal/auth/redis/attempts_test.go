// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/holomush/worldgate/internal/auth"
	"github.com/holomush/worldgate/internal/clock/clocktest"
	"github.com/holomush/worldgate/pkg/errutil"
)

type AttemptStoreSuite struct {
	suite.Suite
	mini  *miniredis.Miniredis
	store *AttemptStore
	ctx   context.Context
}

func TestAttemptStoreSuite(t *testing.T) {
	suite.Run(t, new(AttemptStoreSuite))
}

func (s *AttemptStoreSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: s.mini.Addr()})
	s.store = NewWithClient(client, Config{TTL: time.Hour})
	s.ctx = context.Background()
}

func (s *AttemptStoreSuite) TearDownTest() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

func (s *AttemptStoreSuite) TestMissingRecordIsZero() {
	rec, err := s.store.GetLoginAttempts(s.ctx, "10.0.0.1")
	s.Require().NoError(err)
	s.Equal(auth.LoginAttempts{Address: "10.0.0.1"}, rec)
}

func (s *AttemptStoreSuite) TestRoundTrip() {
	last := time.Date(2026, time.June, 1, 8, 30, 0, 0, time.UTC)
	want := auth.LoginAttempts{Address: "10.0.0.1", Attempts: 3, LastAttempt: last}

	s.Require().NoError(s.store.SetLoginAttempts(s.ctx, want))

	got, err := s.store.GetLoginAttempts(s.ctx, "10.0.0.1")
	s.Require().NoError(err)
	s.Equal(want, got)

	s.True(s.mini.Exists(DefaultKeyPrefix + "10.0.0.1"))
	s.Equal(time.Hour, s.mini.TTL(DefaultKeyPrefix+"10.0.0.1"))
}

func (s *AttemptStoreSuite) TestOverwrite() {
	rec := auth.LoginAttempts{Address: "10.0.0.1", Attempts: 1, LastAttempt: time.UnixMilli(1000).UTC()}
	s.Require().NoError(s.store.SetLoginAttempts(s.ctx, rec))
	rec.Attempts = 0
	s.Require().NoError(s.store.SetLoginAttempts(s.ctx, rec))

	got, err := s.store.GetLoginAttempts(s.ctx, "10.0.0.1")
	s.Require().NoError(err)
	s.Zero(got.Attempts)
	s.Equal(rec.LastAttempt, got.LastAttempt)
}

func (s *AttemptStoreSuite) TestRecordExpires() {
	rec := auth.LoginAttempts{Address: "10.0.0.1", Attempts: 2, LastAttempt: time.UnixMilli(1000).UTC()}
	s.Require().NoError(s.store.SetLoginAttempts(s.ctx, rec))

	s.mini.FastForward(time.Hour + time.Second)

	got, err := s.store.GetLoginAttempts(s.ctx, "10.0.0.1")
	s.Require().NoError(err)
	s.Zero(got.Attempts)
}

func (s *AttemptStoreSuite) TestCorruptRecord() {
	s.mini.HSet(DefaultKeyPrefix+"10.0.0.1", fieldAttempts, "many", fieldLastAttempt, "0")

	_, err := s.store.GetLoginAttempts(s.ctx, "10.0.0.1")
	s.Require().Error(err)
	errutil.AssertErrorCode(s.T(), err, "ATTEMPTS_CORRUPT")
}

func (s *AttemptStoreSuite) TestServerDown() {
	s.mini.Close()

	_, err := s.store.GetLoginAttempts(s.ctx, "10.0.0.1")
	s.Require().Error(err)
	errutil.AssertErrorCode(s.T(), err, "ATTEMPTS_GET_FAILED")
}

func (s *AttemptStoreSuite) TestIncrementCreatesRecord() {
	now := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)

	rec, err := s.store.IncrementLoginAttempts(s.ctx, "10.0.0.8", now)
	s.Require().NoError(err)
	s.Equal(1, rec.Attempts)
	s.Equal(now, rec.LastAttempt)

	got, err := s.store.GetLoginAttempts(s.ctx, "10.0.0.8")
	s.Require().NoError(err)
	s.Equal(rec, got)
}

func (s *AttemptStoreSuite) TestConcurrentIncrementsAreCounted() {
	now := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	const failures = 25

	var wg sync.WaitGroup
	errs := make(chan error, failures)
	for i := 0; i < failures; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.IncrementLoginAttempts(s.ctx, "10.0.0.9", now)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	got, err := s.store.GetLoginAttempts(s.ctx, "10.0.0.9")
	s.Require().NoError(err)
	s.Equal(failures, got.Attempts)
}

func (s *AttemptStoreSuite) TestIncrementServerDown() {
	s.mini.Close()

	_, err := s.store.IncrementLoginAttempts(s.ctx, "10.0.0.1", time.Now())
	s.Require().Error(err)
	errutil.AssertErrorCode(s.T(), err, "ATTEMPTS_INCREMENT_FAILED")
}

func (s *AttemptStoreSuite) TestDrivesRateLimiter() {
	clk := clocktest.New(time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC))
	limiter, err := auth.NewRateLimiter(s.store, clk)
	s.Require().NoError(err)

	for i := 0; i < auth.ThrottleThreshold; i++ {
		_, err := limiter.Admit(s.ctx, "10.0.0.7")
		s.Require().NoError(err)
		s.Require().NoError(limiter.RecordFailure(s.ctx, "10.0.0.7"))
	}

	adm, err := limiter.Admit(s.ctx, "10.0.0.7")
	s.Require().NoError(err)
	s.True(adm.Throttled)
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(context.Background(), Config{URL: "http://not-redis"})
	errutil.AssertErrorCode(t, err, "ATTEMPTS_CONFIG_INVALID")
}

func TestNew_Connects(t *testing.T) {
	mini := miniredis.RunT(t)
	store, err := New(context.Background(), Config{URL: "redis://" + mini.Addr()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
