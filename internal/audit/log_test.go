package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"corpdesk/internal/platform/clock"
)

type LogSuite struct {
	suite.Suite
	clock *clock.Fake
	ctx   context.Context
}

func TestLogSuite(t *testing.T) {
	suite.Run(t, new(LogSuite))
}

func (s *LogSuite) SetupTest() {
	s.clock = clock.NewFake(time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC))
	s.ctx = context.Background()
}

func (s *LogSuite) TestAppend() {
	s.Run("stamps the entry with the clock and assigns an id", func() {
		log := NewLog(10, WithClock(s.clock))
		stored := log.Append(s.ctx, Entry{Action: ActionRateLimitExceeded, TargetID: "login:alice"})

		s.Equal(s.clock.Now(), stored.Timestamp)
		s.NotEqual(uuid.Nil, stored.ID)
		s.Equal(1, log.Len())
	})

	s.Run("details are copied on the way in", func() {
		log := NewLog(10, WithClock(s.clock))
		details := map[string]string{"category": "login"}
		log.Append(s.ctx, Entry{Action: ActionRateLimitExceeded, Details: details})

		details["category"] = "tampered"
		s.Equal("login", log.Recent(1)[0].Details["category"])
	})
}

func (s *LogSuite) TestRecent() {
	s.Run("returns newest first", func() {
		log := NewLog(10, WithClock(s.clock))
		for i := range 3 {
			log.Append(s.ctx, Entry{Action: Action(fmt.Sprintf("a%d", i))})
			s.clock.Advance(time.Second)
		}

		got := log.Recent(10)
		s.Require().Len(got, 3)
		s.Equal(Action("a2"), got[0].Action)
		s.Equal(Action("a1"), got[1].Action)
		s.Equal(Action("a0"), got[2].Action)
	})

	s.Run("limit smaller than size", func() {
		log := NewLog(10, WithClock(s.clock))
		for i := range 5 {
			log.Append(s.ctx, Entry{Action: Action(fmt.Sprintf("a%d", i))})
		}

		got := log.Recent(2)
		s.Require().Len(got, 2)
		s.Equal(Action("a4"), got[0].Action)
		s.Equal(Action("a3"), got[1].Action)
	})

	s.Run("non-positive limit and empty log", func() {
		log := NewLog(10)
		s.Empty(log.Recent(5))
		log.Append(s.ctx, Entry{Action: ActionReminderSent})
		s.Empty(log.Recent(0))
		s.Empty(log.Recent(-1))
	})
}

func (s *LogSuite) TestCapacityEvictsOldestFirst() {
	const capacity = 100
	log := NewLog(capacity, WithClock(s.clock))

	first := log.Append(s.ctx, Entry{Action: "first"})
	for i := 0; i < capacity; i++ {
		log.Append(s.ctx, Entry{Action: Action(fmt.Sprintf("e%d", i))})
	}

	recent := log.Recent(capacity)
	s.Len(recent, capacity)
	for _, e := range recent {
		s.NotEqual(first.ID, e.ID)
	}
	s.Equal(capacity, log.Len())
	s.Equal(int64(1), log.Dropped())
	s.Equal(Action(fmt.Sprintf("e%d", capacity-1)), recent[0].Action)
	s.Equal(Action("e0"), recent[capacity-1].Action)
}

func (s *LogSuite) TestDefaultCapacity() {
	log := NewLog(0)
	s.Equal(DefaultCapacity, log.capacity)
}

func (s *LogSuite) TestMirror() {
	s.Run("mirrors appended entries", func() {
		log := NewLog(10, WithMirror(2))
		stored := log.Append(s.ctx, Entry{Action: ActionReminderSent})

		select {
		case got := <-log.Mirror():
			s.Equal(stored.ID, got.ID)
		default:
			s.Fail("entry was not mirrored")
		}
	})

	s.Run("full mirror does not block append", func() {
		log := NewLog(10, WithMirror(1))
		log.Append(s.ctx, Entry{Action: "a"})
		log.Append(s.ctx, Entry{Action: "b"})

		s.Equal(2, log.Len())
		s.Len(log.Mirror(), 1)
	})

	s.Run("no mirror by default", func() {
		s.Nil(NewLog(10).Mirror())
	})
}

func (s *LogSuite) TestConcurrentAppend() {
	log := NewLog(50)
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				log.Append(s.ctx, Entry{Action: ActionRateLimitExceeded})
			}
		}()
	}
	wg.Wait()

	s.Equal(50, log.Len())
	s.Equal(int64(150), log.Dropped())
}
