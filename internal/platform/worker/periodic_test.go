package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpdesk/internal/platform/clock"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNew_RejectsBadArguments(t *testing.T) {
	_, err := New("bad", 0, func(context.Context) error { return nil })
	assert.Error(t, err)

	_, err = New("bad", time.Second, nil)
	assert.Error(t, err)
}

func TestPeriodic_RunsOnEachTick(t *testing.T) {
	fake := clock.NewFake(epoch)
	calls := make(chan struct{}, 10)

	p, err := New("tick", time.Minute, func(context.Context) error {
		calls <- struct{}{}
		return nil
	}, WithClock(fake))
	require.NoError(t, err)

	p.Start(context.Background())
	defer p.Stop()

	fake.Advance(time.Minute)
	waitCall(t, calls)
	fake.Advance(time.Minute)
	waitCall(t, calls)
}

func TestPeriodic_InitialDelayRunsBeforeFirstTick(t *testing.T) {
	fake := clock.NewFake(epoch)
	calls := make(chan struct{}, 10)

	p, err := New("initial", time.Hour, func(context.Context) error {
		calls <- struct{}{}
		return nil
	}, WithClock(fake), WithInitialDelay(10*time.Second))
	require.NoError(t, err)

	p.Start(context.Background())
	defer p.Stop()

	fake.Advance(10 * time.Second)
	waitCall(t, calls)
	assert.Len(t, calls, 0)
}

func TestPeriodic_ErrorsAndPanicsDoNotStopTheLoop(t *testing.T) {
	fake := clock.NewFake(epoch)
	var n atomic.Int32
	calls := make(chan struct{}, 10)

	p, err := New("flaky", time.Second, func(context.Context) error {
		defer func() { calls <- struct{}{} }()
		switch n.Add(1) {
		case 1:
			return errors.New("boom")
		case 2:
			panic("worse")
		}
		return nil
	}, WithClock(fake))
	require.NoError(t, err)

	p.Start(context.Background())
	defer p.Stop()

	for i := 0; i < 3; i++ {
		fake.Advance(time.Second)
		waitCall(t, calls)
	}
	assert.Equal(t, int32(3), n.Load())
}

func TestPeriodic_StopIsIdempotentAndReleasesTicker(t *testing.T) {
	fake := clock.NewFake(epoch)
	p, err := New("stop", time.Second, func(context.Context) error { return nil }, WithClock(fake))
	require.NoError(t, err)

	p.Start(context.Background())
	p.Start(context.Background())
	p.Stop()
	p.Stop()

	assert.Equal(t, 0, fake.Tickers())
}

func waitCall(t *testing.T, calls <-chan struct{}) {
	t.Helper()
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not run")
	}
}
