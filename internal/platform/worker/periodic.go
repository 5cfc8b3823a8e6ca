// Package worker runs a function on a fixed interval with an explicit
// new -> Start -> Stop lifecycle. Every background loop in the engine (rate
// limit sweep, email tick, reminder scan) is a Periodic.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"corpdesk/internal/platform/clock"
	"corpdesk/internal/platform/logger"
)

// Func is one unit of periodic work. Errors are logged, never fatal.
type Func func(ctx context.Context) error

// Periodic calls fn every interval until stopped.
type Periodic struct {
	name         string
	interval     time.Duration
	initialDelay time.Duration
	runAtStart   bool
	fn           Func
	clock        clock.Clock
	logger       *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

type Option func(*Periodic)

func WithLogger(l *slog.Logger) Option {
	return func(p *Periodic) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(p *Periodic) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithInitialDelay runs fn once after delay, before the first interval tick.
func WithInitialDelay(delay time.Duration) Option {
	return func(p *Periodic) {
		p.runAtStart = true
		p.initialDelay = delay
	}
}

func New(name string, interval time.Duration, fn Func, opts ...Option) (*Periodic, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("worker %s: interval must be positive", name)
	}
	if fn == nil {
		return nil, fmt.Errorf("worker %s: func is required", name)
	}
	p := &Periodic{
		name:     name,
		interval: interval,
		fn:       fn,
		clock:    clock.Real{},
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start launches the loop. Calling Start on a running worker is a no-op.
func (p *Periodic) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	// Ticker is created before the goroutine so virtual-time tests can
	// advance immediately after Start returns.
	ticker := p.clock.NewTicker(p.interval)
	var initial <-chan time.Time
	if p.runAtStart {
		initial = p.clock.After(p.initialDelay)
	}

	go p.loop(ctx, ticker, initial, p.done)
	p.logger.Info("worker started", "worker", p.name, "interval", p.interval.String())
}

// Stop cancels the loop and waits for an in-flight run to return.
func (p *Periodic) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.running = false
	p.mu.Unlock()

	cancel()
	<-done
	p.logger.Info("worker stopped", "worker", p.name)
}

// Run blocks until ctx is cancelled. Suited to errgroup.Go.
func (p *Periodic) Run(ctx context.Context) error {
	p.Start(ctx)
	<-ctx.Done()
	p.Stop()
	return nil
}

func (p *Periodic) loop(ctx context.Context, ticker clock.Ticker, initial <-chan time.Time, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-initial:
			initial = nil
			p.runOnce(ctx)
		case <-ticker.C():
			p.runOnce(ctx)
		}
	}
}

func (p *Periodic) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "worker panic recovered", "worker", p.name, "panic", fmt.Sprint(r))
		}
	}()
	if err := p.fn(ctx); err != nil {
		p.logger.ErrorContext(ctx, "worker run failed", "worker", p.name, "error", err)
	}
}
