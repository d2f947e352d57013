package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSaveEvery is the number of ticks between automatic snapshot writes.
const DefaultSaveEvery = 10

// Ticker is the clock a countdown advances on.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewTickerFunc builds a Ticker firing every d.
type NewTickerFunc func(d time.Duration) Ticker

type wallTicker struct {
	ticker *time.Ticker
}

func (t wallTicker) C() <-chan time.Time { return t.ticker.C }
func (t wallTicker) Stop()               { t.ticker.Stop() }

// WallTicker is the real-time Ticker.
func WallTicker(d time.Duration) Ticker {
	return wallTicker{ticker: time.NewTicker(d)}
}

// CountdownConfig configures a Countdown. Callbacks run on the countdown goroutine.
type CountdownConfig struct {
	// Remaining is the time left in whole seconds.
	Remaining int
	// SaveEvery triggers OnSave every N ticks; zero disables it.
	SaveEvery int
	OnTick    func(remaining int)
	OnSave    func(remaining int)
	// OnExpire runs once when the countdown reaches zero, after Done is closed.
	OnExpire  func()
	NewTicker NewTickerFunc
}

// Countdown is a one-second timer for an assessment attempt. It owns its goroutine
// and is cancelled with Stop.
type Countdown struct {
	cfg       CountdownConfig
	remaining atomic.Int64
	expired   atomic.Bool
	done      chan struct{}
	cancel    context.CancelFunc
	startOnce sync.Once
}

// NewCountdown prepares a countdown without starting it.
func NewCountdown(cfg CountdownConfig) *Countdown {
	if cfg.NewTicker == nil {
		cfg.NewTicker = WallTicker
	}
	c := &Countdown{cfg: cfg, done: make(chan struct{}), cancel: func() {}}
	c.remaining.Store(int64(cfg.Remaining))
	return c
}

// StartCountdown creates and starts a countdown bound to ctx.
func StartCountdown(ctx context.Context, cfg CountdownConfig) *Countdown {
	c := NewCountdown(cfg)
	c.Start(ctx)
	return c
}

// Start launches the countdown goroutine. Subsequent calls are no-ops.
func (c *Countdown) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		go c.run(ctx)
	})
}

func (c *Countdown) run(ctx context.Context) {
	expired := c.loop(ctx)
	c.cancel()
	close(c.done)
	if expired && c.cfg.OnExpire != nil {
		c.cfg.OnExpire()
	}
}

func (c *Countdown) loop(ctx context.Context) bool {
	if c.remaining.Load() <= 0 {
		c.remaining.Store(0)
		c.expired.Store(true)
		return true
	}

	ticker := c.cfg.NewTicker(time.Second)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C():
			remaining := int(c.remaining.Add(-1))
			ticks++
			if c.cfg.OnTick != nil {
				c.cfg.OnTick(remaining)
			}
			if remaining <= 0 {
				c.remaining.Store(0)
				c.expired.Store(true)
				return true
			}
			if c.cfg.SaveEvery > 0 && ticks%c.cfg.SaveEvery == 0 && c.cfg.OnSave != nil {
				c.cfg.OnSave(remaining)
			}
		}
	}
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	return int(c.remaining.Load())
}

// Expired reports whether the countdown reached zero.
func (c *Countdown) Expired() bool {
	return c.expired.Load()
}

// Done is closed when the countdown goroutine exits.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}

// Stop cancels the countdown, waits for its goroutine and returns the seconds left.
// Stopping a countdown that was never started returns immediately.
func (c *Countdown) Stop() int {
	started := true
	c.startOnce.Do(func() {
		started = false
		close(c.done)
	})
	if started {
		c.cancel()
		<-c.done
	}
	return c.Remaining()
}
