// Package clock implements a two-sided countdown clock for turn-based games.
//
// Elapsed time is accounted from timestamps, not from the number of ticks:
// every reconciliation subtracts the wall time since the previous one and
// re-bases on "now", so late or irregular ticks never accumulate drift.
package clock

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTickInterval is how often a running clock reconciles itself.
const DefaultTickInterval = 100 * time.Millisecond

// TimeoutFunc is called once when a side's remaining time reaches zero.
type TimeoutFunc func(loser Side)

// Clock tracks the remaining time of White and Black. At most one side runs
// at a time.
type Clock struct {
	mu sync.Mutex

	initial time.Duration
	white   time.Duration
	black   time.Duration

	// active, last and run are set together: all present while a side runs,
	// all cleared while stopped.
	active Side
	last   time.Time
	run    *tickerRun

	onTimeout TimeoutFunc
	clock     clockwork.Clock
	interval  time.Duration
	logger    zerolog.Logger
}

// tickerRun is one activation of the periodic reconciliation.
type tickerRun struct {
	ticker clockwork.Ticker
	done   chan struct{}
}

func (r *tickerRun) stop() {
	r.ticker.Stop()
	close(r.done)
}

// Option configures a Clock.
type Option func(*Clock)

// WithClock sets the time source. In production, use clockwork.NewRealClock(). In tests, a FakeClock.
func WithClock(c clockwork.Clock) Option {
	return func(cl *Clock) {
		cl.clock = c
	}
}

// WithTickInterval sets how often a running side is reconciled.
func WithTickInterval(d time.Duration) Option {
	return func(cl *Clock) {
		if d > 0 {
			cl.interval = d
		}
	}
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l zerolog.Logger) Option {
	return func(cl *Clock) {
		cl.logger = l
	}
}

// New creates a stopped clock giving each side the given number of minutes.
// onTimeout may be nil.
func New(minutes float64, onTimeout TimeoutFunc, opts ...Option) (*Clock, error) {
	if !(minutes > 0) || math.IsInf(minutes, 1) || minutes*float64(time.Minute) >= math.MaxInt64 {
		return nil, fmt.Errorf("new clock with %v minutes: %w", minutes, ErrInvalidAllotment)
	}

	initial := time.Duration(minutes * float64(time.Minute))
	c := &Clock{
		initial:   initial,
		white:     initial,
		black:     initial,
		active:    None,
		onTimeout: onTimeout,
		clock:     clockwork.NewRealClock(),
		interval:  DefaultTickInterval,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start runs side's countdown. If the other side was running, its time up to
// now is charged first, which may flag it before side starts.
func (c *Clock) Start(side Side) error {
	if !side.Valid() {
		return fmt.Errorf("start %s: %w", side, ErrInvalidSide)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != None && c.active != side {
		c.notifyUnlocked(c.tickLocked())
	}
	c.notifyUnlocked(c.stopLocked())

	c.active = side
	c.last = c.clock.Now()
	run := &tickerRun{
		ticker: c.clock.NewTicker(c.interval),
		done:   make(chan struct{}),
	}
	c.run = run
	go c.loop(run)

	c.logger.Debug().
		Str("side", side.String()).
		Dur("remaining", c.remainingLocked(side)).
		Msg("clock started")
	return nil
}

// Stop charges the running side up to now and pauses the clock. Stopping a
// stopped clock does nothing.
func (c *Clock) Stop() {
	c.mu.Lock()
	wasActive := c.active
	loser := c.stopLocked()
	c.mu.Unlock()

	if wasActive != None && loser == None {
		c.logger.Debug().Str("side", wasActive.String()).Msg("clock stopped")
	}
	c.notify(loser)
}

// Tick charges the running side for the time since the previous
// reconciliation. It is called by the clock's own ticker and is safe to call
// directly.
func (c *Clock) Tick() {
	c.mu.Lock()
	loser := c.tickLocked()
	c.mu.Unlock()

	c.notify(loser)
}

// Reset stops the clock and restores both sides to the initial allotment.
func (c *Clock) Reset() {
	c.mu.Lock()
	loser := c.stopLocked()
	c.white = c.initial
	c.black = c.initial
	c.mu.Unlock()

	c.logger.Debug().Dur("initial", c.initial).Msg("clock reset")
	c.notify(loser)
}

// DisplayString renders side's remaining time as "MM:SS" as of the last
// reconciliation. Partial seconds round up so "00:00" only shows once the
// side has actually run out.
func (c *Clock) DisplayString(side Side) (string, error) {
	if !side.Valid() {
		return "", fmt.Errorf("display %s: %w", side, ErrInvalidSide)
	}

	c.mu.Lock()
	remaining := c.remainingLocked(side)
	c.mu.Unlock()

	return FormatRemaining(remaining), nil
}

// Remaining returns side's stored remaining time. Invalid sides report zero.
func (c *Clock) Remaining(side Side) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked(side)
}

// Active returns the running side, or None when paused.
func (c *Clock) Active() Side {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Running reports whether a side is currently counting down.
func (c *Clock) Running() bool {
	return c.Active() != None
}

// Initial returns the per-side allotment.
func (c *Clock) Initial() time.Duration {
	return c.initial
}

// Snapshot is a consistent view of both sides.
type Snapshot struct {
	White        time.Duration
	Black        time.Duration
	WhiteDisplay string
	BlackDisplay string
	Active       Side
}

// Snapshot returns both sides and the running side as of the last
// reconciliation.
func (c *Clock) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		White:        c.white,
		Black:        c.black,
		WhiteDisplay: FormatRemaining(c.white),
		BlackDisplay: FormatRemaining(c.black),
		Active:       c.active,
	}
}

// FormatRemaining formats d as zero-padded minutes and seconds, rounding
// partial seconds up. Negative durations show as "00:00".
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// loop reconciles on every tick until run is cancelled. A tick that races
// with cancellation is dropped because run is no longer the clock's run.
func (c *Clock) loop(run *tickerRun) {
	for {
		select {
		case <-run.done:
			return
		case <-run.ticker.Chan():
			c.mu.Lock()
			if c.run != run {
				c.mu.Unlock()
				return
			}
			loser := c.tickLocked()
			c.mu.Unlock()

			c.notify(loser)
		}
	}
}

// tickLocked charges the running side and returns it if it ran out.
func (c *Clock) tickLocked() Side {
	if c.active == None || c.last.IsZero() {
		return None
	}

	now := c.clock.Now()
	elapsed := now.Sub(c.last)
	if elapsed < 0 {
		elapsed = 0
	}
	c.last = now

	side := c.active
	remaining := c.counterLocked(side)
	*remaining -= elapsed
	if *remaining > 0 {
		return None
	}

	*remaining = 0
	c.expireLocked(side)
	return side
}

// stopLocked charges the running side one last time and releases the ticker.
// It returns the side that ran out during that final charge, if any.
func (c *Clock) stopLocked() Side {
	var loser Side
	if c.active != None {
		loser = c.tickLocked()
	}
	c.haltLocked()
	return loser
}

// haltLocked cancels the ticker and clears the running side without charging.
func (c *Clock) haltLocked() {
	if c.run != nil {
		c.run.stop()
		c.run = nil
	}
	c.active = None
	c.last = time.Time{}
}

func (c *Clock) expireLocked(loser Side) {
	c.haltLocked()
	c.white = max(c.white, 0)
	c.black = max(c.black, 0)

	c.logger.Info().
		Str("side", loser.String()).
		Dur("opponent_remaining", c.remainingLocked(loser.Opponent())).
		Msg("flag fell")
}

func (c *Clock) counterLocked(side Side) *time.Duration {
	if side == White {
		return &c.white
	}
	return &c.black
}

func (c *Clock) remainingLocked(side Side) time.Duration {
	switch side {
	case White:
		return c.white
	case Black:
		return c.black
	default:
		return 0
	}
}

// notify calls the timeout callback for loser. Must be called without c.mu held.
func (c *Clock) notify(loser Side) {
	if loser == None || c.onTimeout == nil {
		return
	}
	c.onTimeout(loser)
}

// notifyUnlocked releases c.mu around the timeout callback so the callback
// may use the clock.
func (c *Clock) notifyUnlocked(loser Side) {
	if loser == None || c.onTimeout == nil {
		return
	}
	c.mu.Unlock()
	defer c.mu.Lock()
	c.onTimeout(loser)
}
