package clock

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// timeouts records every flag fall reported by a clock.
type timeouts struct {
	mu    sync.Mutex
	sides []Side
	ch    chan Side
}

func newTimeouts() *timeouts {
	return &timeouts{ch: make(chan Side, 16)}
}

func (r *timeouts) record(side Side) {
	r.mu.Lock()
	r.sides = append(r.sides, side)
	r.mu.Unlock()
	r.ch <- side
}

func (r *timeouts) all() []Side {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Side(nil), r.sides...)
}

// newManualClock returns a clock whose ticker never fires during a test, so
// every reconciliation comes from an explicit call.
func newManualClock(t *testing.T, minutes float64, onTimeout TimeoutFunc) (*Clock, *clockwork.FakeClock) {
	t.Helper()

	fc := clockwork.NewFakeClockAt(epoch)
	c, err := New(minutes, onTimeout,
		WithClock(fc),
		WithTickInterval(24*time.Hour),
		WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	return c, fc
}

func assertInvariants(t *testing.T, c *Clock) {
	t.Helper()

	c.mu.Lock()
	defer c.mu.Unlock()

	assert.GreaterOrEqual(t, c.white, time.Duration(0))
	assert.GreaterOrEqual(t, c.black, time.Duration(0))
	running := c.active != None
	assert.Equal(t, running, !c.last.IsZero(), "timestamp presence must match active side")
	assert.Equal(t, running, c.run != nil, "ticker presence must match active side")
}

func TestNew(t *testing.T) {
	c, err := New(10, nil, WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, c.Initial())
	assert.Equal(t, 10*time.Minute, c.Remaining(White))
	assert.Equal(t, 10*time.Minute, c.Remaining(Black))
	assert.Equal(t, None, c.Active())
	assert.False(t, c.Running())
	assertInvariants(t, c)
}

func TestNew_FractionalMinutes(t *testing.T) {
	c, err := New(0.5, nil, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, c.Initial())
}

func TestNew_InvalidAllotment(t *testing.T) {
	for _, minutes := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1), 1e12} {
		_, err := New(minutes, nil)
		assert.ErrorIs(t, err, ErrInvalidAllotment, "minutes=%v", minutes)
	}
}

func TestNew_LargestAllotmentDisplaysPositive(t *testing.T) {
	minutes := float64(time.Duration(math.MaxInt64)-500*time.Millisecond) / float64(time.Minute)
	c, err := New(minutes, nil)
	require.NoError(t, err)

	display, err := c.DisplayString(White)
	require.NoError(t, err)
	assert.Equal(t, "153722867:17", display)
}

func TestStopAfterElapsed(t *testing.T) {
	c, fc := newManualClock(t, 10, nil)

	require.NoError(t, c.Start(White))
	fc.Advance(65400 * time.Millisecond)
	c.Stop()

	assert.Equal(t, 534600*time.Millisecond, c.Remaining(White))
	assert.InDelta(t, 534.6, c.Remaining(White).Seconds(), 1e-9)
	assert.Equal(t, 10*time.Minute, c.Remaining(Black))

	display, err := c.DisplayString(White)
	require.NoError(t, err)
	assert.Equal(t, "08:55", display)
	assert.Equal(t, None, c.Active())
	assertInvariants(t, c)
}

func TestTimeout(t *testing.T) {
	rec := newTimeouts()
	c, fc := newManualClock(t, 1, rec.record)

	require.NoError(t, c.Start(White))
	fc.Advance(60*time.Second + 250*time.Millisecond)
	c.Tick()

	assert.Equal(t, time.Duration(0), c.Remaining(White))
	assert.Equal(t, []Side{White}, rec.all())
	assert.Equal(t, None, c.Active())
	assertInvariants(t, c)

	// A stopped clock is not charged again and does not re-fire.
	fc.Advance(10 * time.Second)
	c.Tick()
	c.Stop()
	assert.Equal(t, []Side{White}, rec.all())
	assert.Equal(t, time.Duration(0), c.Remaining(White))
	assert.Equal(t, time.Minute, c.Remaining(Black))
}

func TestTimeout_ExactlyZero(t *testing.T) {
	rec := newTimeouts()
	c, fc := newManualClock(t, 1, rec.record)

	require.NoError(t, c.Start(Black))
	fc.Advance(time.Minute)
	c.Tick()

	assert.Equal(t, []Side{Black}, rec.all())
	assert.Equal(t, time.Duration(0), c.Remaining(Black))
}

func TestTimeout_DuringStop(t *testing.T) {
	rec := newTimeouts()
	c, fc := newManualClock(t, 1, rec.record)

	require.NoError(t, c.Start(White))
	fc.Advance(2 * time.Minute)
	c.Stop()

	assert.Equal(t, []Side{White}, rec.all())
	assert.Equal(t, time.Duration(0), c.Remaining(White))
	assertInvariants(t, c)
}

func TestTimeout_NilCallback(t *testing.T) {
	c, fc := newManualClock(t, 1, nil)

	require.NoError(t, c.Start(White))
	fc.Advance(2 * time.Minute)
	c.Tick()

	assert.Equal(t, time.Duration(0), c.Remaining(White))
	assert.Equal(t, None, c.Active())
}

func TestTimeout_CanRestartAfterFlag(t *testing.T) {
	rec := newTimeouts()
	c, fc := newManualClock(t, 1, rec.record)

	require.NoError(t, c.Start(White))
	fc.Advance(time.Minute)
	c.Tick()
	require.Equal(t, []Side{White}, rec.all())

	// White has nothing left, so starting it flags it again immediately on
	// the next reconciliation.
	require.NoError(t, c.Start(White))
	fc.Advance(time.Millisecond)
	c.Tick()
	assert.Equal(t, []Side{White, White}, rec.all())
}

func TestSwitchSides(t *testing.T) {
	c, fc := newManualClock(t, 5, nil)

	require.NoError(t, c.Start(White))
	fc.Advance(10 * time.Second)
	require.NoError(t, c.Start(Black))

	assert.Equal(t, 5*time.Minute-10*time.Second, c.Remaining(White))
	assert.Equal(t, 5*time.Minute, c.Remaining(Black))
	assert.Equal(t, Black, c.Active())

	c.mu.Lock()
	assert.True(t, c.last.Equal(fc.Now()), "timestamp must be taken at the switch")
	c.mu.Unlock()
	assertInvariants(t, c)

	fc.Advance(3 * time.Second)
	c.Stop()
	assert.Equal(t, 5*time.Minute-10*time.Second, c.Remaining(White))
	assert.Equal(t, 5*time.Minute-3*time.Second, c.Remaining(Black))
}

func TestSwitchSides_OutgoingSideFlags(t *testing.T) {
	rec := newTimeouts()
	c, fc := newManualClock(t, 1, func(side Side) {
		rec.record(side)
	})

	require.NoError(t, c.Start(White))
	fc.Advance(90 * time.Second)
	require.NoError(t, c.Start(Black))

	// The outgoing side is recognised as flagged before Black is armed, and
	// Black still starts afterwards.
	assert.Equal(t, []Side{White}, rec.all())
	assert.Equal(t, time.Duration(0), c.Remaining(White))
	assert.Equal(t, Black, c.Active())
	assertInvariants(t, c)
}

func TestStart_SameSideKeepsCharging(t *testing.T) {
	c, fc := newManualClock(t, 3, nil)

	require.NoError(t, c.Start(White))
	fc.Advance(4 * time.Second)
	require.NoError(t, c.Start(White))
	fc.Advance(6 * time.Second)
	c.Stop()

	assert.Equal(t, 3*time.Minute-10*time.Second, c.Remaining(White))
}

func TestStart_InvalidSide(t *testing.T) {
	c, fc := newManualClock(t, 3, nil)

	require.NoError(t, c.Start(White))
	fc.Advance(time.Second)

	for _, side := range []Side{None, Side(7), Side(-1)} {
		err := c.Start(side)
		assert.ErrorIs(t, err, ErrInvalidSide)
	}

	// The rejected calls neither charged nor switched anything.
	assert.Equal(t, White, c.Active())
	assert.Equal(t, 3*time.Minute, c.Remaining(White))
	assert.Equal(t, 3*time.Minute, c.Remaining(Black))
	assertInvariants(t, c)
}

func TestStop_Idempotent(t *testing.T) {
	c, fc := newManualClock(t, 3, nil)

	require.NoError(t, c.Start(Black))
	fc.Advance(2 * time.Second)
	c.Stop()
	first := c.Snapshot()

	fc.Advance(5 * time.Second)
	c.Stop()
	assert.Equal(t, first, c.Snapshot())
	assertInvariants(t, c)
}

func TestStop_WhenNeverStarted(t *testing.T) {
	c, _ := newManualClock(t, 3, nil)
	c.Stop()
	assert.Equal(t, None, c.Active())
	assert.Equal(t, 3*time.Minute, c.Remaining(White))
	assertInvariants(t, c)
}

func TestTick_StoppedIsNoop(t *testing.T) {
	c, fc := newManualClock(t, 3, nil)
	fc.Advance(time.Minute)
	c.Tick()
	assert.Equal(t, 3*time.Minute, c.Remaining(White))
	assert.Equal(t, 3*time.Minute, c.Remaining(Black))
}

func TestTick_DriftResistance(t *testing.T) {
	c, fc := newManualClock(t, 10, nil)

	gaps := []time.Duration{
		100 * time.Millisecond,
		97 * time.Millisecond,
		340 * time.Millisecond,
		3 * time.Millisecond,
		1250 * time.Millisecond,
		0,
		101 * time.Millisecond,
		7 * time.Second,
		13 * time.Millisecond,
	}

	require.NoError(t, c.Start(White))
	var total time.Duration
	for _, gap := range gaps {
		fc.Advance(gap)
		total += gap
		c.Tick()
		assert.Equal(t, 10*time.Minute-total, c.Remaining(White))
	}

	// Same total in one reconciliation gives the same result.
	other, ofc := newManualClock(t, 10, nil)
	require.NoError(t, other.Start(White))
	ofc.Advance(total)
	other.Tick()

	assert.Equal(t, other.Remaining(White), c.Remaining(White))
}

func TestReset(t *testing.T) {
	rec := newTimeouts()
	c, fc := newManualClock(t, 2, rec.record)

	require.NoError(t, c.Start(White))
	fc.Advance(30 * time.Second)
	require.NoError(t, c.Start(Black))
	fc.Advance(3 * time.Minute)
	c.Tick()
	require.Equal(t, []Side{Black}, rec.all())

	require.NoError(t, c.Start(White))
	fc.Advance(time.Second)
	c.Reset()

	assert.Equal(t, 2*time.Minute, c.Remaining(White))
	assert.Equal(t, 2*time.Minute, c.Remaining(Black))
	assert.Equal(t, None, c.Active())
	assertInvariants(t, c)

	fc.Advance(time.Minute)
	c.Tick()
	assert.Equal(t, 2*time.Minute, c.Remaining(White))
}

func TestDisplayString(t *testing.T) {
	c, fc := newManualClock(t, 10, nil)

	display, err := c.DisplayString(White)
	require.NoError(t, err)
	assert.Equal(t, "10:00", display)

	require.NoError(t, c.Start(Black))
	fc.Advance(10 * time.Millisecond)

	// Not reconciled yet, so the stored value is shown.
	display, err = c.DisplayString(Black)
	require.NoError(t, err)
	assert.Equal(t, "10:00", display)

	c.Tick()
	display, err = c.DisplayString(Black)
	require.NoError(t, err)
	assert.Equal(t, "10:00", display, "partial seconds round up")

	fc.Advance(990 * time.Millisecond)
	c.Tick()
	display, err = c.DisplayString(Black)
	require.NoError(t, err)
	assert.Equal(t, "09:59", display)
}

func TestDisplayString_InvalidSide(t *testing.T) {
	c, _ := newManualClock(t, 10, nil)

	_, err := c.DisplayString(None)
	assert.ErrorIs(t, err, ErrInvalidSide)
	_, err = c.DisplayString(Side(9))
	assert.ErrorIs(t, err, ErrInvalidSide)
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want string
	}{
		{"zero", 0, "00:00"},
		{"negative", -5 * time.Second, "00:00"},
		{"one nanosecond", time.Nanosecond, "00:01"},
		{"just under a second", 999 * time.Millisecond, "00:01"},
		{"one second", time.Second, "00:01"},
		{"fraction above minute", 59*time.Second + time.Millisecond, "01:00"},
		{"ten minutes", 10 * time.Minute, "10:00"},
		{"scenario", 534600 * time.Millisecond, "08:55"},
		{"ninety nine minutes", 99*time.Minute + 59*time.Second, "99:59"},
		{"over ninety nine minutes", 120 * time.Minute, "120:00"},
		{"largest duration", time.Duration(math.MaxInt64), "153722867:17"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRemaining(tt.in))
		})
	}
}

func TestDisplayString_NeverZeroWhilePositive(t *testing.T) {
	c, fc := newManualClock(t, 1.0/60.0, nil)
	require.NoError(t, c.Start(White))

	for c.Running() {
		fc.Advance(37 * time.Millisecond)
		c.Tick()

		display, err := c.DisplayString(White)
		require.NoError(t, err)
		if c.Remaining(White) > 0 {
			assert.NotEqual(t, "00:00", display)
		} else {
			assert.Equal(t, "00:00", display)
		}
	}
}

func TestSnapshot(t *testing.T) {
	c, fc := newManualClock(t, 5, nil)

	require.NoError(t, c.Start(White))
	fc.Advance(1500 * time.Millisecond)
	c.Tick()

	snap := c.Snapshot()
	assert.Equal(t, 5*time.Minute-1500*time.Millisecond, snap.White)
	assert.Equal(t, 5*time.Minute, snap.Black)
	assert.Equal(t, "04:59", snap.WhiteDisplay)
	assert.Equal(t, "05:00", snap.BlackDisplay)
	assert.Equal(t, White, snap.Active)
}

func TestCallbackMayUseClock(t *testing.T) {
	var c *Clock
	var seen string
	c, fc := newManualClock(t, 1, func(side Side) {
		seen, _ = c.DisplayString(side)
		_ = c.Start(side.Opponent())
	})

	require.NoError(t, c.Start(White))
	fc.Advance(2 * time.Minute)
	c.Tick()

	assert.Equal(t, "00:00", seen)
	assert.Equal(t, Black, c.Active())
	assertInvariants(t, c)
	c.Stop()
}

func TestTicker_ReconcilesPeriodically(t *testing.T) {
	fc := clockwork.NewFakeClockAt(epoch)
	c, err := New(10, nil, WithClock(fc), WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	require.NoError(t, c.Start(White))
	defer c.Stop()

	fc.Advance(2 * time.Second)
	require.Eventually(t, func() bool {
		return c.Remaining(White) == 10*time.Minute-2*time.Second
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTicker_FiresTimeoutOnce(t *testing.T) {
	rec := newTimeouts()
	fc := clockwork.NewFakeClockAt(epoch)
	c, err := New(1, rec.record, WithClock(fc), WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	require.NoError(t, c.Start(Black))
	fc.Advance(61 * time.Second)

	select {
	case side := <-rec.ch:
		assert.Equal(t, Black, side)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout callback was not called")
	}

	fc.Advance(5 * time.Second)
	select {
	case side := <-rec.ch:
		t.Fatalf("unexpected second timeout for %s", side)
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, []Side{Black}, rec.all())
	assert.Equal(t, None, c.Active())
	assertInvariants(t, c)
}

func TestTicker_StoppedClockIsNotCharged(t *testing.T) {
	fc := clockwork.NewFakeClockAt(epoch)
	c, err := New(10, nil, WithClock(fc), WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	require.NoError(t, c.Start(White))
	fc.Advance(time.Second)
	c.Stop()
	remaining := c.Remaining(White)

	fc.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, remaining, c.Remaining(White))
	assert.Equal(t, 10*time.Minute-time.Second, remaining)
}
