package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/clockd/go/internal/clock"
	"github.com/mcdev12/clockd/go/internal/events"
)

// ErrGameNotFound is returned when no game exists for an ID
var ErrGameNotFound = errors.New("game not found")

// Notifier receives every event a game emits
type Notifier interface {
	Notify(ctx context.Context, event *events.Event) error
}

// NotifierFunc adapts a function to a Notifier
type NotifierFunc func(ctx context.Context, event *events.Event) error

func (f NotifierFunc) Notify(ctx context.Context, event *events.Event) error {
	return f(ctx, event)
}

// MultiNotifier fans an event out to every notifier, collecting failures
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, event *events.Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Session is one game and the clock it owns
type Session struct {
	ID        uuid.UUID
	Minutes   float64
	CreatedAt time.Time
	Clock     *clock.Clock

	// eventsMu orders flag changes with the events announcing them
	eventsMu sync.Mutex

	mu        sync.Mutex
	loser     clock.Side
	flaggedAt time.Time
}

// Flag returns the side that last ran out of time and when, or None
func (s *Session) Flag() (clock.Side, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loser, s.flaggedAt
}

// recordFlag marks loser as flagged unless its time has been restored since
// the timeout was detected.
func (s *Session) recordFlag(loser clock.Side, at time.Time) bool {
	if s.Clock.Remaining(loser) > 0 {
		return false
	}
	s.setFlag(loser, at)
	return true
}

func (s *Session) setFlag(loser clock.Side, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loser = loser
	s.flaggedAt = at
}

func (s *Session) clearFlag() {
	s.setFlag(clock.None, time.Time{})
}

// State is the externally visible state of a game
type State struct {
	GameID    string            `json:"game_id"`
	Minutes   float64           `json:"minutes"`
	CreatedAt time.Time         `json:"created_at"`
	Clock     events.ClockState `json:"clock"`
	Loser     clock.Side        `json:"loser"`
	FlaggedAt *time.Time        `json:"flagged_at,omitempty"`
}

// State returns a consistent view of the session
func (s *Session) State() State {
	state := State{
		GameID:    s.ID.String(),
		Minutes:   s.Minutes,
		CreatedAt: s.CreatedAt,
		Clock:     events.NewClockState(s.Clock.Snapshot(), s.Clock.Initial()),
	}

	loser, at := s.Flag()
	state.Loser = loser
	if loser != clock.None {
		state.FlaggedAt = &at
	}
	return state
}
