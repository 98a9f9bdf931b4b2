package game

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/clockd/go/internal/clock"
	"github.com/mcdev12/clockd/go/internal/events"
	"github.com/rs/zerolog/log"
)

// Config holds settings applied to every clock the service creates
type Config struct {
	DefaultMinutes float64
	TickInterval   time.Duration
}

// DefaultConfig returns default game settings
func DefaultConfig() Config {
	return Config{
		DefaultMinutes: 10,
		TickInterval:   clock.DefaultTickInterval,
	}
}

// Service owns the clocks of all live games
type Service struct {
	config   Config
	clock    clockwork.Clock
	notifier Notifier

	games   map[uuid.UUID]*Session
	gamesMu sync.RWMutex
}

// NewService creates a game service. notifier may be nil.
func NewService(config Config, notifier Notifier) *Service {
	return NewServiceWithClock(config, notifier, clockwork.NewRealClock())
}

// NewServiceWithClock creates a game service on the given time source
func NewServiceWithClock(config Config, notifier Notifier, clk clockwork.Clock) *Service {
	if config.DefaultMinutes <= 0 {
		config.DefaultMinutes = DefaultConfig().DefaultMinutes
	}
	if config.TickInterval <= 0 {
		config.TickInterval = clock.DefaultTickInterval
	}
	return &Service{
		config:   config,
		clock:    clk,
		notifier: notifier,
		games:    make(map[uuid.UUID]*Session),
	}
}

// CreateGame creates a stopped game giving each side minutes on the clock.
// Zero minutes selects the configured default.
func (s *Service) CreateGame(ctx context.Context, minutes float64) (*Session, error) {
	if minutes == 0 {
		minutes = s.config.DefaultMinutes
	}

	id := uuid.New()
	session := &Session{
		ID:        id,
		Minutes:   minutes,
		CreatedAt: s.clock.Now(),
	}

	c, err := clock.New(minutes, s.onTimeout(session),
		clock.WithClock(s.clock),
		clock.WithTickInterval(s.config.TickInterval),
		clock.WithLogger(log.With().Str("game_id", id.String()).Logger()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create clock: %w", err)
	}
	session.Clock = c

	s.gamesMu.Lock()
	s.games[id] = session
	s.gamesMu.Unlock()

	log.Info().
		Str("game_id", id.String()).
		Float64("minutes", minutes).
		Msg("game created")

	s.emit(ctx, session, events.EventTypeGameCreated, events.GameCreatedPayload{
		GameID:    id.String(),
		Minutes:   minutes,
		CreatedAt: session.CreatedAt,
		Clock:     s.clockState(session),
	})
	return session, nil
}

// Get returns the game with the given ID
func (s *Service) Get(id uuid.UUID) (*Session, error) {
	s.gamesMu.RLock()
	defer s.gamesMu.RUnlock()

	session, ok := s.games[id]
	if !ok {
		return nil, fmt.Errorf("get game %s: %w", id, ErrGameNotFound)
	}
	return session, nil
}

// List returns all games, oldest first
func (s *Service) List() []*Session {
	s.gamesMu.RLock()
	sessions := make([]*Session, 0, len(s.games))
	for _, session := range s.games {
		sessions = append(sessions, session)
	}
	s.gamesMu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID.String() < sessions[j].ID.String()
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// Running returns the games whose clock is currently counting down
func (s *Service) Running() []*Session {
	var running []*Session
	for _, session := range s.List() {
		if session.Clock.Running() {
			running = append(running, session)
		}
	}
	return running
}

// State returns the state of one game
func (s *Service) State(id uuid.UUID) (State, error) {
	session, err := s.Get(id)
	if err != nil {
		return State{}, err
	}
	return session.State(), nil
}

// Press starts side's clock, charging the other side first if it was running
func (s *Service) Press(ctx context.Context, id uuid.UUID, side clock.Side) error {
	session, err := s.Get(id)
	if err != nil {
		return err
	}

	if err := session.Clock.Start(side); err != nil {
		return fmt.Errorf("press clock for game %s: %w", id, err)
	}

	s.emit(ctx, session, events.EventTypeClockStarted, events.ClockStartedPayload{
		Side:      side,
		StartedAt: s.clock.Now(),
		Clock:     s.clockState(session),
	})
	return nil
}

// Pause stops the game's clock
func (s *Service) Pause(ctx context.Context, id uuid.UUID) error {
	session, err := s.Get(id)
	if err != nil {
		return err
	}

	session.Clock.Stop()

	s.emit(ctx, session, events.EventTypeClockStopped, events.ClockStoppedPayload{
		StoppedAt: s.clock.Now(),
		Clock:     s.clockState(session),
	})
	return nil
}

// Reset stops the game's clock and restores both sides to the allotment
func (s *Service) Reset(ctx context.Context, id uuid.UUID) error {
	session, err := s.Get(id)
	if err != nil {
		return err
	}

	session.Clock.Reset()

	session.eventsMu.Lock()
	defer session.eventsMu.Unlock()

	session.clearFlag()

	s.emit(ctx, session, events.EventTypeClockReset, events.ClockResetPayload{
		ResetAt: s.clock.Now(),
		Clock:   s.clockState(session),
	})
	return nil
}

// Remove stops the game's clock and forgets the game
func (s *Service) Remove(ctx context.Context, id uuid.UUID) error {
	s.gamesMu.Lock()
	session, ok := s.games[id]
	if ok {
		delete(s.games, id)
	}
	s.gamesMu.Unlock()

	if !ok {
		return fmt.Errorf("remove game %s: %w", id, ErrGameNotFound)
	}

	session.Clock.Stop()

	log.Info().Str("game_id", id.String()).Msg("game removed")

	s.emit(ctx, session, events.EventTypeGameRemoved, events.GameRemovedPayload{
		GameID:    id.String(),
		RemovedAt: s.clock.Now(),
		Clock:     s.clockState(session),
	})
	return nil
}

// Close stops every clock so no ticker outlives the service
func (s *Service) Close() {
	s.gamesMu.RLock()
	defer s.gamesMu.RUnlock()

	for _, session := range s.games {
		session.Clock.Stop()
	}
	log.Info().Int("games", len(s.games)).Msg("game service closed")
}

// onTimeout records the flag fall on the session and emits FlagFell
func (s *Service) onTimeout(session *Session) clock.TimeoutFunc {
	return func(loser clock.Side) {
		session.eventsMu.Lock()
		defer session.eventsMu.Unlock()

		now := s.clock.Now()
		if !session.recordFlag(loser, now) {
			log.Debug().
				Str("game_id", session.ID.String()).
				Str("loser", loser.String()).
				Msg("timeout superseded by reset")
			return
		}

		log.Info().
			Str("game_id", session.ID.String()).
			Str("loser", loser.String()).
			Msg("game flagged")

		s.emit(context.Background(), session, events.EventTypeFlagFell, events.FlagFellPayload{
			Loser:     loser,
			Winner:    loser.Opponent(),
			FlaggedAt: now,
			Clock:     s.clockState(session),
		})
	}
}

func (s *Service) clockState(session *Session) events.ClockState {
	return events.NewClockState(session.Clock.Snapshot(), session.Clock.Initial())
}

// emit sends an event to the notifier. Failures are logged, not returned.
func (s *Service) emit(ctx context.Context, session *Session, eventType events.EventType, payload interface{}) {
	if s.notifier == nil {
		return
	}

	event, err := events.NewEvent(session.ID, eventType, s.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("game_id", session.ID.String()).Msg("failed to build event")
		return
	}

	if err := s.notifier.Notify(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("game_id", session.ID.String()).
			Str("event_type", string(eventType)).
			Msg("failed to notify event")
	}
}
