package gateway

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/clockd/go/internal/events"
	"github.com/mcdev12/clockd/go/internal/game"
	"github.com/rs/zerolog/log"
)

// RunningGames lists the games whose clock is counting down
type RunningGames interface {
	Running() []*game.Session
}

// Broadcaster periodically pushes a TimerTick with the current clock state of
// every running game, so watchers see the countdown without polling.
type Broadcaster struct {
	games    RunningGames
	notifier game.Notifier
	clock    clockwork.Clock
	interval time.Duration
}

// NewBroadcaster creates a broadcaster ticking every interval
func NewBroadcaster(games RunningGames, notifier game.Notifier, clk clockwork.Clock, interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = time.Second
	}
	return &Broadcaster{
		games:    games,
		notifier: notifier,
		clock:    clk,
		interval: interval,
	}
}

// Start broadcasts until ctx is cancelled
func (b *Broadcaster) Start(ctx context.Context) {
	ticker := b.clock.NewTicker(b.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", b.interval).Msg("timer broadcaster started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("timer broadcaster shutting down")
			return
		case <-ticker.Chan():
			b.broadcastOnce(ctx)
		}
	}
}

// broadcastOnce emits one TimerTick per running game and returns how many
func (b *Broadcaster) broadcastOnce(ctx context.Context) int {
	now := b.clock.Now()
	var sent int
	for _, session := range b.games.Running() {
		event, err := stateEvent(session, now)
		if err != nil {
			log.Error().Err(err).Str("game_id", session.ID.String()).Msg("failed to build timer tick")
			continue
		}
		if err := b.notifier.Notify(ctx, event); err != nil {
			log.Warn().Err(err).Str("game_id", session.ID.String()).Msg("failed to broadcast timer tick")
			continue
		}
		sent++
	}
	return sent
}

// stateEvent builds the TimerTick a new watcher receives on connect
func stateEvent(session *game.Session, at time.Time) (*events.Event, error) {
	return events.NewEvent(session.ID, events.EventTypeTimerTick, at, events.TimerTickPayload{
		TickedAt: at,
		Clock:    events.NewClockState(session.Clock.Snapshot(), session.Clock.Initial()),
	})
}
