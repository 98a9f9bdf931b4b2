package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/clockd/go/internal/clock"
)

// Event payload types that are shared between the game, publisher and gateway packages

// Event represents the envelope for all clock events
type Event struct {
	ID        string          `json:"id"`        // Event UUID
	GameID    string          `json:"game_id"`   // Game UUID
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of clock event
type EventType string

const (
	EventTypeGameCreated  EventType = "GameCreated"
	EventTypeGameRemoved  EventType = "GameRemoved"
	EventTypeClockStarted EventType = "ClockStarted"
	EventTypeClockStopped EventType = "ClockStopped"
	EventTypeClockReset   EventType = "ClockReset"
	EventTypeFlagFell     EventType = "FlagFell"
	EventTypeTimerTick    EventType = "TimerTick"
)

// ClockState is the wire form of a clock snapshot
type ClockState struct {
	Active         clock.Side `json:"active"`
	WhiteMs        int64      `json:"white_ms"`
	BlackMs        int64      `json:"black_ms"`
	WhiteDisplay   string     `json:"white_display"`
	BlackDisplay   string     `json:"black_display"`
	InitialSeconds int64      `json:"initial_seconds"`
}

// NewClockState converts a clock snapshot for the wire
func NewClockState(snap clock.Snapshot, initial time.Duration) ClockState {
	return ClockState{
		Active:         snap.Active,
		WhiteMs:        snap.White.Milliseconds(),
		BlackMs:        snap.Black.Milliseconds(),
		WhiteDisplay:   snap.WhiteDisplay,
		BlackDisplay:   snap.BlackDisplay,
		InitialSeconds: int64(initial / time.Second),
	}
}

// GameCreatedPayload is the payload for a GameCreated event
type GameCreatedPayload struct {
	GameID    string     `json:"game_id"`
	Minutes   float64    `json:"minutes"`
	CreatedAt time.Time  `json:"created_at"`
	Clock     ClockState `json:"clock"`
}

// GameRemovedPayload is the payload for a GameRemoved event
type GameRemovedPayload struct {
	GameID    string     `json:"game_id"`
	RemovedAt time.Time  `json:"removed_at"`
	Clock     ClockState `json:"clock"`
}

// ClockStartedPayload is the payload for a ClockStarted event
type ClockStartedPayload struct {
	Side      clock.Side `json:"side"`
	StartedAt time.Time  `json:"started_at"`
	Clock     ClockState `json:"clock"`
}

// ClockStoppedPayload is the payload for a ClockStopped event
type ClockStoppedPayload struct {
	StoppedAt time.Time  `json:"stopped_at"`
	Clock     ClockState `json:"clock"`
}

// ClockResetPayload is the payload for a ClockReset event
type ClockResetPayload struct {
	ResetAt time.Time  `json:"reset_at"`
	Clock   ClockState `json:"clock"`
}

// FlagFellPayload is the payload for a FlagFell event
type FlagFellPayload struct {
	Loser     clock.Side `json:"loser"`
	Winner    clock.Side `json:"winner"`
	FlaggedAt time.Time  `json:"flagged_at"`
	Clock     ClockState `json:"clock"`
}

// TimerTickPayload contains periodic timer updates for running clocks
type TimerTickPayload struct {
	TickedAt time.Time  `json:"ticked_at"`
	Clock    ClockState `json:"clock"`
}

// NewEvent wraps payload in an event envelope
func NewEvent(gameID uuid.UUID, eventType EventType, at time.Time, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return &Event{
		ID:        uuid.New().String(),
		GameID:    gameID.String(),
		Type:      eventType,
		Timestamp: at,
		Data:      data,
	}, nil
}

// ParseEventPayload parses event data into the appropriate payload struct
func ParseEventPayload(event *Event) (interface{}, error) {
	switch event.Type {
	case EventTypeGameCreated:
		var payload GameCreatedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeGameRemoved:
		var payload GameRemovedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeClockStarted:
		var payload ClockStartedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeClockStopped:
		var payload ClockStoppedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeClockReset:
		var payload ClockResetPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeFlagFell:
		var payload FlagFellPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeTimerTick:
		var payload TimerTickPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}
}
