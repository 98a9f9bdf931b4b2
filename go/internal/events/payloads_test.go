package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/clockd/go/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent_FlagFell(t *testing.T) {
	gameID := uuid.New()
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	state := NewClockState(clock.Snapshot{
		White:        0,
		Black:        42500 * time.Millisecond,
		WhiteDisplay: "00:00",
		BlackDisplay: "00:43",
		Active:       clock.None,
	}, 5*time.Minute)

	event, err := NewEvent(gameID, EventTypeFlagFell, at, FlagFellPayload{
		Loser:     clock.White,
		Winner:    clock.Black,
		FlaggedAt: at,
		Clock:     state,
	})
	require.NoError(t, err)

	assert.Equal(t, gameID.String(), event.GameID)
	assert.Equal(t, EventTypeFlagFell, event.Type)
	_, err = uuid.Parse(event.ID)
	assert.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(event.Data, &raw))
	assert.Equal(t, "white", raw["loser"])
	assert.Equal(t, "black", raw["winner"])

	payload, err := ParseEventPayload(event)
	require.NoError(t, err)
	flag, ok := payload.(FlagFellPayload)
	require.True(t, ok)
	assert.Equal(t, clock.White, flag.Loser)
	assert.Equal(t, int64(42500), flag.Clock.BlackMs)
	assert.Equal(t, int64(300), flag.Clock.InitialSeconds)
	assert.Equal(t, clock.None, flag.Clock.Active)
}

func TestParseEventPayload_UnknownType(t *testing.T) {
	_, err := ParseEventPayload(&Event{Type: "MoveMade", Data: json.RawMessage(`{}`)})
	assert.Error(t, err)
}

func TestParseEventPayload_BadSide(t *testing.T) {
	_, err := ParseEventPayload(&Event{
		Type: EventTypeClockStarted,
		Data: json.RawMessage(`{"side":"purple"}`),
	})
	assert.ErrorIs(t, err, clock.ErrInvalidSide)
}
