package clock

import (
	"fmt"
	"strings"
)

// Side identifies one half of the clock. None means the clock is paused.
type Side int

const (
	None Side = iota
	White
	Black
)

// String returns the lower-case name used in logs, events and URLs
func (s Side) String() string {
	switch s {
	case None:
		return "none"
	case White:
		return "white"
	case Black:
		return "black"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// Valid reports whether s is a side that can be started.
func (s Side) Valid() bool {
	return s == White || s == Black
}

// Opponent returns the other playing side. None has no opponent.
func (s Side) Opponent() Side {
	switch s {
	case White:
		return Black
	case Black:
		return White
	default:
		return None
	}
}

// ParseSide parses "white" or "black" (any case). "none" and the empty
// string are rejected since only playing sides can be started or shown.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, nil
	case "black", "b":
		return Black, nil
	default:
		return None, fmt.Errorf("parse side %q: %w", s, ErrInvalidSide)
	}
}

func (s Side) MarshalText() ([]byte, error) {
	if s != None && !s.Valid() {
		return nil, fmt.Errorf("marshal %s: %w", s, ErrInvalidSide)
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	if strings.EqualFold(string(text), "none") || len(text) == 0 {
		*s = None
		return nil
	}
	side, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = side
	return nil
}
