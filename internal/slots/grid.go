package slots

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptyGrid     = errors.New("slot grid is empty")
	ErrGridNotSorted = errors.New("slot grid must be strictly ascending")
)

// Grid is the immutable, ascending list of bookable slot boundaries for a day.
type Grid struct {
	tokens []TimeToken
	index  map[TimeToken]int
}

// NewGrid validates tokens and builds a grid. Tokens must be canonical,
// unique and strictly ascending; they are never sorted here.
func NewGrid(tokens []TimeToken) (*Grid, error) {
	if len(tokens) == 0 {
		return nil, ErrEmptyGrid
	}

	g := &Grid{
		tokens: make([]TimeToken, len(tokens)),
		index:  make(map[TimeToken]int, len(tokens)),
	}
	for i, tok := range tokens {
		if _, err := ParseTimeToken(string(tok)); err != nil {
			return nil, err
		}
		if i > 0 && !tokens[i-1].Before(tok) {
			return nil, fmt.Errorf("%w: %s after %s", ErrGridNotSorted, tok, tokens[i-1])
		}
		g.tokens[i] = tok
		g.index[tok] = i
	}
	return g, nil
}

// MustGrid is NewGrid that panics on invalid input. Intended for fixtures.
func MustGrid(tokens ...TimeToken) *Grid {
	g, err := NewGrid(tokens)
	if err != nil {
		panic(err)
	}
	return g
}

// Len returns the number of slots in the grid.
func (g *Grid) Len() int {
	if g == nil {
		return 0
	}
	return len(g.tokens)
}

// At returns the token at position i.
func (g *Grid) At(i int) TimeToken {
	return g.tokens[i]
}

// Index returns the position of tok by exact match.
func (g *Grid) Index(tok TimeToken) (int, bool) {
	if g == nil {
		return -1, false
	}
	i, ok := g.index[tok]
	if !ok {
		return -1, false
	}
	return i, true
}

// Tokens returns a copy of the grid tokens.
func (g *Grid) Tokens() []TimeToken {
	if g == nil {
		return nil
	}
	out := make([]TimeToken, len(g.tokens))
	copy(out, g.tokens)
	return out
}

// First returns the opening boundary.
func (g *Grid) First() TimeToken {
	return g.tokens[0]
}

// Last returns the closing boundary.
func (g *Grid) Last() TimeToken {
	return g.tokens[len(g.tokens)-1]
}

// WorkingHours describes a business day used to generate a grid.
type WorkingHours struct {
	Open        string // "06:00"
	Close       string // "18:00"
	StepMinutes int
}

// DefaultWorkingHours is 06:00-18:00 every 30 minutes.
func DefaultWorkingHours() WorkingHours {
	return WorkingHours{Open: "06:00", Close: "18:00", StepMinutes: 30}
}

// GenerateGrid lists every boundary from Open to Close inclusive at StepMinutes granularity.
func GenerateGrid(h WorkingHours) (*Grid, error) {
	if h.StepMinutes <= 0 {
		h.StepMinutes = 30
	}

	open, err := parseTimeOfDay(h.Open)
	if err != nil {
		return nil, fmt.Errorf("parse open time: %w", err)
	}
	closing, err := parseTimeOfDay(h.Close)
	if err != nil {
		return nil, fmt.Errorf("parse close time: %w", err)
	}
	if closing <= open {
		return nil, fmt.Errorf("close time %s must be after open time %s", h.Close, h.Open)
	}

	step := time.Duration(h.StepMinutes) * time.Minute
	var tokens []TimeToken
	for cursor := open; cursor <= closing; cursor += step {
		tokens = append(tokens, tokenFromClock(cursor))
	}
	return NewGrid(tokens)
}

// parseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func parseTimeOfDay(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time format: %s", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour: %s", s)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute: %s", s)
	}

	second := 0
	if len(parts) == 3 {
		second, err = strconv.Atoi(parts[2])
		if err != nil || second < 0 || second > 59 {
			return 0, fmt.Errorf("invalid second: %s", s)
		}
	}

	return time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute + time.Duration(second)*time.Second, nil
}

// SlotInfo is a simplified representation for UI.
type SlotInfo struct {
	Token TimeToken `json:"token"` // "10:00:00"
	Label string    `json:"label"` // "10:00"
}

// ToSlotInfo converts free slots to SlotInfo, one entry per list element.
func ToSlotInfo(free []TimeToken) []SlotInfo {
	result := make([]SlotInfo, len(free))
	for i, tok := range free {
		result[i] = SlotInfo{Token: tok, Label: tok.Label()}
	}
	return result
}
