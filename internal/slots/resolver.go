package slots

import (
	"errors"
	"fmt"
	"time"
)

// ErrSlotNotResolvable is the parent of every resolver failure.
var ErrSlotNotResolvable = errors.New("slot not resolvable")

var (
	ErrNotInGrid     = fmt.Errorf("%w: slot is not in grid", ErrSlotNotResolvable)
	ErrNotFree       = fmt.Errorf("%w: slot is not free", ErrSlotNotResolvable)
	ErrNoSuccessor   = fmt.Errorf("%w: slot has no successor", ErrSlotNotResolvable)
	ErrNoPredecessor = fmt.Errorf("%w: slot has no predecessor", ErrSlotNotResolvable)
)

// BookingRequest is the [StartTime, EndTime) interval implied by a picked slot.
type BookingRequest struct {
	StartTime TimeToken `json:"startTime"`
	EndTime   TimeToken `json:"endTime"`
}

// Duration returns EndTime - StartTime.
func (r BookingRequest) Duration() (time.Duration, error) {
	start, err := r.StartTime.Clock()
	if err != nil {
		return 0, err
	}
	end, err := r.EndTime.Clock()
	if err != nil {
		return 0, err
	}
	return end - start, nil
}

// ResolveBooking infers the booking interval for picked.
//
// When the slot after picked is the same in the grid and in the free list,
// picked opens an interval ending at the next grid boundary. Otherwise picked
// sits right before a busy region and closes an interval that starts at the
// previous grid boundary.
func ResolveBooking(grid *Grid, free []TimeToken, picked TimeToken) (BookingRequest, error) {
	gi, ok := grid.Index(picked)
	if !ok {
		return BookingRequest{}, fmt.Errorf("%w: %s", ErrNotInGrid, picked)
	}
	fi := indexOf(free, picked)
	if fi < 0 {
		return BookingRequest{}, fmt.Errorf("%w: %s", ErrNotFree, picked)
	}

	gridNext, hasGridNext := at(grid.tokens, gi+1)
	freeNext, hasFreeNext := at(free, fi+1)
	if !hasGridNext && !hasFreeNext {
		return BookingRequest{}, fmt.Errorf("%w: %s", ErrNoSuccessor, picked)
	}

	if hasGridNext && hasFreeNext && gridNext == freeNext {
		return BookingRequest{StartTime: picked, EndTime: gridNext}, nil
	}

	prev, ok := at(grid.tokens, gi-1)
	if !ok {
		return BookingRequest{}, fmt.Errorf("%w: %s", ErrNoPredecessor, picked)
	}
	return BookingRequest{StartTime: prev, EndTime: picked}, nil
}

func indexOf(list []TimeToken, tok TimeToken) int {
	for i, t := range list {
		if t == tok {
			return i
		}
	}
	return -1
}

func at(list []TimeToken, i int) (TimeToken, bool) {
	if i < 0 || i >= len(list) {
		return "", false
	}
	return list[i], true
}
