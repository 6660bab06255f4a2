package slots

import (
	"fmt"
	"strings"
)

// BusyInterval is an occupied period reported by the calendar service.
// Start and End may arrive swapped.
type BusyInterval struct {
	Start TimeToken `json:"start"`
	End   TimeToken `json:"end"`
}

// Strategy selects how per-interval results are combined.
type Strategy int

const (
	// Concat appends each interval's retained slots in input order.
	// Slots free for several intervals repeat once per interval.
	Concat Strategy = iota
	// Intersect keeps each grid slot once, only if no interval excludes it.
	Intersect
)

func (s Strategy) String() string {
	switch s {
	case Concat:
		return "concat"
	case Intersect:
		return "intersect"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps a config value to a Strategy. Empty means Concat.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "concat":
		return Concat, nil
	case "intersect":
		return Intersect, nil
	default:
		return Concat, fmt.Errorf("unknown strategy: %q", s)
	}
}

// Result is the outcome of one availability computation.
type Result struct {
	Free      []TimeToken
	Unmatched int // intervals with a token missing from the grid
}

// Compute runs the availability engine with the given strategy.
func Compute(grid *Grid, busy []BusyInterval, strategy Strategy) Result {
	if strategy == Intersect {
		return intersect(grid, busy)
	}
	return concat(grid, busy)
}

// ComputeFreeSlots returns the free slot list using the default Concat strategy.
func ComputeFreeSlots(grid *Grid, busy []BusyInterval) []TimeToken {
	return concat(grid, busy).Free
}

// IntersectFreeSlots returns each grid slot not excluded by any interval, once, in grid order.
func IntersectFreeSlots(grid *Grid, busy []BusyInterval) []TimeToken {
	return intersect(grid, busy).Free
}

func concat(grid *Grid, busy []BusyInterval) Result {
	if len(busy) == 0 {
		return Result{Free: grid.Tokens()}
	}

	tokens := grid.Tokens()
	res := Result{Free: make([]TimeToken, 0, len(tokens)*len(busy))}
	for _, b := range busy {
		lo, hi, ok := exclusionRange(grid, b)
		if !ok {
			res.Unmatched++
			res.Free = append(res.Free, tokens...)
			continue
		}
		res.Free = append(res.Free, tokens[:lo]...)
		res.Free = append(res.Free, tokens[hi+1:]...)
	}
	return res
}

func intersect(grid *Grid, busy []BusyInterval) Result {
	var res Result
	excluded := make([]bool, grid.Len())
	for _, b := range busy {
		lo, hi, ok := exclusionRange(grid, b)
		if !ok {
			res.Unmatched++
			continue
		}
		for i := lo; i <= hi; i++ {
			excluded[i] = true
		}
	}

	res.Free = make([]TimeToken, 0, grid.Len())
	for i, tok := range grid.Tokens() {
		if !excluded[i] {
			res.Free = append(res.Free, tok)
		}
	}
	return res
}

// exclusionRange returns the inclusive grid positions [lo, hi] covered by b.
func exclusionRange(grid *Grid, b BusyInterval) (lo, hi int, ok bool) {
	start, ok := grid.Index(b.Start)
	if !ok {
		return 0, 0, false
	}
	end, ok := grid.Index(b.End)
	if !ok {
		return 0, 0, false
	}
	return min(start, end), max(start, end), true
}
