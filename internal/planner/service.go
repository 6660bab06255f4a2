package planner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"slotbook/internal/calendar"
	"slotbook/internal/events"
	"slotbook/internal/metrics"
	"slotbook/internal/slots"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrStale   = errors.New("refresh superseded by a newer date selection")
	ErrNoBoard = errors.New("no slots loaded for session")

	ErrSubmitDisabled = errors.New("booking submission is not configured")
)

// ScheduleSource fetches busy events for a calendar date.
type ScheduleSource interface {
	GetDaySchedule(ctx context.Context, date time.Time) ([]calendar.Event, error)
}

// Submitter hands a resolved booking to the calendar service.
type Submitter interface {
	SubmitBooking(ctx context.Context, date time.Time, req slots.BookingRequest, title, email string) error
}

// Publisher emits domain events.
type Publisher interface {
	Publish(evType string, payload any) error
}

// Settings is the swappable part of the configuration.
type Settings struct {
	Grid     *slots.Grid
	Strategy slots.Strategy
	Location *time.Location
}

// Day is the free slot list computed for one session and date.
type Day struct {
	Session    string
	Date       time.Time
	Grid       *slots.Grid
	Free       []slots.TimeToken
	Strategy   slots.Strategy
	Busy       int
	Unmatched  int
	Generation uint64
}

// Booking is a resolved slot selection.
type Booking struct {
	ID      string
	Session string
	Date    time.Time
	Request slots.BookingRequest
}

type Service struct {
	source    ScheduleSource
	submitter Submitter
	events    Publisher
	settings  atomic.Pointer[Settings]
	boards    *boardStore
	logger    *zerolog.Logger
}

func New(source ScheduleSource, submitter Submitter, publisher Publisher, settings Settings, logger *zerolog.Logger) (*Service, error) {
	if source == nil {
		return nil, errors.New("schedule source is required")
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Service{
		source:    source,
		submitter: submitter,
		events:    publisher,
		boards:    newBoardStore(),
		logger:    logger,
	}
	if err := s.Apply(settings); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply swaps grid, strategy and location. Days already computed keep the
// grid they were computed with until their next refresh.
func (s *Service) Apply(settings Settings) error {
	if settings.Grid.Len() == 0 {
		return slots.ErrEmptyGrid
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	s.settings.Store(&settings)
	s.logger.Info().
		Int("slots", settings.Grid.Len()).
		Str("strategy", settings.Strategy.String()).
		Str("timezone", settings.Location.String()).
		Msg("slot settings applied")
	return nil
}

func (s *Service) Settings() Settings {
	return *s.settings.Load()
}

// ParseDate parses "YYYY-MM-DD" in the configured timezone.
func (s *Service) ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", value, s.settings.Load().Location)
}

// Refresh fetches busy intervals for date and recomputes the session's free slots.
// If another Refresh for the same session starts meanwhile, this one returns ErrStale.
func (s *Service) Refresh(ctx context.Context, session string, date time.Time) (*Day, error) {
	settings := s.settings.Load()
	gen := s.boards.begin(session)

	evs, err := s.source.GetDaySchedule(ctx, date)
	if err != nil {
		s.logger.Error().Err(err).Str("session", session).Time("date", date).Msg("fetch day schedule failed")
		return nil, fmt.Errorf("fetch day schedule: %w", err)
	}

	busy := calendar.BusyIntervals(evs, settings.Grid)
	res := slots.Compute(settings.Grid, busy, settings.Strategy)
	metrics.IncSlotsRefreshed(settings.Strategy.String())
	metrics.AddUnmatchedIntervals(res.Unmatched)
	if res.Unmatched > 0 {
		s.logger.Warn().Str("session", session).Int("unmatched", res.Unmatched).Msg("busy intervals outside slot grid")
	}

	day := &Day{
		Session:   session,
		Date:      date,
		Grid:      settings.Grid,
		Free:      res.Free,
		Strategy:  settings.Strategy,
		Busy:      len(busy),
		Unmatched: res.Unmatched,
	}
	if !s.boards.commit(session, gen, day) {
		metrics.IncStaleRefresh()
		s.logger.Debug().Str("session", session).Uint64("generation", gen).Msg("stale refresh discarded")
		return nil, ErrStale
	}

	s.publish(events.SlotsRefreshed, map[string]any{
		"session": session,
		"date":    date.Format("2006-01-02"),
		"free":    len(day.Free),
		"busy":    day.Busy,
	})
	s.logger.Debug().Str("session", session).Int("free", len(day.Free)).Int("busy", day.Busy).Msg("slots refreshed")
	return day, nil
}

// Current returns the last committed day for session.
func (s *Service) Current(session string) (*Day, bool) {
	day := s.boards.current(session)
	return day, day != nil
}

// Forget drops the session's board.
func (s *Service) Forget(session string) {
	s.boards.reset(session)
}

// Sweep drops boards not refreshed or read within maxIdle.
func (s *Service) Sweep(maxIdle time.Duration) int {
	n := s.boards.sweep(maxIdle)
	if n > 0 {
		metrics.AddSessionsEvicted(n)
		s.logger.Debug().Int("evicted", n).Int("remaining", s.boards.len()).Msg("idle sessions swept")
	}
	return n
}

// RunJanitor sweeps idle boards every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 || maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(maxIdle)
		}
	}
}

// Pick resolves the booking interval for a slot selected from the session's free list.
func (s *Service) Pick(session string, picked slots.TimeToken) (*Booking, error) {
	day, ok := s.Current(session)
	if !ok {
		metrics.IncBookingResolved("no_board")
		return nil, ErrNoBoard
	}

	req, err := slots.ResolveBooking(day.Grid, day.Free, picked)
	metrics.IncBookingResolved(outcome(err))
	if err != nil {
		s.logger.Info().Err(err).Str("session", session).Str("slot", picked.String()).Msg("slot not resolvable")
		return nil, err
	}

	b := &Booking{
		ID:      uuid.NewString(),
		Session: session,
		Date:    day.Date,
		Request: req,
	}
	s.publish(events.BookingResolved, bookingPayload(b))
	return b, nil
}

// Submit resolves picked and sends the booking to the calendar service.
func (s *Service) Submit(ctx context.Context, session string, picked slots.TimeToken, title, email string) (*Booking, error) {
	if s.submitter == nil {
		return nil, ErrSubmitDisabled
	}

	b, err := s.Pick(session, picked)
	if err != nil {
		return nil, err
	}
	if err := s.submitter.SubmitBooking(ctx, b.Date, b.Request, title, email); err != nil {
		s.logger.Error().Err(err).Str("booking_id", b.ID).Msg("submit booking failed")
		return nil, fmt.Errorf("submit booking: %w", err)
	}

	s.publish(events.BookingSubmitted, bookingPayload(b))
	s.logger.Info().
		Str("booking_id", b.ID).
		Str("start", b.Request.StartTime.String()).
		Str("end", b.Request.EndTime.String()).
		Msg("booking submitted")
	return b, nil
}

func (s *Service) publish(evType string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(evType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", evType).Msg("event handler failed")
	}
}

func bookingPayload(b *Booking) map[string]any {
	return map[string]any{
		"id":        b.ID,
		"session":   b.Session,
		"date":      b.Date.Format("2006-01-02"),
		"startTime": b.Request.StartTime,
		"endTime":   b.Request.EndTime,
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "resolved"
	case errors.Is(err, slots.ErrNotInGrid):
		return "not_in_grid"
	case errors.Is(err, slots.ErrNotFree):
		return "not_free"
	case errors.Is(err, slots.ErrNoSuccessor):
		return "no_successor"
	case errors.Is(err, slots.ErrNoPredecessor):
		return "no_predecessor"
	default:
		return "error"
	}
}
