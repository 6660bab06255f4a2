package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"slotbook/internal/calendar"
	"slotbook/internal/planner"
	"slotbook/internal/slots"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "valid-key"

type stubSource struct {
	events map[string][]calendar.Event
	err    error
}

func (s *stubSource) GetDaySchedule(_ context.Context, date time.Time) ([]calendar.Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.events[date.Format("2006-01-02")], nil
}

type stubSubmitter struct {
	got []slots.BookingRequest
	err error
}

func (s *stubSubmitter) SubmitBooking(_ context.Context, _ time.Time, req slots.BookingRequest, _, _ string) error {
	s.got = append(s.got, req)
	return s.err
}

// stalePlanner behaves like a planner whose every refresh is overtaken.
type stalePlanner struct {
	*planner.Service
}

func (stalePlanner) Refresh(context.Context, string, time.Time) (*planner.Day, error) {
	return nil, planner.ErrStale
}

func newTestServer(t *testing.T, source *stubSource, submitter *stubSubmitter, checks map[string]Checker) http.Handler {
	t.Helper()
	logger := zerolog.New(io.Discard)
	var sub planner.Submitter
	if submitter != nil {
		sub = submitter
	}
	p, err := planner.New(source, sub, nil, planner.Settings{
		Grid: slots.MustGrid("08:00:00", "08:30:00", "09:00:00", "09:30:00", "10:00:00"),
	}, &logger)
	require.NoError(t, err)
	return NewHTTPServer(0, testAPIKey, p, checks, &logger).Handler()
}

func do(t *testing.T, h http.Handler, method, target, session string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader = http.NoBody
	if body != nil {
		if s, ok := body.(string); ok {
			rd = bytes.NewReader([]byte(s))
		} else {
			data, err := json.Marshal(body)
			require.NoError(t, err)
			rd = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("X-Api-Key", testAPIKey)
	if session != "" {
		req.Header.Set(sessionHeader, session)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Error
}

func busyDay() *stubSource {
	return &stubSource{events: map[string][]calendar.Event{
		"2026-03-12": {{Start: "2026-03-12T08:30:00.000Z", End: "2026-03-12T09:00:00.000Z"}},
	}}
}

func TestHandleSlots(t *testing.T) {
	h := newTestServer(t, busyDay(), nil, nil)

	w := do(t, h, http.MethodGet, "/api/v1/slots?date=2026-03-12", "s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", w.Header().Get(sessionHeader))

	var resp SlotsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "2026-03-12", resp.Date)
	assert.Equal(t, "concat", resp.Strategy)
	assert.Equal(t, []slots.SlotInfo{
		{Token: "08:00:00", Label: "08:00"},
		{Token: "09:30:00", Label: "09:30"},
		{Token: "10:00:00", Label: "10:00"},
	}, resp.Slots)

	w = do(t, h, http.MethodGet, "/api/v1/slots/current", "s1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/slots/current", "other", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSlotsIssuesSession(t *testing.T) {
	h := newTestServer(t, busyDay(), nil, nil)

	w := do(t, h, http.MethodGet, "/api/v1/slots?date=2026-03-13", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(sessionHeader))
}

func TestHandleSlots_Validation(t *testing.T) {
	h := newTestServer(t, busyDay(), nil, nil)

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
		wantError  string
	}{
		{"missing date", http.MethodGet, "/api/v1/slots", http.StatusBadRequest, "date is required"},
		{"bad date", http.MethodGet, "/api/v1/slots?date=12-03-2026", http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD"},
		{"wrong method", http.MethodPost, "/api/v1/slots?date=2026-03-12", http.StatusMethodNotAllowed, "method not allowed; use GET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.target, "s1", nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantError, decodeError(t, w))
		})
	}
}

func TestHandleSlotsUpstreamError(t *testing.T) {
	h := newTestServer(t, &stubSource{err: &calendar.ResponseError{StatusCode: 400, Message: "past date"}}, nil, nil)

	w := do(t, h, http.MethodGet, "/api/v1/slots?date=2026-03-12", "s1", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decodeError(t, w), "past date")
}

func TestHandleSlotsStale(t *testing.T) {
	logger := zerolog.New(io.Discard)
	svc, err := planner.New(busyDay(), nil, nil, planner.Settings{
		Grid: slots.MustGrid("08:00:00", "08:30:00"),
	}, &logger)
	require.NoError(t, err)
	h := NewHTTPServer(0, testAPIKey, stalePlanner{svc}, nil, &logger).Handler()

	w := do(t, h, http.MethodGet, "/api/v1/slots?date=2026-03-12", "s1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, planner.ErrStale.Error(), decodeError(t, w))
}

func TestDeleteCurrentSlots(t *testing.T) {
	h := newTestServer(t, busyDay(), nil, nil)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/slots?date=2026-03-12", "s1", nil).Code)

	w := do(t, h, http.MethodDelete, "/api/v1/slots/current", "s1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/slots/current", "s1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodDelete, "/api/v1/slots/current", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPut, "/api/v1/slots/current", "s1", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	h := newTestServer(t, busyDay(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/slots?date=2026-03-12", http.NoBody)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleResolve(t *testing.T) {
	h := newTestServer(t, busyDay(), nil, nil)

	w := do(t, h, http.MethodPost, "/api/v1/bookings/resolve", "s1", ResolveRequest{Slot: "09:30:00"})
	assert.Equal(t, http.StatusConflict, w.Code)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/slots?date=2026-03-12", "s1", nil).Code)

	w = do(t, h, http.MethodPost, "/api/v1/bookings/resolve", "s1", ResolveRequest{Slot: "09:30:00"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp BookingResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "09:30:00", resp.StartTime)
	assert.Equal(t, "10:00:00", resp.EndTime)
	assert.Equal(t, 30, resp.DurationMinutes)
	assert.Equal(t, "2026-03-12", resp.Date)
	assert.NotEmpty(t, resp.ID)

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"no predecessor", ResolveRequest{Slot: "08:00:00"}, http.StatusUnprocessableEntity},
		{"not free", ResolveRequest{Slot: "09:00:00"}, http.StatusUnprocessableEntity},
		{"missing slot", ResolveRequest{}, http.StatusBadRequest},
		{"bad slot", ResolveRequest{Slot: "9:30"}, http.StatusBadRequest},
		{"unknown field", `{"slot":"09:30:00","extra":1}`, http.StatusBadRequest},
		{"invalid JSON", "not json", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/bookings/resolve", "s1", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestHandleSubmit(t *testing.T) {
	submitter := &stubSubmitter{}
	h := newTestServer(t, busyDay(), submitter, nil)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/slots?date=2026-03-12", "s1", nil).Code)

	w := do(t, h, http.MethodPost, "/api/v1/bookings", "s1", SubmitRequest{Slot: "09:30:00", Title: " Demo "})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, submitter.got, 1)
	assert.Equal(t, slots.BookingRequest{StartTime: "09:30:00", EndTime: "10:00:00"}, submitter.got[0])

	submitter.err = errors.New("calendar down")
	w = do(t, h, http.MethodPost, "/api/v1/bookings", "s1", SubmitRequest{Slot: "09:30:00"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandleSubmitDisabled(t *testing.T) {
	h := newTestServer(t, busyDay(), nil, nil)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/slots?date=2026-03-12", "s1", nil).Code)

	w := do(t, h, http.MethodPost, "/api/v1/bookings", "s1", SubmitRequest{Slot: "09:30:00"})
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Equal(t, planner.ErrSubmitDisabled.Error(), decodeError(t, w))
}

func TestReadiness(t *testing.T) {
	ready := newTestServer(t, busyDay(), nil, map[string]Checker{
		"calendar": func(context.Context) error { return nil },
	})
	w := do(t, ready, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	notReady := newTestServer(t, busyDay(), nil, map[string]Checker{
		"redis": func(context.Context) error { return errors.New("down") },
	})
	w = do(t, notReady, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, notReady, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
