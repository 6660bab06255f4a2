package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"slotbook/internal/metrics"
	"slotbook/internal/planner"
	"slotbook/internal/slots"
)

// ResolveRequest is the body for POST /api/v1/bookings/resolve.
type ResolveRequest struct {
	Slot string `json:"slot"` // "HH:MM:SS"
}

// SubmitRequest is the body for POST /api/v1/bookings.
type SubmitRequest struct {
	Slot  string `json:"slot"`
	Title string `json:"title,omitempty"`
	Email string `json:"email,omitempty"`
}

// BookingResponse describes a resolved booking interval.
type BookingResponse struct {
	ID              string `json:"id"`
	Date            string `json:"date"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
	DurationMinutes int    `json:"duration_minutes"`
}

// handleResolve turns a picked slot into a booking interval.
// POST /api/v1/bookings/resolve
func (s *HTTPServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_resolve")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req ResolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	picked, ok := parseSlot(w, req.Slot)
	if !ok {
		return
	}

	b, err := s.planner.Pick(r.Header.Get(sessionHeader), picked)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

// handleSubmit resolves a picked slot and submits the booking.
// POST /api/v1/bookings
func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_submit")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req SubmitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	picked, ok := parseSlot(w, req.Slot)
	if !ok {
		return
	}

	b, err := s.planner.Submit(r.Context(), r.Header.Get(sessionHeader), picked, strings.TrimSpace(req.Title), strings.TrimSpace(req.Email))
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func parseSlot(w http.ResponseWriter, value string) (slots.TimeToken, bool) {
	if value == "" {
		writeError(w, http.StatusBadRequest, "slot is required")
		return "", false
	}
	tok, err := slots.ParseTimeToken(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid slot format; expected HH:MM:SS")
		return "", false
	}
	return tok, true
}

func writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, planner.ErrNoBoard):
		writeError(w, http.StatusConflict, "no date selected")
	case errors.Is(err, slots.ErrSlotNotResolvable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, planner.ErrSubmitDisabled):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		writeError(w, http.StatusBadGateway, "booking failed")
	}
}

func toBookingResponse(b *planner.Booking) BookingResponse {
	resp := BookingResponse{
		ID:        b.ID,
		Date:      b.Date.Format("2006-01-02"),
		StartTime: b.Request.StartTime.String(),
		EndTime:   b.Request.EndTime.String(),
	}
	if d, err := b.Request.Duration(); err == nil {
		resp.DurationMinutes = int(d.Minutes())
	}
	return resp
}
