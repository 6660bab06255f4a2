package api

import (
	"errors"
	"net/http"

	"slotbook/internal/calendar"
	"slotbook/internal/metrics"
	"slotbook/internal/planner"
	"slotbook/internal/slots"
)

// SlotsResponse is the response for GET /api/v1/slots.
type SlotsResponse struct {
	Session    string           `json:"session"`
	Date       string           `json:"date"`
	Strategy   string           `json:"strategy"`
	Generation uint64           `json:"generation"`
	Unmatched  int              `json:"unmatched,omitempty"`
	Slots      []slots.SlotInfo `json:"slots"`
}

// handleSlots fetches busy intervals for a date and returns the free slots.
// GET /api/v1/slots?date=YYYY-MM-DD
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slots")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := s.planner.ParseDate(dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	session := sessionID(w, r)
	day, err := s.planner.Refresh(r.Context(), session, date)
	switch {
	case err == nil:
	case errors.Is(err, planner.ErrStale):
		writeError(w, http.StatusConflict, err.Error())
		return
	default:
		var re *calendar.ResponseError
		if errors.As(err, &re) {
			writeError(w, http.StatusBadGateway, "error fetching free hours: "+re.Error())
			return
		}
		writeError(w, http.StatusBadGateway, "error fetching free hours")
		return
	}

	writeJSON(w, http.StatusOK, toSlotsResponse(day))
}

// handleCurrentSlots returns the last computed slots for the session, or
// drops them on DELETE.
// GET|DELETE /api/v1/slots/current
func (s *HTTPServer) handleCurrentSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slots_current")

	session := r.Header.Get(sessionHeader)
	switch r.Method {
	case http.MethodGet:
	case http.MethodDelete:
		if session == "" {
			writeError(w, http.StatusBadRequest, sessionHeader+" header is required")
			return
		}
		s.planner.Forget(session)
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET or DELETE")
		return
	}

	day, ok := s.planner.Current(session)
	if !ok {
		writeError(w, http.StatusNotFound, "no date selected")
		return
	}
	writeJSON(w, http.StatusOK, toSlotsResponse(day))
}

func toSlotsResponse(day *planner.Day) SlotsResponse {
	return SlotsResponse{
		Session:    day.Session,
		Date:       day.Date.Format("2006-01-02"),
		Strategy:   day.Strategy.String(),
		Generation: day.Generation,
		Unmatched:  day.Unmatched,
		Slots:      slots.ToSlotInfo(day.Free),
	}
}
