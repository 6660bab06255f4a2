package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"slotbook/internal/planner"
	"slotbook/internal/slots"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const sessionHeader = "X-Session-ID"

// Planner is the part of planner.Service the API needs.
type Planner interface {
	ParseDate(value string) (time.Time, error)
	Refresh(ctx context.Context, session string, date time.Time) (*planner.Day, error)
	Current(session string) (*planner.Day, bool)
	Forget(session string)
	Pick(session string, picked slots.TimeToken) (*planner.Booking, error)
	Submit(ctx context.Context, session string, picked slots.TimeToken, title, email string) (*planner.Booking, error)
}

// Checker reports whether a dependency is ready.
type Checker func(ctx context.Context) error

// HTTPServer serves the slot API.
type HTTPServer struct {
	server  *http.Server
	planner Planner
	apiKey  string
	checks  map[string]Checker
	logger  *zerolog.Logger
}

// NewHTTPServer wires routes. An empty apiKey disables the x-api-key check.
func NewHTTPServer(port int, apiKey string, p Planner, checks map[string]Checker, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &HTTPServer{
		planner: p,
		apiKey:  apiKey,
		checks:  checks,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/api/v1/slots", s.auth(http.HandlerFunc(s.handleSlots)))
	mux.Handle("/api/v1/slots/current", s.auth(http.HandlerFunc(s.handleCurrentSlots)))
	mux.Handle("/api/v1/bookings/resolve", s.auth(http.HandlerFunc(s.handleResolve)))
	mux.Handle("/api/v1/bookings", s.auth(http.HandlerFunc(s.handleSubmit)))

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.logRequests(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()
	s.logger.Info().Str("addr", s.server.Addr).Msg("api server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			http.Error(w, name+" not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *HTTPServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("x-api-key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(started)).
			Msg("http request")
	})
}

// sessionID returns the caller's session, issuing a new one when absent.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	id := r.Header.Get(sessionHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(sessionHeader, id)
	return id
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
