package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"slotbook/internal/metrics"
	"slotbook/internal/slots"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// Client calls the remote calendar service for busy intervals and bookings.
type Client struct {
	baseURL    string
	apiKey     string
	apiExtra   string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time

	redis    *redis.Client
	cacheTTL atomic.Int64
}

// Event is one occupied period reported by the calendar service.
type Event struct {
	Start        string `json:"start"`
	End          string `json:"end"`
	ShowAs       string `json:"showAs"`
	IsBusyAllDay bool   `json:"isBusyAllDay"`
}

type scheduleResponse struct {
	Payload []Event `json:"payload"`
}

// ResponseError is returned for non-2xx responses and keeps the status code.
type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

// IsStatus reports whether err is a ResponseError with the given status code.
func IsStatus(err error, code int) bool {
	var re *ResponseError
	return errors.As(err, &re) && re.StatusCode == code
}

// NewClient constructs a client with baseURL, API key and extra header.
func NewClient(baseURL, apiKey, apiExtra string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		apiExtra:   apiExtra,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		now:        time.Now,
	}
}

// UseRedisCache configures optional Redis caching for schedule lookups.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.SetCacheTTL(ttl)
}

// SetCacheTTL changes the schedule cache TTL. Zero disables caching.
// Safe to call while requests are in flight.
func (c *Client) SetCacheTTL(ttl time.Duration) {
	c.cacheTTL.Store(int64(ttl))
}

// UseRateLimit throttles outgoing requests to perSecond with the given burst.
// A non-positive rate removes the limit. Safe to call while requests are in flight.
func (c *Client) UseRateLimit(perSecond float64, burst int) {
	if burst <= 0 {
		burst = 1
	}
	if perSecond <= 0 {
		c.limiter.SetLimit(rate.Inf)
	} else {
		c.limiter.SetLimit(rate.Limit(perSecond))
	}
	c.limiter.SetBurst(burst)
}

// GetDaySchedule fetches the busy events for date.
// For today the window starts at the current time instead of midnight.
func (c *Client) GetDaySchedule(ctx context.Context, date time.Time) ([]Event, error) {
	now := c.now().In(date.Location())
	day := date.Format(dateLayout)
	isToday := day == now.Format(dateLayout)

	start := day + " 00:00:00"
	if isToday {
		start = now.Format(dateTimeLayout)
	}
	q := url.Values{}
	q.Set("startTime", start)
	q.Set("endTime", day+" 23:59:59")
	endpoint := fmt.Sprintf("%s/api/v1/book-demo/calendar?%s", c.baseURL, q.Encode())

	// today's window moves with the clock, so it is never cached
	cacheKey := "calendar:" + day
	var resp scheduleResponse
	if !isToday && c.readCache(ctx, cacheKey, &resp) {
		return resp.Payload, nil
	}

	if err := c.doGet(ctx, "calendar", endpoint, &resp); err != nil {
		return nil, err
	}
	if !isToday {
		c.writeCache(ctx, cacheKey, resp)
	}
	return resp.Payload, nil
}

// BusyIntervals reduces events to busy intervals over grid.
// All-day events cover the whole grid.
func BusyIntervals(events []Event, grid *slots.Grid) []slots.BusyInterval {
	out := make([]slots.BusyInterval, 0, len(events))
	for _, e := range events {
		if e.IsBusyAllDay && grid.Len() > 0 {
			out = append(out, slots.BusyInterval{Start: grid.First(), End: grid.Last()})
			continue
		}
		out = append(out, slots.BusyInterval{
			Start: slots.FormatTimeToken(e.Start),
			End:   slots.FormatTimeToken(e.End),
		})
	}
	return out
}

// BookingSubmission is the body of POST /api/v1/book-demo.
type BookingSubmission struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Title     string `json:"title,omitempty"`
	Email     string `json:"email,omitempty"`
}

// SubmitBooking sends a resolved booking for date to the calendar service.
func (c *Client) SubmitBooking(ctx context.Context, date time.Time, req slots.BookingRequest, title, email string) error {
	day := date.Format(dateLayout)
	body := BookingSubmission{
		StartTime: fmt.Sprintf("%s %s", day, req.StartTime),
		EndTime:   fmt.Sprintf("%s %s", day, req.EndTime),
		Title:     title,
		Email:     email,
	}
	if err := c.doPost(ctx, "book", fmt.Sprintf("%s/api/v1/book-demo", c.baseURL), body, nil); err != nil {
		return err
	}
	// the day changed, drop its cached schedule
	c.dropCache(ctx, "calendar:"+day)
	return nil
}

// HealthCheck checks if the calendar service is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/healthz", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL.Load() <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		metrics.IncCacheLookup("miss")
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		metrics.IncCacheLookup("corrupt")
		return false
	}
	metrics.IncCacheLookup("hit")
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	ttl := time.Duration(c.cacheTTL.Load())
	if c.redis == nil || ttl <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, ttl).Err()
}

func (c *Client) dropCache(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, key).Err()
}

func (c *Client) doGet(ctx context.Context, name, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(name, req, out)
}

func (c *Client) doPost(ctx context.Context, name, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.do(name, req, out)
}

func (c *Client) do(name string, req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveCalendarRequest(name, "error", time.Since(started))
		return err
	}
	defer resp.Body.Close()
	metrics.ObserveCalendarRequest(name, strconv.Itoa(resp.StatusCode), time.Since(started))

	if resp.StatusCode >= 300 {
		var body struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return &ResponseError{StatusCode: resp.StatusCode, Message: body.Message}
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	return dec.Decode(out)
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set("x-api-extra", c.apiExtra)
	}
}
