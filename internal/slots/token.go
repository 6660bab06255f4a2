package slots

import (
	"fmt"
	"strings"
	"time"
)

const tokenLayout = "15:04:05"

// TimeToken is a time of day in canonical "HH:MM:SS" form.
// Tokens are compared as plain strings; no timezone is implied.
type TimeToken string

// ParseTimeToken validates s as a canonical "HH:MM:SS" token.
func ParseTimeToken(s string) (TimeToken, error) {
	t, err := time.Parse(tokenLayout, s)
	if err != nil || t.Format(tokenLayout) != s {
		return "", fmt.Errorf("invalid time token: %q", s)
	}
	return TimeToken(s), nil
}

// FormatTimeToken reduces a remote timestamp such as "2024-01-01T08:30:00.000Z"
// to its time-of-day token "08:30:00". Input without a date part is returned trimmed.
func FormatTimeToken(raw string) TimeToken {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "T "); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexAny(s, ".Z+-"); i >= 0 {
		s = s[:i]
	}
	return TimeToken(s)
}

func (t TimeToken) String() string {
	return string(t)
}

// Label is the "HH:MM" form shown on slot buttons.
func (t TimeToken) Label() string {
	s := string(t)
	if len(s) == len(tokenLayout) {
		return s[:5]
	}
	return s
}

// Before reports whether t sorts before other.
func (t TimeToken) Before(other TimeToken) bool {
	return t < other
}

// Clock returns the token as a time.Duration since midnight.
func (t TimeToken) Clock() (time.Duration, error) {
	parsed, err := time.Parse(tokenLayout, string(t))
	if err != nil {
		return 0, fmt.Errorf("invalid time token: %q", string(t))
	}
	return time.Duration(parsed.Hour())*time.Hour +
		time.Duration(parsed.Minute())*time.Minute +
		time.Duration(parsed.Second())*time.Second, nil
}

func tokenFromClock(d time.Duration) TimeToken {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	return TimeToken(fmt.Sprintf("%02d:%02d:%02d", h, m, s))
}
