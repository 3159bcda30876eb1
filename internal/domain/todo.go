package domain

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the wire format of due dates.
const DateLayout = time.DateOnly

// Todo is a task owned by exactly one user.
type Todo struct {
	ID        string
	OwnerID   string
	Title     string
	DueDate   time.Time
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DueDateString renders the due date as YYYY-MM-DD.
func (t Todo) DueDateString() string {
	return FormatDate(t.DueDate)
}

var errInvalidDate = errors.New("invalid date")

// NormalizeDate drops the time of day, keeping the calendar date as observed
// in t's own location. The result is midnight UTC of that date.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the
// normalized calendar date.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errInvalidDate
	}
	if parsed, err := time.Parse(DateLayout, value); err == nil {
		return parsed, nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return NormalizeDate(parsed), nil
	}
	return time.Time{}, errInvalidDate
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return NormalizeDate(t).Format(DateLayout)
}
