// Package slots holds the requested court slots and their storage.
package slots

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MoneyMiii/tennis-booking/internal/apperr"
)

const DateLayout = "2006-01-02"

// Hour bounds accepted by the site's time slider.
const (
	MinStart = 8
	MaxStart = 21
	MinEnd   = 9
	MaxEnd   = 22
)

type CourtType string

const (
	Outdoor CourtType = "outdoor"
	Indoor  CourtType = "indoor"
	Both    CourtType = "both"
)

func ParseCourtType(s string) (CourtType, error) {
	switch ct := CourtType(strings.ToLower(strings.TrimSpace(s))); ct {
	case Outdoor, Indoor, Both:
		return ct, nil
	}
	return "", apperr.E(apperr.Validation, fmt.Sprintf("invalid court type %q (want outdoor, indoor or both)", s))
}

type Status string

const (
	Waiting   Status = "waiting"
	Booked    Status = "book"
	NotBooked Status = "not_book"
)

type Slot struct {
	ID        string
	Date      time.Time
	StartTime int
	EndTime   int
	Type      CourtType
	Status    Status
}

type slotJSON struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	StartTime int       `json:"start_time"`
	EndTime   int       `json:"end_time"`
	Type      CourtType `json:"type"`
	Status    Status    `json:"status"`
}

func (s Slot) MarshalJSON() ([]byte, error) {
	return json.Marshal(slotJSON{
		ID:        s.ID,
		Date:      s.Date.Format(DateLayout),
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Type:      s.Type,
		Status:    s.Status,
	})
}

// ParseDate parses a YYYY-MM-DD civil date; the result is UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, apperr.E(apperr.Validation, fmt.Sprintf("invalid date %q (want YYYY-MM-DD)", s))
	}
	return d, nil
}

// DayOf returns the civil date of t, in t's own location, as UTC midnight.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ValidateHours(start, end int) error {
	if start < MinStart || start > MaxStart {
		return apperr.E(apperr.Validation, fmt.Sprintf("start_time must be between %d and %d", MinStart, MaxStart))
	}
	if end < MinEnd || end > MaxEnd {
		return apperr.E(apperr.Validation, fmt.Sprintf("end_time must be between %d and %d", MinEnd, MaxEnd))
	}
	if start >= end {
		return apperr.E(apperr.Validation, "start_time must be before end_time")
	}
	return nil
}

func (s Slot) Validate() error {
	if s.Date.IsZero() {
		return apperr.E(apperr.Validation, "date is required")
	}
	if err := ValidateHours(s.StartTime, s.EndTime); err != nil {
		return err
	}
	if _, err := ParseCourtType(string(s.Type)); err != nil {
		return err
	}
	return nil
}

// LockKey names the per-date critical section shared by every writer of
// booked slots.
func LockKey(date time.Time) string {
	return "slots:date:" + date.Format(DateLayout)
}
