package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// ClockTime is a wall-clock "HH:MM" value validated once at load time.
type ClockTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func ParseClockTime(raw string) (ClockTime, error) {
	raw = strings.TrimSpace(raw)
	hh, mm, ok := strings.Cut(raw, ":")
	if !ok {
		return ClockTime{}, fmt.Errorf("clock time %q: expected HH:MM", raw)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return ClockTime{}, fmt.Errorf("clock time %q: invalid hour", raw)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("clock time %q: invalid minute", raw)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns c on the calendar day of day, in day's location.
func (c ClockTime) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, day.Location())
}

const DayKeyLayout = "2006-01-02"

// DayKey maps t to the stable calendar-day string of loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayKeyLayout)
}

func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
