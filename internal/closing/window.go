// Package closing holds the shift-closing engine: window resolution, cash
// reconciliation, the authorization state machine and the final report.
//
// Everything here is a pure function of the snapshots passed in, so the live
// preview and the finalized report produce identical figures for the same
// frozen window.
package closing

import (
	"time"

	"outletpos/backend/internal/domain"
)

type ShiftWindow struct {
	domain.Window
	Attendance *domain.Attendance `json:"attendance,omitempty"`
}

// FindAttendance picks the staff member's attendance for the day at the
// outlet. The latest clock-in wins when several exist.
func FindAttendance(records []domain.Attendance, staffID, outletID, dayKey string) *domain.Attendance {
	var found *domain.Attendance
	for i := range records {
		rec := records[i]
		if rec.StaffID != staffID || rec.OutletID != outletID || rec.Date != dayKey {
			continue
		}
		if found == nil || rec.ClockIn.After(found.ClockIn) {
			found = &rec
		}
	}
	return found
}

// FindClosing returns the closing recorded for (staff, outlet, day), if any.
func FindClosing(closings []domain.DailyClosing, staffID, outletID, dayKey string) *domain.DailyClosing {
	var found *domain.DailyClosing
	for i := range closings {
		c := closings[i]
		if c.StaffID != staffID || c.OutletID != outletID || c.DayKey != dayKey {
			continue
		}
		if found == nil || c.ClosedAt.Before(found.ClosedAt) {
			found = &c
		}
	}
	return found
}

// ResolveWindow returns [clockIn, end) where end is the closing timestamp
// for a finalized shift and now otherwise. Without attendance the window
// starts at local midnight; callers block the closing flow in that case.
func ResolveWindow(records []domain.Attendance, staffID, outletID, dayKey string, closed *domain.DailyClosing, now time.Time, loc *time.Location) ShiftWindow {
	att := FindAttendance(records, staffID, outletID, dayKey)

	start := domain.StartOfDay(now, loc)
	if att != nil {
		start = att.ClockIn
	}
	end := now
	if closed != nil {
		end = closed.ClosedAt
	}
	return ShiftWindow{
		Window:     domain.Window{Start: start, End: end},
		Attendance: att,
	}
}

// LabelFor derives the shift label from the configured start time: hours
// 10-14 are morning, 15 onwards night, anything else morning.
func LabelFor(start *domain.ClockTime) domain.ShiftLabel {
	if start == nil {
		return domain.ShiftMorning
	}
	switch {
	case start.Hour >= 10 && start.Hour < 15:
		return domain.ShiftMorning
	case start.Hour >= 15:
		return domain.ShiftNight
	default:
		return domain.ShiftMorning
	}
}

// ScheduledEnd places the configured shift end on the day the shift started.
// An end earlier than the start belongs to the next day.
func ScheduledEnd(startedAt time.Time, shiftStart, shiftEnd *domain.ClockTime, loc *time.Location) *time.Time {
	if shiftEnd == nil {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	local := startedAt.In(loc)
	end := shiftEnd.On(local)
	if shiftStart != nil && end.Before(shiftStart.On(local)) {
		end = end.AddDate(0, 0, 1)
	}
	return &end
}
