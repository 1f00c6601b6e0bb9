package service

import (
	"context"
	"fmt"

	"outletpos/backend/internal/closing"
	"outletpos/backend/internal/domain"
	"outletpos/backend/internal/store"
	"outletpos/backend/internal/xid"
)

func (s *Service) ClockIn(ctx context.Context, req domain.ClockRequest) (*domain.Attendance, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	outletID, err := resolveOutlet(actor, req.OutletID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	dayKey := s.dayKey(now)
	closed, err := s.IsShiftClosed(ctx, actor.StaffID, outletID, dayKey)
	if err != nil {
		return nil, err
	}
	if closed {
		return nil, closing.ErrAlreadyClosed
	}

	records, err := s.repo.ListAttendance(ctx, domain.StartOfDay(now, s.loc))
	if err != nil {
		return nil, err
	}
	if existing := closing.FindAttendance(records, actor.StaffID, outletID, dayKey); existing != nil && existing.ClockOut == nil {
		return nil, ErrAlreadyClockedIn
	}

	created, err := s.repo.CreateAttendance(ctx, domain.Attendance{
		ID:       xid.New("att"),
		StaffID:  actor.StaffID,
		OutletID: outletID,
		Date:     dayKey,
		ClockIn:  now,
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, outletID, "attendance.clock_in", "attendance", created.ID, "")
	return created, nil
}

// ClockOut ends the attendance without closing the shift. The preview keeps
// running until a closing is committed.
func (s *Service) ClockOut(ctx context.Context, req domain.ClockRequest) (*domain.Attendance, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	outletID, err := resolveOutlet(actor, req.OutletID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	records, err := s.repo.ListAttendance(ctx, domain.StartOfDay(now, s.loc))
	if err != nil {
		return nil, err
	}
	existing := closing.FindAttendance(records, actor.StaffID, outletID, s.dayKey(now))
	if existing == nil || existing.ClockOut != nil {
		return nil, fmt.Errorf("no open attendance: %w", store.ErrNotFound)
	}

	updated := *existing
	updated.ClockOut = &now
	saved, err := s.repo.UpdateAttendance(ctx, updated)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, outletID, "attendance.clock_out", "attendance", saved.ID, "")
	return saved, nil
}
