package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"outletpos/backend/internal/closing"
	"outletpos/backend/internal/domain"
	"outletpos/backend/internal/metrics"
	"outletpos/backend/internal/store"
	"outletpos/backend/internal/xid"
)

// ClosingView is what the closing screen renders: a live preview while the
// shift is open, the frozen report once it is closed.
type ClosingView struct {
	Closed        bool             `json:"closed"`
	HasAttendance bool             `json:"has_attendance"`
	ScheduledEnd  *time.Time       `json:"scheduled_end,omitempty"`
	Preview       *closing.Figures `json:"preview,omitempty"`
	Report        *closing.Report  `json:"report,omitempty"`
}

type ClosingResult struct {
	State    closing.State        `json:"state"`
	Decision closing.Decision     `json:"decision"`
	Preview  closing.Figures      `json:"preview"`
	Closing  *domain.DailyClosing `json:"closing,omitempty"`
}

type shiftContext struct {
	staff *domain.Staff
	scope closing.Scope
	snap  closing.Snapshot
}

func (s *Service) loadShift(ctx context.Context, outletID string) (shiftContext, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return shiftContext{}, err
	}
	outletID, err = resolveOutlet(actor, outletID)
	if err != nil {
		return shiftContext{}, err
	}
	staff, err := s.repo.GetStaffByID(ctx, actor.StaffID)
	if err != nil {
		return shiftContext{}, fmt.Errorf("load staff: %w", err)
	}

	now := s.now()
	snap, err := s.loadSnapshot(ctx, domain.StartOfDay(now, s.loc))
	if err != nil {
		return shiftContext{}, err
	}
	return shiftContext{
		staff: staff,
		snap:  snap,
		scope: closing.Scope{
			StaffID:    staff.ID,
			OutletID:   outletID,
			DayKey:     s.dayKey(now),
			ShiftStart: staff.ShiftStart,
			Now:        now,
			Location:   s.loc,
		},
	}, nil
}

func (s *Service) scheduledEnd(staff *domain.Staff, window closing.ShiftWindow) *time.Time {
	if window.Attendance == nil {
		return nil
	}
	return closing.ScheduledEnd(window.Start, staff.ShiftStart, staff.ShiftEnd, s.loc)
}

func (s *Service) CurrentClosing(ctx context.Context, outletID string) (ClosingView, error) {
	sc, err := s.loadShift(ctx, outletID)
	if err != nil {
		return ClosingView{}, err
	}

	if closed := closing.FindClosing(sc.snap.Closings, sc.scope.StaffID, sc.scope.OutletID, sc.scope.DayKey); closed != nil {
		report, err := s.report(ctx, *closed, &sc.snap)
		if err != nil {
			return ClosingView{}, err
		}
		return ClosingView{Closed: true, HasAttendance: report.Window.Attendance != nil, Report: report}, nil
	}

	figures := closing.Compute(sc.snap, sc.scope)
	return ClosingView{
		HasAttendance: figures.Window.Attendance != nil,
		ScheduledEnd:  s.scheduledEnd(sc.staff, figures.Window),
		Preview:       &figures,
	}, nil
}

// SubmitClosing runs one pass of the closing flow. Without confirm or
// approver credentials it stops at the state the form leads to, so the
// client can show the preview and ask for the next step.
func (s *Service) SubmitClosing(ctx context.Context, req domain.ClosingSubmitRequest) (ClosingResult, error) {
	sc, err := s.loadShift(ctx, req.OutletID)
	if err != nil {
		return ClosingResult{}, err
	}
	scope := sc.scope
	if closing.FindClosing(sc.snap.Closings, scope.StaffID, scope.OutletID, scope.DayKey) != nil {
		return ClosingResult{State: closing.StateCommitted}, closing.ErrAlreadyClosed
	}

	actor, _ := ActorFromContext(ctx)
	figures := closing.Compute(sc.snap, scope)
	facts := closing.Facts{
		HasAttendance:         figures.Window.Attendance != nil,
		Role:                  actor.Role,
		Now:                   scope.Now,
		ScheduledEnd:          s.scheduledEnd(sc.staff, figures.Window),
		ExpectedCents:         figures.Cash.ExpectedCents,
		LargeDiscrepancyCents: s.threshold,
	}

	var saved *domain.DailyClosing
	commit := func(ctx context.Context, form closing.Form, approval closing.Approval) error {
		record := closing.NewClosing(xid.New("cls"), figures, scope, form, approval, figures.Window.End)
		created, err := s.repo.CreateClosing(ctx, record)
		if err != nil {
			if errors.Is(err, store.ErrDuplicateClosing) {
				return fmt.Errorf("%w: %w", closing.ErrAlreadyClosed, err)
			}
			return err
		}
		saved = created
		return nil
	}

	machine := closing.NewMachine(facts, closing.CommitKey(scope.StaffID, scope.OutletID, scope.DayKey), s.guard, s.auth, commit)
	decision := machine.Submit(closing.Form{
		ActualCashCents: req.ActualCashCents,
		Notes:           strings.TrimSpace(req.Notes),
	})
	metrics.ClosingDecisions.WithLabelValues(string(decision.State), string(decision.Reason)).Inc()

	result := ClosingResult{State: decision.State, Decision: decision, Preview: figures}

	var runErr error
	switch decision.State {
	case closing.StateNoAttendance, closing.StateRejected:
		return result, decision.Err
	case closing.StateNeedsApproval:
		if req.Approver == nil {
			return result, nil
		}
		runErr = machine.Approve(ctx, req.Approver.Username, req.Approver.Password)
		outcome := approvalOutcome(machine, runErr)
		metrics.ApprovalAttempts.WithLabelValues(outcome).Inc()
		if outcome == "denied" {
			s.logAudit(ctx, scope.OutletID, "closing.approval_denied", "closing", scope.StaffID, fmt.Sprintf("approver=%s reason=%s", req.Approver.Username, decision.Reason))
			result.State = machine.State()
			return result, runErr
		}
	case closing.StateConfirming:
		if !req.Confirm {
			return result, nil
		}
		runErr = machine.Confirm(ctx)
	default:
		return result, decision.Err
	}

	result.State = machine.State()
	if runErr != nil {
		if errors.Is(runErr, closing.ErrAlreadyClosed) {
			return result, closing.ErrAlreadyClosed
		}
		if errors.Is(runErr, closing.ErrCommitFailed) {
			metrics.CommitFailures.Inc()
			s.log.ErrorContext(ctx, "closing commit failed", "staff_id", scope.StaffID, "outlet_id", scope.OutletID, "error", runErr)
		}
		return result, runErr
	}

	result.Closing = saved
	metrics.ClosingsCommitted.WithLabelValues(string(saved.ShiftName)).Inc()
	s.clockOutAfterClosing(ctx, figures.Window.Attendance, saved.ClosedAt)
	s.logAudit(ctx, saved.OutletID, "closing.commit", "closing", saved.ID,
		fmt.Sprintf("shift=%s expected=%d actual=%d discrepancy=%d approved_by=%s", saved.ShiftName, saved.ExpectedCashCents, saved.ActualCashCents, saved.DiscrepancyCents, saved.ApprovedBy))

	return result, nil
}

// approvalOutcome labels an approval attempt. It is granted as soon as the
// approver is accepted, whatever happens to the commit afterwards.
func approvalOutcome(m *closing.Machine, err error) string {
	switch {
	case m.Approval().ApprovedBy != "":
		return "granted"
	case errors.Is(err, closing.ErrApprovalDenied):
		return "denied"
	default:
		return "error"
	}
}

// clockOutAfterClosing stamps the attendance. The closing is already the
// source of truth for closed-ness, so a failure here is only logged.
func (s *Service) clockOutAfterClosing(ctx context.Context, att *domain.Attendance, at time.Time) {
	if att == nil || att.ClockOut != nil {
		return
	}
	updated := *att
	updated.ClockOut = &at
	if _, err := s.repo.UpdateAttendance(ctx, updated); err != nil {
		metrics.ClockOutFailures.Inc()
		s.log.WarnContext(ctx, "clock-out after closing failed", "attendance_id", att.ID, "error", err)
	}
}

func (s *Service) ClosingReport(ctx context.Context, closingID string) (*closing.Report, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.GetClosing(ctx, closingID)
	if err != nil {
		return nil, err
	}
	if c.StaffID != actor.StaffID && !actor.Role.CanApprove() {
		return nil, ErrForbidden
	}
	return s.report(ctx, *c, nil)
}

// report serves from the cache when it can. snap may be nil, in which case
// the streams are read from the start of the closing's day.
func (s *Service) report(ctx context.Context, c domain.DailyClosing, snap *closing.Snapshot) (*closing.Report, error) {
	cached, ok, err := s.reports.Get(ctx, c.ID)
	switch {
	case err != nil:
		metrics.ReportCache.WithLabelValues("error").Inc()
		s.log.WarnContext(ctx, "report cache read failed", "closing_id", c.ID, "error", err)
	case ok:
		metrics.ReportCache.WithLabelValues("hit").Inc()
		return cached, nil
	default:
		metrics.ReportCache.WithLabelValues("miss").Inc()
	}

	if snap == nil {
		loaded, err := s.loadSnapshot(ctx, domain.StartOfDay(c.WindowStart, s.loc))
		if err != nil {
			return nil, err
		}
		snap = &loaded
	}

	report := closing.BuildReport(*snap, c, s.loc)
	if err := s.reports.Set(ctx, c.ID, &report, s.reportTTL); err != nil {
		s.log.WarnContext(ctx, "report cache write failed", "closing_id", c.ID, "error", err)
	}
	return &report, nil
}

// IsShiftClosed keys off the closing record alone; attendance clock-out is
// not consulted.
func (s *Service) IsShiftClosed(ctx context.Context, staffID, outletID, dayKey string) (bool, error) {
	day, err := time.ParseInLocation(domain.DayKeyLayout, dayKey, s.loc)
	if err != nil {
		return false, fmt.Errorf("parse day key %q: %w", dayKey, store.ErrInvalidTransaction)
	}
	closings, err := s.repo.ListClosings(ctx, day)
	if err != nil {
		return false, err
	}
	return closing.FindClosing(closings, staffID, outletID, dayKey) != nil, nil
}
