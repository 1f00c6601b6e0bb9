package closing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outletpos/backend/internal/domain"
)

var wib = time.FixedZone("WIB", 7*3600)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, wib)
}

const (
	outlet = "outlet-1"
	staff  = "staff-a"
	day    = "2026-03-02"
)

func sale(id string, method domain.PaymentMethod, cents int64, when time.Time) domain.Transaction {
	return domain.Transaction{
		ID:            id,
		OutletID:      outlet,
		CashierID:     staff,
		TotalCents:    cents,
		PaymentMethod: method,
		Status:        domain.TxStatusClosed,
		CreatedAt:     when,
	}
}

func morningSnapshot() Snapshot {
	return Snapshot{
		Attendance: []domain.Attendance{
			{ID: "att-1", StaffID: staff, OutletID: outlet, Date: day, ClockIn: at(10, 0)},
		},
		Transactions: []domain.Transaction{
			sale("tx-1", domain.PaymentCash, 40000, at(10, 30)),
			sale("tx-2", domain.PaymentCash, 60000, at(11, 15)),
			sale("tx-3", domain.PaymentCash, 50000, at(12, 0)),
			sale("tx-4", domain.PaymentQRIS, 50000, at(12, 30)),
			// before clock-in
			sale("tx-early", domain.PaymentCash, 99000, at(9, 59)),
		},
		Expenses: []domain.Expense{
			{ID: "exp-1", OutletID: outlet, StaffID: staff, AmountCents: 20000, CreatedAt: at(11, 0)},
			{ID: "exp-other", OutletID: outlet, StaffID: "staff-b", AmountCents: 7000, CreatedAt: at(11, 0)},
		},
		Inventory: []domain.InventoryItem{
			{ID: "o1-cups", OutletID: outlet, Name: "Cups", Unit: "pcs", Quantity: decimal.NewFromInt(40)},
		},
	}
}

func morningScope(now time.Time) Scope {
	return Scope{
		StaffID:    staff,
		OutletID:   outlet,
		DayKey:     day,
		ShiftStart: &domain.ClockTime{Hour: 10},
		Now:        now,
		Location:   wib,
	}
}

func TestMorningCloseWithSmallShortfall(t *testing.T) {
	f := Compute(morningSnapshot(), morningScope(at(18, 0)))

	assert.Equal(t, domain.ShiftMorning, f.Label)
	assert.Equal(t, int64(0), f.Cash.OpeningCents)
	assert.Equal(t, int64(150000), f.Cash.CashSalesCents)
	assert.Equal(t, int64(50000), f.Cash.QRISSalesCents)
	assert.Equal(t, int64(20000), f.Cash.ExpensesCents)
	assert.Equal(t, int64(130000), f.Cash.ExpectedCents)
	assert.Equal(t, 4, f.Cash.TransactionCount)

	var committed domain.DailyClosing
	commit := func(_ context.Context, form Form, approval Approval) error {
		committed = NewClosing("cl-1", f, morningScope(at(18, 0)), form, approval, at(18, 0))
		return nil
	}
	facts := Facts{HasAttendance: true, Role: domain.RoleCashier, Now: at(18, 0), ExpectedCents: f.Cash.ExpectedCents}
	m := NewMachine(facts, CommitKey(staff, outlet, day), NewCommitGuard(), nil, commit)

	d := m.Submit(Form{ActualCashCents: 125000})
	assert.Equal(t, StateRejected, d.State)
	assert.ErrorIs(t, d.Err, ErrReasonRequired)
	assert.Equal(t, int64(-5000), d.DiscrepancyCents)

	d = m.Submit(Form{ActualCashCents: 125000, Notes: "short change given"})
	require.Equal(t, StateConfirming, d.State)
	require.NoError(t, m.Confirm(context.Background()))
	assert.Equal(t, StateCommitted, m.State())

	assert.Equal(t, int64(0), committed.OpeningBalanceCents)
	assert.Equal(t, int64(150000), committed.TotalSalesCashCents)
	assert.Equal(t, int64(50000), committed.TotalSalesQRISCents)
	assert.Equal(t, int64(20000), committed.TotalExpensesCents)
	assert.Equal(t, int64(125000), committed.ActualCashCents)
	assert.Equal(t, int64(-5000), committed.DiscrepancyCents)
	assert.Equal(t, at(10, 0), committed.WindowStart)
	assert.Equal(t, domain.ClosingStatusFinal, committed.Status)
	assert.Empty(t, committed.ApprovedBy)
}

func TestOpeningBalanceChainsMorningIntoNight(t *testing.T) {
	closings := []domain.DailyClosing{
		{ID: "m-1", OutletID: outlet, DayKey: day, ShiftName: domain.ShiftMorning, ClosedAt: at(15, 0), ActualCashCents: 125000},
		{ID: "m-other-day", OutletID: outlet, DayKey: "2026-03-01", ShiftName: domain.ShiftMorning, ClosedAt: at(15, 0), ActualCashCents: 1},
		{ID: "m-other-outlet", OutletID: "outlet-2", DayKey: day, ShiftName: domain.ShiftMorning, ClosedAt: at(15, 0), ActualCashCents: 2},
	}

	assert.Equal(t, int64(125000), OpeningBalance(domain.ShiftNight, outlet, day, closings))
	assert.Equal(t, int64(0), OpeningBalance(domain.ShiftMorning, outlet, day, closings))
	assert.Equal(t, int64(0), OpeningBalance(domain.ShiftNight, outlet, "2026-03-03", closings))

	// a later morning closing replaces the earlier float
	closings = append(closings, domain.DailyClosing{ID: "m-2", OutletID: outlet, DayKey: day, ShiftName: domain.ShiftMorning, ClosedAt: at(15, 30), ActualCashCents: 90000})
	assert.Equal(t, int64(90000), OpeningBalance(domain.ShiftNight, outlet, day, closings))
}

func TestNightShiftExpectedIncludesOpening(t *testing.T) {
	snap := Snapshot{
		Attendance: []domain.Attendance{{ID: "att-n", StaffID: staff, OutletID: outlet, Date: day, ClockIn: at(15, 0)}},
		Transactions: []domain.Transaction{
			sale("tx-n1", domain.PaymentCash, 30000, at(16, 0)),
			sale("tx-n2", domain.PaymentCard, 12000, at(17, 0)),
		},
		Closings: []domain.DailyClosing{
			{ID: "m-1", OutletID: outlet, StaffID: "staff-b", DayKey: day, ShiftName: domain.ShiftMorning, ClosedAt: at(15, 0), ActualCashCents: 125000},
		},
	}
	scope := Scope{StaffID: staff, OutletID: outlet, DayKey: day, ShiftStart: &domain.ClockTime{Hour: 15}, Now: at(22, 0), Location: wib}

	f := Compute(snap, scope)
	assert.Equal(t, domain.ShiftNight, f.Label)
	assert.Equal(t, int64(125000), f.Cash.OpeningCents)
	assert.Equal(t, int64(12000), f.Cash.OtherSalesCents)
	assert.Equal(t, int64(155000), f.Cash.ExpectedCents)
}

func TestEvaluateRuleOrder(t *testing.T) {
	end := at(15, 0)
	tests := []struct {
		name   string
		form   Form
		facts  Facts
		state  State
		reason Reason
		err    error
	}{
		{
			name:  "no attendance beats everything",
			form:  Form{ActualCashCents: -1},
			facts: Facts{Role: domain.RoleCashier},
			state: StateNoAttendance,
			err:   ErrNoAttendance,
		},
		{
			name:  "negative cash",
			form:  Form{ActualCashCents: -1, Notes: "x"},
			facts: Facts{HasAttendance: true, Role: domain.RoleOwner},
			state: StateRejected,
			err:   ErrNegativeCash,
		},
		{
			name:  "discrepancy without notes",
			form:  Form{ActualCashCents: 10, Notes: "   "},
			facts: Facts{HasAttendance: true, Role: domain.RoleOwner},
			state: StateRejected,
			err:   ErrReasonRequired,
		},
		{
			name:  "exact match needs no notes",
			form:  Form{ActualCashCents: 500},
			facts: Facts{HasAttendance: true, Role: domain.RoleCashier, ExpectedCents: 500},
			state: StateConfirming,
		},
		{
			name:   "early closing before large discrepancy",
			form:   Form{ActualCashCents: 0, Notes: "drawer emptied"},
			facts:  Facts{HasAttendance: true, Role: domain.RoleCashier, Now: at(14, 0), ScheduledEnd: &end, ExpectedCents: 900000},
			state:  StateNeedsApproval,
			reason: ReasonEarlyClosing,
			err:    ErrApprovalPending,
		},
		{
			name:   "large discrepancy",
			form:   Form{ActualCashCents: 0, Notes: "drawer emptied"},
			facts:  Facts{HasAttendance: true, Role: domain.RoleCashier, Now: at(16, 0), ScheduledEnd: &end, ExpectedCents: 50001},
			state:  StateNeedsApproval,
			reason: ReasonLargeDiscrepancy,
			err:    ErrApprovalPending,
		},
		{
			name:  "threshold itself is not large",
			form:  Form{ActualCashCents: 0, Notes: "counted twice"},
			facts: Facts{HasAttendance: true, Role: domain.RoleCashier, ExpectedCents: 50000},
			state: StateConfirming,
		},
		{
			name:  "custom threshold",
			form:  Form{ActualCashCents: 0, Notes: "counted twice"},
			facts: Facts{HasAttendance: true, Role: domain.RoleCashier, ExpectedCents: 1001, LargeDiscrepancyCents: 1000},
			state: StateNeedsApproval, reason: ReasonLargeDiscrepancy, err: ErrApprovalPending,
		},
		{
			name:  "manager skips approval",
			form:  Form{ActualCashCents: 0, Notes: "till swap"},
			facts: Facts{HasAttendance: true, Role: domain.RoleManager, Now: at(14, 0), ScheduledEnd: &end, ExpectedCents: 900000},
			state: StateConfirming,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.form, tt.facts)
			assert.Equal(t, tt.state, d.State)
			assert.Equal(t, tt.reason, d.Reason)
			if tt.err == nil {
				assert.NoError(t, d.Err)
			} else {
				assert.ErrorIs(t, d.Err, tt.err)
			}
		})
	}
}

func TestEarlyClosingMessage(t *testing.T) {
	end := at(15, 0)
	d := Evaluate(Form{ActualCashCents: 0}, Facts{HasAttendance: true, Role: domain.RoleCashier, Now: at(13, 45), ScheduledEnd: &end})
	assert.Equal(t, "early closing: shift ends at 15:00, now 13:45", d.Message)
}

func TestLabelFor(t *testing.T) {
	tests := []struct {
		start *domain.ClockTime
		want  domain.ShiftLabel
	}{
		{nil, domain.ShiftMorning},
		{&domain.ClockTime{Hour: 7}, domain.ShiftMorning},
		{&domain.ClockTime{Hour: 10}, domain.ShiftMorning},
		{&domain.ClockTime{Hour: 14, Minute: 59}, domain.ShiftMorning},
		{&domain.ClockTime{Hour: 15}, domain.ShiftNight},
		{&domain.ClockTime{Hour: 23, Minute: 30}, domain.ShiftNight},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LabelFor(tt.start), "start %v", tt.start)
	}
}

func TestScheduledEnd(t *testing.T) {
	start := &domain.ClockTime{Hour: 15}
	end := &domain.ClockTime{Hour: 23}
	got := ScheduledEnd(at(15, 5), start, end, wib)
	require.NotNil(t, got)
	assert.Equal(t, at(23, 0), *got)

	// overnight shift
	got = ScheduledEnd(at(18, 0), &domain.ClockTime{Hour: 18}, &domain.ClockTime{Hour: 2}, wib)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 3, 3, 2, 0, 0, 0, wib), *got)

	assert.Nil(t, ScheduledEnd(at(15, 0), start, nil, wib))
}

func TestResolveWindow(t *testing.T) {
	records := []domain.Attendance{
		{ID: "a1", StaffID: staff, OutletID: outlet, Date: day, ClockIn: at(8, 0)},
		{ID: "a2", StaffID: staff, OutletID: outlet, Date: day, ClockIn: at(10, 0)},
		{ID: "a3", StaffID: staff, OutletID: "outlet-2", Date: day, ClockIn: at(11, 0)},
	}

	w := ResolveWindow(records, staff, outlet, day, nil, at(14, 0), wib)
	require.NotNil(t, w.Attendance)
	assert.Equal(t, "a2", w.Attendance.ID)
	assert.Equal(t, at(10, 0), w.Start)
	assert.Equal(t, at(14, 0), w.End)

	closed := &domain.DailyClosing{ClosedAt: at(13, 0)}
	w = ResolveWindow(records, staff, outlet, day, closed, at(20, 0), wib)
	assert.Equal(t, at(13, 0), w.End)

	w = ResolveWindow(nil, staff, outlet, day, nil, at(14, 0), wib)
	assert.Nil(t, w.Attendance)
	assert.Equal(t, at(0, 0), w.Start)
}

func TestWindowIsHalfOpen(t *testing.T) {
	snap := morningSnapshot()
	snap.Transactions = append(snap.Transactions, sale("tx-at-end", domain.PaymentCash, 1000, at(13, 0)))
	snap.Transactions = append(snap.Transactions, sale("tx-at-start", domain.PaymentCash, 500, at(10, 0)))

	f := Compute(snap, morningScope(at(13, 0)))
	assert.Equal(t, int64(150500), f.Cash.CashSalesCents)
}

type stubAuthorizer map[string]Approver

func (s stubAuthorizer) Authorize(_ context.Context, username, password string) (Approver, error) {
	if username == "down" {
		return Approver{}, errors.New("connection refused")
	}
	a, ok := s[username]
	if !ok || password != "secret" {
		return Approver{}, fmt.Errorf("%w: invalid credentials", ErrApprovalDenied)
	}
	return a, nil
}

var approvers = stubAuthorizer{
	"mgr":   {StaffID: "staff-m", Username: "mgr", Role: domain.RoleManager},
	"other": {StaffID: "staff-c", Username: "other", Role: domain.RoleCashier},
}

func largeShortfall() Facts {
	return Facts{HasAttendance: true, Role: domain.RoleCashier, Now: at(18, 0), ExpectedCents: 200000}
}

func TestMachineApprovalCommitsDirectly(t *testing.T) {
	var got Approval
	calls := 0
	commit := func(_ context.Context, _ Form, a Approval) error {
		calls++
		got = a
		return nil
	}
	m := NewMachine(largeShortfall(), "k", NewCommitGuard(), approvers, commit)

	d := m.Submit(Form{ActualCashCents: 100000, Notes: "robbery report filed"})
	require.Equal(t, StateNeedsApproval, d.State)
	assert.ErrorIs(t, m.Confirm(context.Background()), ErrInvalidState)

	err := m.Approve(context.Background(), "mgr", "wrong")
	assert.ErrorIs(t, err, ErrApprovalDenied)
	assert.Equal(t, StateNeedsApproval, m.State())

	err = m.Approve(context.Background(), "other", "secret")
	assert.ErrorIs(t, err, ErrApprovalDenied)
	assert.Equal(t, StateNeedsApproval, m.State())
	assert.Equal(t, Approval{}, m.Approval())

	err = m.Approve(context.Background(), "down", "secret")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrApprovalDenied)
	assert.Equal(t, StateNeedsApproval, m.State())
	assert.Zero(t, calls)

	require.NoError(t, m.Approve(context.Background(), "mgr", "secret"))
	assert.Equal(t, StateCommitted, m.State())
	assert.Equal(t, 1, calls)
	assert.Equal(t, Approval{ApprovedBy: "mgr", Reason: ReasonLargeDiscrepancy}, got)
	assert.Equal(t, got, m.Approval())
}

func TestMachineCommitFailureAllowsRetry(t *testing.T) {
	fail := true
	commit := func(context.Context, Form, Approval) error {
		if fail {
			return errors.New("connection reset")
		}
		return nil
	}
	m := NewMachine(Facts{HasAttendance: true, Role: domain.RoleCashier}, "k", NewCommitGuard(), nil, commit)
	m.Submit(Form{ActualCashCents: 0})

	err := m.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrCommitFailed)
	assert.Equal(t, StateConfirming, m.State())

	fail = false
	require.NoError(t, m.Confirm(context.Background()))
	assert.Equal(t, StateCommitted, m.State())

	d := m.Submit(Form{ActualCashCents: 0})
	assert.ErrorIs(t, d.Err, ErrInvalidState)
	assert.ErrorIs(t, m.Abandon(), ErrInvalidState)
}

func TestMachineAbandonResets(t *testing.T) {
	m := NewMachine(largeShortfall(), "k", NewCommitGuard(), approvers, nil)
	m.Submit(Form{ActualCashCents: 1, Notes: "short"})
	require.Equal(t, StateNeedsApproval, m.State())

	require.NoError(t, m.Abandon())
	assert.Equal(t, StateEditing, m.State())
	assert.Equal(t, Decision{}, m.Decision())
}

func TestMachineWithoutAttendance(t *testing.T) {
	m := NewMachine(Facts{}, "k", NewCommitGuard(), nil, nil)
	assert.Equal(t, StateNoAttendance, m.State())

	d := m.Submit(Form{ActualCashCents: 100, Notes: "x"})
	assert.ErrorIs(t, d.Err, ErrNoAttendance)
	assert.Equal(t, StateNoAttendance, m.State())
}

func TestSingleCommitPerKey(t *testing.T) {
	guard := NewCommitGuard()
	entered := make(chan struct{})
	proceed := make(chan struct{})
	var mu sync.Mutex
	calls := 0

	commit := func(context.Context, Form, Approval) error {
		mu.Lock()
		calls++
		mu.Unlock()
		close(entered)
		<-proceed
		return nil
	}
	facts := Facts{HasAttendance: true, Role: domain.RoleCashier}

	first := NewMachine(facts, CommitKey(staff, outlet, day), guard, nil, commit)
	second := NewMachine(facts, CommitKey(staff, outlet, day), guard, nil, commit)
	first.Submit(Form{ActualCashCents: 0})
	second.Submit(Form{ActualCashCents: 0})

	done := make(chan error, 1)
	go func() { done <- first.Confirm(context.Background()) }()
	<-entered

	assert.ErrorIs(t, second.Confirm(context.Background()), ErrCommitInFlight)
	assert.Equal(t, StateConfirming, second.State())

	close(proceed)
	require.NoError(t, <-done)
	assert.Equal(t, 1, calls)

	// a different day is independent
	release, ok := guard.TryAcquire(CommitKey(staff, outlet, "2026-03-03"))
	require.True(t, ok)
	release()
}

func TestReportKeepsStoredFigures(t *testing.T) {
	snap := morningSnapshot()
	scope := morningScope(at(13, 0))
	f := Compute(snap, scope)
	c := NewClosing("cl-1", f, scope, Form{ActualCashCents: 125000, Notes: "short"}, Approval{}, at(13, 0))
	snap.Closings = append(snap.Closings, c)

	// voided after the close; totals stay frozen
	snap.Transactions[0].Status = domain.TxStatusVoided
	// sold after the close; outside the frozen window
	snap.Transactions = append(snap.Transactions, sale("tx-late", domain.PaymentCash, 7000, at(14, 0)))

	r := BuildReport(snap, c, wib)
	assert.Equal(t, c, r.Closing)
	assert.Equal(t, int64(150000), r.Cash.CashSalesCents)
	assert.Equal(t, int64(130000), r.Cash.ExpectedCents)
	assert.Equal(t, at(10, 0), r.Window.Start)
	assert.Equal(t, at(13, 0), r.Window.End)
	assert.Len(t, r.Transactions, 3)
	assert.Len(t, r.Expenses, 1)

	// the live view for the day also freezes on the recorded close
	live := Compute(snap, morningScope(at(20, 0)))
	assert.Equal(t, at(13, 0), live.Window.End)
	assert.Equal(t, domain.ShiftMorning, live.Label)
}
