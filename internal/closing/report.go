package closing

import (
	"time"

	"outletpos/backend/internal/domain"
	"outletpos/backend/internal/ledger"
)

// Snapshot is a wholesale read of the data streams the engine consumes.
type Snapshot struct {
	Attendance   []domain.Attendance
	Transactions []domain.Transaction
	Expenses     []domain.Expense
	Production   []domain.ProductionRecord
	Purchases    []domain.Purchase
	Transfers    []domain.StockTransfer
	Inventory    []domain.InventoryItem
	Closings     []domain.DailyClosing
}

type Scope struct {
	StaffID    string
	OutletID   string
	DayKey     string
	ShiftStart *domain.ClockTime
	Now        time.Time
	Location   *time.Location
}

type Figures struct {
	Window       ShiftWindow               `json:"window"`
	Label        domain.ShiftLabel         `json:"shift_label"`
	Cash         CashSummary               `json:"cash"`
	Ledger       []ledger.Row              `json:"inventory_mutations"`
	Transactions []domain.Transaction      `json:"transactions"`
	Expenses     []domain.Expense          `json:"expenses"`
	Production   []domain.ProductionRecord `json:"production"`
}

// Compute evaluates window, cash and ledger for the scope. When a closing
// exists for the day its timestamp freezes the window end.
func Compute(snap Snapshot, scope Scope) Figures {
	closed := FindClosing(snap.Closings, scope.StaffID, scope.OutletID, scope.DayKey)
	window := ResolveWindow(snap.Attendance, scope.StaffID, scope.OutletID, scope.DayKey, closed, scope.Now, scope.Location)
	label := LabelFor(scope.ShiftStart)
	if closed != nil {
		label = closed.ShiftName
		if !closed.WindowStart.IsZero() {
			window.Start = closed.WindowStart
		}
	}
	return computeFor(snap, scope, window, label)
}

func computeFor(snap Snapshot, scope Scope, window ShiftWindow, label domain.ShiftLabel) Figures {
	f := Figures{
		Window: window,
		Label:  label,
		Cash: Reconcile(CashInput{
			OutletID:     scope.OutletID,
			StaffID:      scope.StaffID,
			DayKey:       scope.DayKey,
			Label:        label,
			Window:       window.Window,
			Transactions: snap.Transactions,
			Expenses:     snap.Expenses,
			Closings:     snap.Closings,
		}),
		Ledger: ledger.Build(ledger.Input{
			OutletID:     scope.OutletID,
			StaffID:      scope.StaffID,
			Window:       window.Window,
			Inventory:    snap.Inventory,
			Transactions: snap.Transactions,
			Production:   snap.Production,
			Purchases:    snap.Purchases,
			Transfers:    snap.Transfers,
		}),
		Transactions: []domain.Transaction{},
		Expenses:     []domain.Expense{},
		Production:   []domain.ProductionRecord{},
	}
	for _, tx := range snap.Transactions {
		if ledger.CountsAsSale(tx, scope.OutletID, scope.StaffID, window.Window) {
			f.Transactions = append(f.Transactions, tx)
		}
	}
	for _, e := range snap.Expenses {
		if e.OutletID == scope.OutletID && e.StaffID == scope.StaffID && window.Contains(e.CreatedAt) {
			f.Expenses = append(f.Expenses, e)
		}
	}
	for _, p := range snap.Production {
		if p.OutletID == scope.OutletID && p.StaffID == scope.StaffID && window.Contains(p.CreatedAt) {
			f.Production = append(f.Production, p)
		}
	}
	return f
}

type Report struct {
	Closing domain.DailyClosing `json:"closing"`
	Figures
}

// BuildReport replays the shift over the closing's frozen window. The stored
// closing figures take precedence for the cash summary; the replay supplies
// the detail sections.
func BuildReport(snap Snapshot, c domain.DailyClosing, loc *time.Location) Report {
	scope := Scope{
		StaffID:  c.StaffID,
		OutletID: c.OutletID,
		DayKey:   c.DayKey,
		Now:      c.ClosedAt,
		Location: loc,
	}
	window := ResolveWindow(snap.Attendance, c.StaffID, c.OutletID, c.DayKey, &c, c.ClosedAt, loc)
	if !c.WindowStart.IsZero() {
		window.Start = c.WindowStart
	}
	f := computeFor(snap, scope, window, c.ShiftName)
	f.Cash.OpeningCents = c.OpeningBalanceCents
	f.Cash.CashSalesCents = c.TotalSalesCashCents
	f.Cash.QRISSalesCents = c.TotalSalesQRISCents
	f.Cash.ExpensesCents = c.TotalExpensesCents
	f.Cash.ExpectedCents = c.ExpectedCashCents
	return Report{Closing: c, Figures: f}
}

// NewClosing freezes the figures into the record to be persisted.
func NewClosing(id string, f Figures, scope Scope, form Form, approval Approval, closedAt time.Time) domain.DailyClosing {
	return domain.DailyClosing{
		ID:                  id,
		OutletID:            scope.OutletID,
		StaffID:             scope.StaffID,
		ShiftName:           f.Label,
		DayKey:              scope.DayKey,
		WindowStart:         f.Window.Start,
		ClosedAt:            closedAt,
		OpeningBalanceCents: f.Cash.OpeningCents,
		TotalSalesCashCents: f.Cash.CashSalesCents,
		TotalSalesQRISCents: f.Cash.QRISSalesCents,
		TotalExpensesCents:  f.Cash.ExpensesCents,
		ExpectedCashCents:   f.Cash.ExpectedCents,
		ActualCashCents:     form.ActualCashCents,
		DiscrepancyCents:    Discrepancy(form.ActualCashCents, f.Cash.ExpectedCents),
		Notes:               form.Notes,
		Status:              domain.ClosingStatusFinal,
		ApprovedBy:          approval.ApprovedBy,
		ApprovalReason:      string(approval.Reason),
	}
}
