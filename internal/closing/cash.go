package closing

import (
	"outletpos/backend/internal/domain"
	"outletpos/backend/internal/ledger"
)

type CashInput struct {
	OutletID     string
	StaffID      string
	DayKey       string
	Label        domain.ShiftLabel
	Window       domain.Window
	Transactions []domain.Transaction
	Expenses     []domain.Expense
	Closings     []domain.DailyClosing
}

type CashSummary struct {
	OpeningCents     int64 `json:"opening_cents"`
	CashSalesCents   int64 `json:"cash_sales_cents"`
	QRISSalesCents   int64 `json:"qris_sales_cents"`
	OtherSalesCents  int64 `json:"other_sales_cents"`
	ExpensesCents    int64 `json:"expenses_cents"`
	ExpectedCents    int64 `json:"expected_cents"`
	TransactionCount int   `json:"transaction_count"`
}

func Reconcile(in CashInput) CashSummary {
	var sum CashSummary
	for _, tx := range in.Transactions {
		if !ledger.CountsAsSale(tx, in.OutletID, in.StaffID, in.Window) {
			continue
		}
		sum.TransactionCount++
		switch tx.PaymentMethod {
		case domain.PaymentCash:
			sum.CashSalesCents += tx.TotalCents
		case domain.PaymentQRIS:
			sum.QRISSalesCents += tx.TotalCents
		default:
			sum.OtherSalesCents += tx.TotalCents
		}
	}
	for _, e := range in.Expenses {
		if e.OutletID != in.OutletID || e.StaffID != in.StaffID || !in.Window.Contains(e.CreatedAt) {
			continue
		}
		sum.ExpensesCents += e.AmountCents
	}
	sum.OpeningCents = OpeningBalance(in.Label, in.OutletID, in.DayKey, in.Closings)
	sum.ExpectedCents = sum.OpeningCents + sum.CashSalesCents - sum.ExpensesCents
	return sum
}

// OpeningBalance is zero for the morning shift; the cash float resets daily.
// The night shift inherits the counted cash of the outlet's morning closing
// for the same day, or zero when the morning has not closed.
func OpeningBalance(label domain.ShiftLabel, outletID, dayKey string, closings []domain.DailyClosing) int64 {
	if label != domain.ShiftNight {
		return 0
	}
	var morning *domain.DailyClosing
	for i := range closings {
		c := closings[i]
		if c.OutletID != outletID || c.DayKey != dayKey || c.ShiftName != domain.ShiftMorning {
			continue
		}
		if morning == nil || c.ClosedAt.After(morning.ClosedAt) {
			morning = &c
		}
	}
	if morning == nil {
		return 0
	}
	return morning.ActualCashCents
}

// Discrepancy is positive when the drawer holds more than expected.
func Discrepancy(actualCents, expectedCents int64) int64 {
	return actualCents - expectedCents
}
