package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

func (r Role) CanApprove() bool {
	return r == RoleOwner || r == RoleManager
}

type PaymentMethod string

type TxStatus string

type TransferStatus string

type ItemType string

type ShiftLabel string

type Staff struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Name         string     `json:"name"`
	Role         Role       `json:"role"`
	OutletID     string     `json:"outlet_id"`
	ShiftStart   *ClockTime `json:"shift_start,omitempty"`
	ShiftEnd     *ClockTime `json:"shift_end,omitempty"`
	Active       bool       `json:"active"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
}

type Actor struct {
	StaffID  string
	Username string
	Role     Role
	OutletID string
}

type Outlet struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Attendance struct {
	ID       string     `json:"id"`
	StaffID  string     `json:"staff_id"`
	OutletID string     `json:"outlet_id"`
	Date     string     `json:"date"`
	ClockIn  time.Time  `json:"clock_in"`
	ClockOut *time.Time `json:"clock_out,omitempty"`
}

// BOMLine is one row of a product recipe. InventoryItemID may point at a
// template item owned by another outlet.
type BOMLine struct {
	InventoryItemID string          `json:"inventory_item_id"`
	Quantity        decimal.Decimal `json:"quantity"`
}

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	PriceCents int64     `json:"price_cents"`
	Active     bool      `json:"active"`
	Recipe     []BOMLine `json:"recipe"`
}

type TransactionLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

type Transaction struct {
	ID            string            `json:"id"`
	OutletID      string            `json:"outlet_id"`
	CashierID     string            `json:"cashier_id"`
	Items         []TransactionLine `json:"items"`
	TotalCents    int64             `json:"total_cents"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	Status        TxStatus          `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	VoidedAt      *time.Time        `json:"voided_at,omitempty"`
	VoidReason    string            `json:"void_reason,omitempty"`
}

type Expense struct {
	ID          string    `json:"id"`
	OutletID    string    `json:"outlet_id"`
	StaffID     string    `json:"staff_id"`
	TypeID      string    `json:"type_id"`
	AmountCents int64     `json:"amount_cents"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
}

type ProductionComponent struct {
	InventoryItemID string          `json:"inventory_item_id"`
	Quantity        decimal.Decimal `json:"quantity"`
}

type ProductionRecord struct {
	ID             string                `json:"id"`
	OutletID       string                `json:"outlet_id"`
	StaffID        string                `json:"staff_id"`
	ResultItemID   string                `json:"result_item_id"`
	ResultQuantity decimal.Decimal       `json:"result_quantity"`
	Components     []ProductionComponent `json:"components"`
	CreatedAt      time.Time             `json:"created_at"`
}

type Purchase struct {
	ID              string          `json:"id"`
	OutletID        string          `json:"outlet_id"`
	StaffID         string          `json:"staff_id"`
	InventoryItemID string          `json:"inventory_item_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPriceCents  int64           `json:"unit_price_cents"`
	CreatedAt       time.Time       `json:"created_at"`
}

// StockTransfer matches items across outlets by ItemName, never by id.
type StockTransfer struct {
	ID           string          `json:"id"`
	FromOutletID string          `json:"from_outlet_id"`
	ToOutletID   string          `json:"to_outlet_id"`
	ItemName     string          `json:"item_name"`
	Quantity     decimal.Decimal `json:"quantity"`
	Status       TransferStatus  `json:"status"`
	StaffID      string          `json:"staff_id"`
	CreatedAt    time.Time       `json:"created_at"`
	RespondedAt  *time.Time      `json:"responded_at,omitempty"`
	RespondedBy  string          `json:"responded_by,omitempty"`
}

// ReceivedAt is the moment the destination outlet gained the stock.
func (t StockTransfer) ReceivedAt() time.Time {
	if t.RespondedAt != nil {
		return *t.RespondedAt
	}
	return t.CreatedAt
}

type InventoryItem struct {
	ID               string          `json:"id"`
	OutletID         string          `json:"outlet_id"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	Quantity         decimal.Decimal `json:"quantity"`
	CostPerUnitCents int64           `json:"cost_per_unit_cents"`
	Type             ItemType        `json:"type"`
}

type InventoryAdjustment struct {
	InventoryItemID string
	Delta           decimal.Decimal
}

type DailyClosing struct {
	ID                  string     `json:"id"`
	OutletID            string     `json:"outlet_id"`
	StaffID             string     `json:"staff_id"`
	ShiftName           ShiftLabel `json:"shift_name"`
	DayKey              string     `json:"day_key"`
	WindowStart         time.Time  `json:"window_start"`
	ClosedAt            time.Time  `json:"closed_at"`
	OpeningBalanceCents int64      `json:"opening_balance_cents"`
	TotalSalesCashCents int64      `json:"total_sales_cash_cents"`
	TotalSalesQRISCents int64      `json:"total_sales_qris_cents"`
	TotalExpensesCents  int64      `json:"total_expenses_cents"`
	ExpectedCashCents   int64      `json:"expected_cash_cents"`
	ActualCashCents     int64      `json:"actual_cash_cents"`
	DiscrepancyCents    int64      `json:"discrepancy_cents"`
	Notes               string     `json:"notes"`
	Status              string     `json:"status"`
	ApprovedBy          string     `json:"approved_by,omitempty"`
	ApprovalReason      string     `json:"approval_reason,omitempty"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	OutletID      string    `json:"outlet_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     Role      `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleCashier Role = "cashier"
)

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentQRIS     PaymentMethod = "qris"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

const (
	TxStatusOpen   TxStatus = "open"
	TxStatusClosed TxStatus = "closed"
	TxStatusVoided TxStatus = "voided"
)

const (
	TransferPending  TransferStatus = "pending"
	TransferAccepted TransferStatus = "accepted"
	TransferRejected TransferStatus = "rejected"
)

const (
	ItemRaw ItemType = "raw"
	ItemWIP ItemType = "wip"
)

const (
	ShiftMorning ShiftLabel = "morning"
	ShiftNight   ShiftLabel = "night"
)

const ClosingStatusFinal = "final"
