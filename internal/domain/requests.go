package domain

import "github.com/shopspring/decimal"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        Role   `json:"role"`
	StaffID     string `json:"staff_id"`
	OutletID    string `json:"outlet_id"`
	ExpiresAt   string `json:"expires_at"`
}

type ClockRequest struct {
	OutletID string `json:"outlet_id"`
}

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CheckoutRequest struct {
	OutletID      string        `json:"outlet_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Items         []CartItem    `json:"items"`
}

type VoidTransactionRequest struct {
	Reason string `json:"reason"`
}

type ExpenseRequest struct {
	OutletID    string `json:"outlet_id"`
	TypeID      string `json:"type_id"`
	AmountCents int64  `json:"amount_cents"`
	Notes       string `json:"notes"`
}

type ProductionRequest struct {
	OutletID       string                `json:"outlet_id"`
	ResultItemID   string                `json:"result_item_id"`
	ResultQuantity decimal.Decimal       `json:"result_quantity"`
	Components     []ProductionComponent `json:"components"`
}

type PurchaseRequest struct {
	OutletID        string          `json:"outlet_id"`
	InventoryItemID string          `json:"inventory_item_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPriceCents  int64           `json:"unit_price_cents"`
}

type TransferRequest struct {
	FromOutletID string          `json:"from_outlet_id"`
	ToOutletID   string          `json:"to_outlet_id"`
	ItemName     string          `json:"item_name"`
	Quantity     decimal.Decimal `json:"quantity"`
}

type TransferRespondRequest struct {
	Accept bool `json:"accept"`
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ClosingSubmitRequest struct {
	OutletID        string       `json:"outlet_id"`
	ActualCashCents int64        `json:"actual_cash_cents"`
	Notes           string       `json:"notes"`
	Confirm         bool         `json:"confirm"`
	Approver        *Credentials `json:"approver,omitempty"`
}
