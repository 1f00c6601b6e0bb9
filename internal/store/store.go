package store

import (
	"context"
	"errors"
	"time"

	"outletpos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrDuplicateClosing   = errors.New("closing already recorded for staff, outlet and day")
)

// Repository is the persistence boundary. List calls return every record at
// or after since; a zero since reads everything. Inventory deltas passed to
// create calls are applied atomically with the record itself.
type Repository interface {
	ListOutlets(ctx context.Context) ([]domain.Outlet, error)

	GetStaffByID(ctx context.Context, id string) (*domain.Staff, error)
	GetStaffByUsername(ctx context.Context, username string) (*domain.Staff, error)
	ListStaff(ctx context.Context) ([]domain.Staff, error)
	CreateStaff(ctx context.Context, staff domain.Staff) error
	UpdateStaffPassword(ctx context.Context, username string, passwordHash string) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)

	ListAttendance(ctx context.Context, since time.Time) ([]domain.Attendance, error)
	CreateAttendance(ctx context.Context, att domain.Attendance) (*domain.Attendance, error)
	UpdateAttendance(ctx context.Context, att domain.Attendance) (*domain.Attendance, error)

	ListTransactions(ctx context.Context, since time.Time) ([]domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	CreateTransaction(ctx context.Context, tx domain.Transaction, usage []domain.InventoryAdjustment) (*domain.Transaction, error)
	VoidTransaction(ctx context.Context, id string, reason string, at time.Time, restock []domain.InventoryAdjustment) (*domain.Transaction, error)

	ListExpenses(ctx context.Context, since time.Time) ([]domain.Expense, error)
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)

	ListProduction(ctx context.Context, since time.Time) ([]domain.ProductionRecord, error)
	CreateProduction(ctx context.Context, rec domain.ProductionRecord, adjustments []domain.InventoryAdjustment) (*domain.ProductionRecord, error)

	ListPurchases(ctx context.Context, since time.Time) ([]domain.Purchase, error)
	CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)

	// ListTransfers includes transfers created or responded to at or after since.
	ListTransfers(ctx context.Context, since time.Time) ([]domain.StockTransfer, error)
	GetTransfer(ctx context.Context, id string) (*domain.StockTransfer, error)
	CreateTransfer(ctx context.Context, transfer domain.StockTransfer, sourceItemID string) (*domain.StockTransfer, error)
	// RespondTransfer settles a pending transfer. On acceptance dest is
	// credited with the transfer quantity, or inserted holding exactly that
	// quantity when no item with its ID exists yet.
	RespondTransfer(ctx context.Context, id string, status domain.TransferStatus, by string, at time.Time, dest *domain.InventoryItem) (*domain.StockTransfer, error)

	ListInventory(ctx context.Context) ([]domain.InventoryItem, error)
	CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)

	ListClosings(ctx context.Context, since time.Time) ([]domain.DailyClosing, error)
	GetClosing(ctx context.Context, id string) (*domain.DailyClosing, error)
	CreateClosing(ctx context.Context, closing domain.DailyClosing) (*domain.DailyClosing, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, outletID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
