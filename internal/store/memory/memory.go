package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"outletpos/backend/internal/domain"
	"outletpos/backend/internal/store"
	"outletpos/backend/internal/xid"
)

type Store struct {
	mu           sync.RWMutex
	outlets      []domain.Outlet
	staffByID    map[string]domain.Staff
	products     map[string]domain.Product
	inventory    map[string]domain.InventoryItem
	attendance   []domain.Attendance
	transactions []domain.Transaction
	expenses     []domain.Expense
	production   []domain.ProductionRecord
	purchases    []domain.Purchase
	transfers    []domain.StockTransfer
	closings     []domain.DailyClosing
	auditLogs    []domain.AuditLog
}

const (
	OutletCentral = "outlet-central"
	OutletKemang  = "outlet-kemang"
)

// seedStaff builds the initial staff accounts for dev/demo mode.
// Passwords are read from SEED_OWNER_PASSWORD, SEED_MANAGER_PASSWORD and
// SEED_CASHIER_PASSWORD. When unset, dev defaults are used with a warning.
// The PostgreSQL store never uses these.
func seedStaff() map[string]domain.Staff {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		slog.Warn("memory store using default dev credentials; set SEED_OWNER_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	morningStart := domain.ClockTime{Hour: 10}
	morningEnd := domain.ClockTime{Hour: 15}
	nightStart := domain.ClockTime{Hour: 15}
	nightEnd := domain.ClockTime{Hour: 22}

	now := time.Now().UTC()
	staff := map[string]domain.Staff{}
	for _, s := range []struct {
		id       string
		username string
		name     string
		password string
		role     domain.Role
		outletID string
		start    *domain.ClockTime
		end      *domain.ClockTime
	}{
		{"staff-owner", "owner", "Rina Owner", ownerPwd, domain.RoleOwner, OutletCentral, nil, nil},
		{"staff-manager", "manager", "Dimas Manager", managerPwd, domain.RoleManager, OutletKemang, nil, nil},
		{"staff-cashier", "cashier", "Sari Cashier", cashierPwd, domain.RoleCashier, OutletKemang, &morningStart, &morningEnd},
		{"staff-cashier-night", "cashier.night", "Bayu Cashier", cashierPwd, domain.RoleCashier, OutletKemang, &nightStart, &nightEnd},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(s.password), bcrypt.DefaultCost)
		if err != nil {
			panic(fmt.Sprintf("memory store: hash seed password for %s: %v", s.username, err))
		}
		staff[s.id] = domain.Staff{
			ID:           s.id,
			Username:     s.username,
			Name:         s.name,
			Role:         s.role,
			OutletID:     s.outletID,
			ShiftStart:   s.start,
			ShiftEnd:     s.end,
			Active:       true,
			PasswordHash: string(hash),
			CreatedAt:    now,
		}
	}
	return staff
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func qty(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// NewSeeded returns a store holding a central kitchen, whose inventory rows
// act as recipe templates, and one outlet with its own stock.
func NewSeeded() *Store {
	items := []domain.InventoryItem{
		{ID: "inv-central-coffee", OutletID: OutletCentral, Name: "Coffee Beans", Unit: "g", Quantity: qty(20000), CostPerUnitCents: 250, Type: domain.ItemRaw},
		{ID: "inv-central-milk", OutletID: OutletCentral, Name: "Fresh Milk", Unit: "ml", Quantity: qty(40000), CostPerUnitCents: 22, Type: domain.ItemRaw},
		{ID: "inv-central-sugar", OutletID: OutletCentral, Name: "Palm Sugar", Unit: "g", Quantity: qty(10000), CostPerUnitCents: 40, Type: domain.ItemRaw},
		{ID: "inv-central-syrup", OutletID: OutletCentral, Name: "Palm Syrup", Unit: "ml", Quantity: qty(5000), CostPerUnitCents: 60, Type: domain.ItemWIP},
		{ID: "inv-central-cups", OutletID: OutletCentral, Name: "Cups", Unit: "pcs", Quantity: qty(2000), CostPerUnitCents: 900, Type: domain.ItemRaw},
		{ID: "inv-kemang-coffee", OutletID: OutletKemang, Name: "Coffee Beans", Unit: "g", Quantity: qty(3000), CostPerUnitCents: 250, Type: domain.ItemRaw},
		{ID: "inv-kemang-milk", OutletID: OutletKemang, Name: "Fresh Milk", Unit: "ml", Quantity: qty(8000), CostPerUnitCents: 22, Type: domain.ItemRaw},
		{ID: "inv-kemang-sugar", OutletID: OutletKemang, Name: "Palm Sugar", Unit: "g", Quantity: qty(2000), CostPerUnitCents: 40, Type: domain.ItemRaw},
		{ID: "inv-kemang-syrup", OutletID: OutletKemang, Name: "Palm Syrup", Unit: "ml", Quantity: qty(1000), CostPerUnitCents: 60, Type: domain.ItemWIP},
		{ID: "inv-kemang-cups", OutletID: OutletKemang, Name: "Cups", Unit: "pcs", Quantity: qty(300), CostPerUnitCents: 900, Type: domain.ItemRaw},
	}
	products := []domain.Product{
		{ID: "prd-kopi-susu", Name: "Es Kopi Susu Gula Aren", Category: "coffee", PriceCents: 22000, Active: true, Recipe: []domain.BOMLine{
			{InventoryItemID: "inv-central-coffee", Quantity: qty(18)},
			{InventoryItemID: "inv-central-milk", Quantity: qty(150)},
			{InventoryItemID: "inv-central-syrup", Quantity: qty(20)},
			{InventoryItemID: "inv-central-cups", Quantity: qty(1)},
		}},
		{ID: "prd-americano", Name: "Americano", Category: "coffee", PriceCents: 18000, Active: true, Recipe: []domain.BOMLine{
			{InventoryItemID: "inv-central-coffee", Quantity: qty(18)},
			{InventoryItemID: "inv-central-cups", Quantity: qty(1)},
		}},
		{ID: "prd-fresh-milk", Name: "Iced Fresh Milk Aren", Category: "non-coffee", PriceCents: 15000, Active: true, Recipe: []domain.BOMLine{
			{InventoryItemID: "inv-central-milk", Quantity: qty(200)},
			{InventoryItemID: "inv-central-syrup", Quantity: qty(15)},
			{InventoryItemID: "inv-central-cups", Quantity: qty(1)},
		}},
	}

	s := &Store{
		outlets: []domain.Outlet{
			{ID: OutletCentral, Name: "Central Kitchen"},
			{ID: OutletKemang, Name: "Kemang"},
		},
		staffByID: seedStaff(),
		products:  make(map[string]domain.Product, len(products)),
		inventory: make(map[string]domain.InventoryItem, len(items)),
		auditLogs: make([]domain.AuditLog, 0, 128),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	for _, item := range items {
		s.inventory[item.ID] = item
	}
	return s
}

func (s *Store) ListOutlets(_ context.Context) ([]domain.Outlet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.outlets), nil
}

func (s *Store) GetStaffByID(_ context.Context, id string) (*domain.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	staff, ok := s.staffByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &staff, nil
}

func (s *Store) GetStaffByUsername(_ context.Context, username string) (*domain.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	username = strings.ToLower(strings.TrimSpace(username))
	for _, staff := range s.staffByID {
		if staff.Username == username {
			return &staff, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListStaff(_ context.Context) ([]domain.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	staff := make([]domain.Staff, 0, len(s.staffByID))
	for _, st := range s.staffByID {
		staff = append(staff, st)
	}
	slices.SortFunc(staff, func(a, b domain.Staff) int {
		return strings.Compare(a.Username, b.Username)
	})
	return staff, nil
}

func (s *Store) CreateStaff(_ context.Context, staff domain.Staff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(staff.Username))
	if username == "" || strings.TrimSpace(staff.PasswordHash) == "" || staff.OutletID == "" {
		return store.ErrInvalidTransaction
	}
	for _, existing := range s.staffByID {
		if existing.Username == username {
			return store.ErrInvalidTransaction
		}
	}
	if staff.ID == "" {
		staff.ID = xid.New("staff")
	}
	staff.Username = username
	if staff.Role == "" {
		staff.Role = domain.RoleCashier
	}
	if staff.CreatedAt.IsZero() {
		staff.CreatedAt = time.Now().UTC()
	}
	staff.Active = true
	s.staffByID[staff.ID] = staff
	return nil
}

func (s *Store) UpdateStaffPassword(_ context.Context, username string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(passwordHash) == "" {
		return store.ErrInvalidTransaction
	}
	for id, staff := range s.staffByID {
		if staff.Username == username {
			staff.PasswordHash = passwordHash
			s.staffByID[id] = staff
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok && p.Active {
			result[id] = cloneProduct(p)
		}
	}
	return result, nil
}

func (s *Store) ListAttendance(_ context.Context, since time.Time) ([]domain.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return filterSince(s.attendance, since, func(a domain.Attendance) time.Time { return a.ClockIn }), nil
}

func (s *Store) CreateAttendance(_ context.Context, att domain.Attendance) (*domain.Attendance, error) {
	if att.StaffID == "" || att.OutletID == "" || att.Date == "" || att.ClockIn.IsZero() {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if att.ID == "" {
		att.ID = xid.New("att")
	}
	s.attendance = append(s.attendance, att)
	return &att, nil
}

func (s *Store) UpdateAttendance(_ context.Context, att domain.Attendance) (*domain.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.attendance {
		if s.attendance[i].ID == att.ID {
			s.attendance[i] = att
			return &att, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListTransactions(_ context.Context, since time.Time) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := filterSince(s.transactions, since, func(tx domain.Transaction) time.Time { return tx.CreatedAt })
	for i := range result {
		result[i] = cloneTransaction(result[i])
	}
	return result, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.transactions {
		if tx.ID == id {
			dup := cloneTransaction(tx)
			return &dup, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction, usage []domain.InventoryAdjustment) (*domain.Transaction, error) {
	if len(tx.Items) == 0 || tx.OutletID == "" || tx.CashierID == "" {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.applyLocked(usage); err != nil {
		return nil, err
	}
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if tx.Status == "" {
		tx.Status = domain.TxStatusClosed
	}
	s.transactions = append(s.transactions, cloneTransaction(tx))
	return &tx, nil
}

func (s *Store) VoidTransaction(_ context.Context, id string, reason string, at time.Time, restock []domain.InventoryAdjustment) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.transactions {
		tx := &s.transactions[i]
		if tx.ID != id {
			continue
		}
		if tx.Status != domain.TxStatusClosed {
			return nil, store.ErrInvalidTransaction
		}
		if err := s.applyLocked(restock); err != nil {
			return nil, err
		}
		tx.Status = domain.TxStatusVoided
		tx.VoidReason = reason
		tx.VoidedAt = &at
		dup := cloneTransaction(*tx)
		return &dup, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListExpenses(_ context.Context, since time.Time) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return filterSince(s.expenses, since, func(e domain.Expense) time.Time { return e.CreatedAt }), nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.OutletID == "" || expense.StaffID == "" || expense.AmountCents < 1 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	s.expenses = append(s.expenses, expense)
	return &expense, nil
}

func (s *Store) ListProduction(_ context.Context, since time.Time) ([]domain.ProductionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := filterSince(s.production, since, func(p domain.ProductionRecord) time.Time { return p.CreatedAt })
	for i := range result {
		result[i].Components = slices.Clone(result[i].Components)
	}
	return result, nil
}

func (s *Store) CreateProduction(_ context.Context, rec domain.ProductionRecord, adjustments []domain.InventoryAdjustment) (*domain.ProductionRecord, error) {
	if rec.OutletID == "" || rec.StaffID == "" || rec.ResultItemID == "" || !rec.ResultQuantity.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.applyLocked(adjustments); err != nil {
		return nil, err
	}
	if rec.ID == "" {
		rec.ID = xid.New("prod")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Components = slices.Clone(rec.Components)
	s.production = append(s.production, rec)
	return &rec, nil
}

func (s *Store) ListPurchases(_ context.Context, since time.Time) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return filterSince(s.purchases, since, func(p domain.Purchase) time.Time { return p.CreatedAt }), nil
}

func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if purchase.OutletID == "" || purchase.StaffID == "" || purchase.InventoryItemID == "" || !purchase.Quantity.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.inventory[purchase.InventoryItemID]
	if !ok || item.OutletID != purchase.OutletID {
		return nil, store.ErrNotFound
	}
	item.Quantity = item.Quantity.Add(purchase.Quantity)
	if purchase.UnitPriceCents > 0 {
		item.CostPerUnitCents = purchase.UnitPriceCents
	}
	s.inventory[item.ID] = item

	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}
	s.purchases = append(s.purchases, purchase)
	return &purchase, nil
}

func (s *Store) ListTransfers(_ context.Context, since time.Time) ([]domain.StockTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockTransfer, 0, len(s.transfers))
	for _, t := range s.transfers {
		if !since.IsZero() && t.CreatedAt.Before(since) && (t.RespondedAt == nil || t.RespondedAt.Before(since)) {
			continue
		}
		result = append(result, t)
	}
	return result, nil
}

func (s *Store) GetTransfer(_ context.Context, id string) (*domain.StockTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.transfers {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateTransfer(_ context.Context, transfer domain.StockTransfer, sourceItemID string) (*domain.StockTransfer, error) {
	if transfer.FromOutletID == "" || transfer.ToOutletID == "" || transfer.FromOutletID == transfer.ToOutletID || !transfer.Quantity.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	source, ok := s.inventory[sourceItemID]
	if !ok || source.OutletID != transfer.FromOutletID {
		return nil, store.ErrNotFound
	}
	if source.Quantity.LessThan(transfer.Quantity) {
		return nil, store.ErrInsufficientStock
	}
	source.Quantity = source.Quantity.Sub(transfer.Quantity)
	s.inventory[source.ID] = source

	if transfer.ID == "" {
		transfer.ID = xid.New("trf")
	}
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now().UTC()
	}
	transfer.ItemName = source.Name
	transfer.Status = domain.TransferPending
	s.transfers = append(s.transfers, transfer)
	return &transfer, nil
}

func (s *Store) RespondTransfer(_ context.Context, id string, status domain.TransferStatus, by string, at time.Time, dest *domain.InventoryItem) (*domain.StockTransfer, error) {
	if status != domain.TransferAccepted && status != domain.TransferRejected {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.transfers, func(t domain.StockTransfer) bool { return t.ID == id })
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	t := &s.transfers[idx]
	if t.Status != domain.TransferPending {
		return nil, store.ErrInvalidTransaction
	}

	if status == domain.TransferAccepted {
		if dest == nil || dest.OutletID != t.ToOutletID {
			return nil, store.ErrInvalidTransaction
		}
		if existing, ok := s.inventory[dest.ID]; ok {
			existing.Quantity = existing.Quantity.Add(t.Quantity)
			s.inventory[existing.ID] = existing
		} else {
			item := *dest
			if item.ID == "" {
				item.ID = xid.New("inv")
			}
			item.Quantity = t.Quantity
			s.inventory[item.ID] = item
		}
	}

	t.Status = status
	t.RespondedAt = &at
	t.RespondedBy = by
	dup := *t
	return &dup, nil
}

func (s *Store) ListInventory(_ context.Context) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.InventoryItem, 0, len(s.inventory))
	for _, item := range s.inventory {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.InventoryItem) int {
		if a.OutletID == b.OutletID {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.OutletID, b.OutletID)
	})
	return items, nil
}

func (s *Store) CreateInventoryItem(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	if item.OutletID == "" || strings.TrimSpace(item.Name) == "" || item.Quantity.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = xid.New("inv")
	}
	if _, exists := s.inventory[item.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	if item.Type == "" {
		item.Type = domain.ItemRaw
	}
	s.inventory[item.ID] = item
	return &item, nil
}

func (s *Store) ListClosings(_ context.Context, since time.Time) ([]domain.DailyClosing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return filterSince(s.closings, since, func(c domain.DailyClosing) time.Time { return c.ClosedAt }), nil
}

func (s *Store) GetClosing(_ context.Context, id string) (*domain.DailyClosing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.closings {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateClosing(_ context.Context, c domain.DailyClosing) (*domain.DailyClosing, error) {
	if c.StaffID == "" || c.OutletID == "" || c.DayKey == "" {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.closings {
		if existing.StaffID == c.StaffID && existing.OutletID == c.OutletID && existing.DayKey == c.DayKey {
			return nil, store.ErrDuplicateClosing
		}
	}
	if c.ID == "" {
		c.ID = xid.New("cls")
	}
	if c.ClosedAt.IsZero() {
		c.ClosedAt = time.Now().UTC()
	}
	s.closings = append(s.closings, c)
	return &c, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, outletID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if outletID != "" && entry.OutletID != outletID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// applyLocked validates every adjustment before applying any. Stock may go
// negative; a sale is never refused for bookkeeping lag.
func (s *Store) applyLocked(adjustments []domain.InventoryAdjustment) error {
	for _, adj := range adjustments {
		if _, ok := s.inventory[adj.InventoryItemID]; !ok {
			return fmt.Errorf("inventory item %s: %w", adj.InventoryItemID, store.ErrNotFound)
		}
	}
	for _, adj := range adjustments {
		item := s.inventory[adj.InventoryItemID]
		item.Quantity = item.Quantity.Add(adj.Delta)
		s.inventory[item.ID] = item
	}
	return nil
}

func filterSince[T any](records []T, since time.Time, at func(T) time.Time) []T {
	result := make([]T, 0, len(records))
	for _, rec := range records {
		if !since.IsZero() && at(rec).Before(since) {
			continue
		}
		result = append(result, rec)
	}
	return result
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	dup.Recipe = slices.Clone(src.Recipe)
	return dup
}

func cloneTransaction(src domain.Transaction) domain.Transaction {
	dup := src
	dup.Items = make([]domain.TransactionLine, len(src.Items))
	for i, line := range src.Items {
		dup.Items[i] = domain.TransactionLine{Product: cloneProduct(line.Product), Quantity: line.Quantity}
	}
	return dup
}
