package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"outletpos/backend/internal/domain"
	"outletpos/backend/internal/store"
	"outletpos/backend/internal/xid"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate creates missing tables. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListOutlets(ctx context.Context) ([]domain.Outlet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM outlets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	outlets := make([]domain.Outlet, 0, 8)
	for rows.Next() {
		var o domain.Outlet
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, err
		}
		outlets = append(outlets, o)
	}
	return outlets, rows.Err()
}

const staffColumns = `id, username, name, role, outlet_id, shift_start, shift_end, active, password_hash, created_at`

func scanStaff(row interface{ Scan(...any) error }) (*domain.Staff, error) {
	var (
		st         domain.Staff
		start, end sql.NullString
	)
	if err := row.Scan(&st.ID, &st.Username, &st.Name, &st.Role, &st.OutletID, &start, &end, &st.Active, &st.PasswordHash, &st.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if st.ShiftStart, err = parseClock(start); err != nil {
		return nil, err
	}
	if st.ShiftEnd, err = parseClock(end); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) GetStaffByID(ctx context.Context, id string) (*domain.Staff, error) {
	st, err := scanStaff(s.db.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return st, err
}

func (s *Store) GetStaffByUsername(ctx context.Context, username string) (*domain.Staff, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	st, err := scanStaff(s.db.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE username = $1`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return st, err
}

func (s *Store) ListStaff(ctx context.Context) ([]domain.Staff, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+staffColumns+` FROM staff ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	staff := make([]domain.Staff, 0, 16)
	for rows.Next() {
		st, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		staff = append(staff, *st)
	}
	return staff, rows.Err()
}

func (s *Store) CreateStaff(ctx context.Context, staff domain.Staff) error {
	username := strings.ToLower(strings.TrimSpace(staff.Username))
	if username == "" || strings.TrimSpace(staff.PasswordHash) == "" || staff.OutletID == "" {
		return store.ErrInvalidTransaction
	}
	if staff.ID == "" {
		staff.ID = xid.New("staff")
	}
	if staff.Role == "" {
		staff.Role = domain.RoleCashier
	}
	if staff.CreatedAt.IsZero() {
		staff.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff (`+staffColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,true,$8,$9)
	`, staff.ID, username, staff.Name, staff.Role, staff.OutletID,
		nullClock(staff.ShiftStart), nullClock(staff.ShiftEnd), staff.PasswordHash, staff.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) UpdateStaffPassword(ctx context.Context, username string, passwordHash string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(passwordHash) == "" {
		return store.ErrInvalidTransaction
	}
	res, err := s.db.ExecContext(ctx, `UPDATE staff SET password_hash = $2 WHERE username = $1`, username, passwordHash)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price_cents, active, recipe
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProducts(rows)
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price_cents, active, recipe
		FROM products
		WHERE active = true AND id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func scanProducts(rows *sql.Rows) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var (
			p      domain.Product
			recipe []byte
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.Active, &recipe); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(recipe, &p.Recipe); err != nil {
			return nil, fmt.Errorf("product %s recipe: %w", p.ID, err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) ListAttendance(ctx context.Context, since time.Time) ([]domain.Attendance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, staff_id, outlet_id, date, clock_in, clock_out
		FROM attendance
		WHERE $1::timestamptz IS NULL OR clock_in >= $1
		ORDER BY clock_in
	`, sinceArg(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.Attendance, 0, 32)
	for rows.Next() {
		var (
			a        domain.Attendance
			clockOut sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.StaffID, &a.OutletID, &a.Date, &a.ClockIn, &clockOut); err != nil {
			return nil, err
		}
		a.ClockOut = timePtr(clockOut)
		records = append(records, a)
	}
	return records, rows.Err()
}

func (s *Store) CreateAttendance(ctx context.Context, att domain.Attendance) (*domain.Attendance, error) {
	if att.StaffID == "" || att.OutletID == "" || att.Date == "" || att.ClockIn.IsZero() {
		return nil, store.ErrInvalidTransaction
	}
	if att.ID == "" {
		att.ID = xid.New("att")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance (id, staff_id, outlet_id, date, clock_in, clock_out)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, att.ID, att.StaffID, att.OutletID, att.Date, att.ClockIn, nullTime(att.ClockOut))
	if err != nil {
		return nil, err
	}
	return &att, nil
}

func (s *Store) UpdateAttendance(ctx context.Context, att domain.Attendance) (*domain.Attendance, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE attendance SET clock_in = $2, clock_out = $3
		WHERE id = $1
	`, att.ID, att.ClockIn, nullTime(att.ClockOut))
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return &att, nil
}

const transactionColumns = `id, outlet_id, cashier_id, items, total_cents, payment_method, status, created_at, voided_at, void_reason`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var (
		tx       domain.Transaction
		items    []byte
		voidedAt sql.NullTime
	)
	if err := row.Scan(&tx.ID, &tx.OutletID, &tx.CashierID, &items, &tx.TotalCents, &tx.PaymentMethod, &tx.Status, &tx.CreatedAt, &voidedAt, &tx.VoidReason); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &tx.Items); err != nil {
		return nil, fmt.Errorf("transaction %s items: %w", tx.ID, err)
	}
	tx.VoidedAt = timePtr(voidedAt)
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, since time.Time) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE $1::timestamptz IS NULL OR created_at >= $1
		ORDER BY created_at
	`, sinceArg(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, 128)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return tx, err
}

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction, usage []domain.InventoryAdjustment) (*domain.Transaction, error) {
	if len(tx.Items) == 0 || tx.OutletID == "" || tx.CashierID == "" {
		return nil, store.ErrInvalidTransaction
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
	items, err := json.Marshal(tx.Items)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(pgTx *sql.Tx) error {
		if err := applyAdjustments(ctx, pgTx, usage); err != nil {
			return err
		}
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transactions (`+transactionColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULL,'')
		`, tx.ID, tx.OutletID, tx.CashierID, items, tx.TotalCents, tx.PaymentMethod, tx.Status, tx.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) VoidTransaction(ctx context.Context, id string, reason string, at time.Time, restock []domain.InventoryAdjustment) (*domain.Transaction, error) {
	var voided *domain.Transaction
	err := s.inTx(ctx, func(pgTx *sql.Tx) error {
		tx, err := scanTransaction(pgTx.QueryRowContext(ctx, `
			SELECT `+transactionColumns+`
			FROM transactions
			WHERE id = $1
			FOR UPDATE
		`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if tx.Status != domain.TxStatusClosed {
			return store.ErrInvalidTransaction
		}

		if _, err := pgTx.ExecContext(ctx, `
			UPDATE transactions
			SET status = $2, void_reason = $3, voided_at = $4
			WHERE id = $1 AND status = $5
		`, id, domain.TxStatusVoided, reason, at, domain.TxStatusClosed); err != nil {
			return err
		}
		if err := applyAdjustments(ctx, pgTx, restock); err != nil {
			return err
		}

		tx.Status = domain.TxStatusVoided
		tx.VoidReason = reason
		tx.VoidedAt = &at
		voided = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return voided, nil
}

func (s *Store) ListExpenses(ctx context.Context, since time.Time) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, outlet_id, staff_id, type_id, amount_cents, notes, created_at
		FROM expenses
		WHERE $1::timestamptz IS NULL OR created_at >= $1
		ORDER BY created_at
	`, sinceArg(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 32)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.OutletID, &e.StaffID, &e.TypeID, &e.AmountCents, &e.Notes, &e.CreatedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.OutletID == "" || expense.StaffID == "" || expense.AmountCents < 1 {
		return nil, store.ErrInvalidTransaction
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, outlet_id, staff_id, type_id, amount_cents, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, expense.ID, expense.OutletID, expense.StaffID, expense.TypeID, expense.AmountCents, expense.Notes, expense.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

func (s *Store) ListProduction(ctx context.Context, since time.Time) ([]domain.ProductionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, outlet_id, staff_id, result_item_id, result_quantity, components, created_at
		FROM production_records
		WHERE $1::timestamptz IS NULL OR created_at >= $1
		ORDER BY created_at
	`, sinceArg(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.ProductionRecord, 0, 16)
	for rows.Next() {
		var (
			p          domain.ProductionRecord
			components []byte
		)
		if err := rows.Scan(&p.ID, &p.OutletID, &p.StaffID, &p.ResultItemID, &p.ResultQuantity, &components, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(components, &p.Components); err != nil {
			return nil, fmt.Errorf("production %s components: %w", p.ID, err)
		}
		records = append(records, p)
	}
	return records, rows.Err()
}

func (s *Store) CreateProduction(ctx context.Context, rec domain.ProductionRecord, adjustments []domain.InventoryAdjustment) (*domain.ProductionRecord, error) {
	if rec.OutletID == "" || rec.StaffID == "" || rec.ResultItemID == "" || !rec.ResultQuantity.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}
	if rec.ID == "" {
		rec.ID = xid.New("prod")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	components, err := json.Marshal(rec.Components)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(pgTx *sql.Tx) error {
		if err := applyAdjustments(ctx, pgTx, adjustments); err != nil {
			return err
		}
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO production_records (id, outlet_id, staff_id, result_item_id, result_quantity, components, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, rec.ID, rec.OutletID, rec.StaffID, rec.ResultItemID, rec.ResultQuantity, components, rec.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListPurchases(ctx context.Context, since time.Time) ([]domain.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, outlet_id, staff_id, inventory_item_id, quantity, unit_price_cents, created_at
		FROM purchases
		WHERE $1::timestamptz IS NULL OR created_at >= $1
		ORDER BY created_at
	`, sinceArg(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, 32)
	for rows.Next() {
		var p domain.Purchase
		if err := rows.Scan(&p.ID, &p.OutletID, &p.StaffID, &p.InventoryItemID, &p.Quantity, &p.UnitPriceCents, &p.CreatedAt); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if purchase.OutletID == "" || purchase.StaffID == "" || purchase.InventoryItemID == "" || !purchase.Quantity.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}
	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}

	err := s.inTx(ctx, func(pgTx *sql.Tx) error {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE inventory_items
			SET quantity = quantity + $3,
				cost_per_unit_cents = CASE WHEN $4::bigint > 0 THEN $4::bigint ELSE cost_per_unit_cents END
			WHERE id = $1 AND outlet_id = $2
		`, purchase.InventoryItemID, purchase.OutletID, purchase.Quantity, purchase.UnitPriceCents)
		if err != nil {
			return err
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO purchases (id, outlet_id, staff_id, inventory_item_id, quantity, unit_price_cents, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, purchase.ID, purchase.OutletID, purchase.StaffID, purchase.InventoryItemID, purchase.Quantity, purchase.UnitPriceCents, purchase.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

const transferColumns = `id, from_outlet_id, to_outlet_id, item_name, quantity, status, staff_id, created_at, responded_at, responded_by`

func scanTransfer(row interface{ Scan(...any) error }) (*domain.StockTransfer, error) {
	var (
		t           domain.StockTransfer
		respondedAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.FromOutletID, &t.ToOutletID, &t.ItemName, &t.Quantity, &t.Status, &t.StaffID, &t.CreatedAt, &respondedAt, &t.RespondedBy); err != nil {
		return nil, err
	}
	t.RespondedAt = timePtr(respondedAt)
	return &t, nil
}

func (s *Store) ListTransfers(ctx context.Context, since time.Time) ([]domain.StockTransfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transferColumns+`
		FROM stock_transfers
		WHERE $1::timestamptz IS NULL OR created_at >= $1 OR responded_at >= $1
		ORDER BY created_at
	`, sinceArg(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transfers := make([]domain.StockTransfer, 0, 16)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}

func (s *Store) GetTransfer(ctx context.Context, id string) (*domain.StockTransfer, error) {
	t, err := scanTransfer(s.db.QueryRowContext(ctx, `SELECT `+transferColumns+` FROM stock_transfers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return t, err
}

func (s *Store) CreateTransfer(ctx context.Context, transfer domain.StockTransfer, sourceItemID string) (*domain.StockTransfer, error) {
	if transfer.FromOutletID == "" || transfer.ToOutletID == "" || transfer.FromOutletID == transfer.ToOutletID || !transfer.Quantity.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}
	if transfer.ID == "" {
		transfer.ID = xid.New("trf")
	}
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now().UTC()
	}
	transfer.Status = domain.TransferPending

	err := s.inTx(ctx, func(pgTx *sql.Tx) error {
		err := pgTx.QueryRowContext(ctx, `
			UPDATE inventory_items
			SET quantity = quantity - $3
			WHERE id = $1 AND outlet_id = $2 AND quantity >= $3
			RETURNING name
		`, sourceItemID, transfer.FromOutletID, transfer.Quantity).Scan(&transfer.ItemName)
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := pgTx.QueryRowContext(ctx, `
				SELECT EXISTS (SELECT 1 FROM inventory_items WHERE id = $1 AND outlet_id = $2)
			`, sourceItemID, transfer.FromOutletID).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return store.ErrInsufficientStock
			}
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO stock_transfers (`+transferColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULL,'')
		`, transfer.ID, transfer.FromOutletID, transfer.ToOutletID, transfer.ItemName, transfer.Quantity, transfer.Status, transfer.StaffID, transfer.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (s *Store) RespondTransfer(ctx context.Context, id string, status domain.TransferStatus, by string, at time.Time, dest *domain.InventoryItem) (*domain.StockTransfer, error) {
	if status != domain.TransferAccepted && status != domain.TransferRejected {
		return nil, store.ErrInvalidTransaction
	}

	var settled *domain.StockTransfer
	err := s.inTx(ctx, func(pgTx *sql.Tx) error {
		t, err := scanTransfer(pgTx.QueryRowContext(ctx, `
			SELECT `+transferColumns+`
			FROM stock_transfers
			WHERE id = $1
			FOR UPDATE
		`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if t.Status != domain.TransferPending {
			return store.ErrInvalidTransaction
		}

		if status == domain.TransferAccepted {
			if dest == nil || dest.OutletID != t.ToOutletID {
				return store.ErrInvalidTransaction
			}
			destID := dest.ID
			if destID == "" {
				destID = xid.New("inv")
			}
			if _, err := pgTx.ExecContext(ctx, `
				INSERT INTO inventory_items (id, outlet_id, name, unit, quantity, cost_per_unit_cents, type)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
				ON CONFLICT (id) DO UPDATE SET quantity = inventory_items.quantity + EXCLUDED.quantity
			`, destID, dest.OutletID, dest.Name, dest.Unit, t.Quantity, dest.CostPerUnitCents, itemType(dest.Type)); err != nil {
				return err
			}
		}

		if _, err := pgTx.ExecContext(ctx, `
			UPDATE stock_transfers SET status = $2, responded_at = $3, responded_by = $4
			WHERE id = $1
		`, id, status, at, by); err != nil {
			return err
		}
		t.Status = status
		t.RespondedAt = &at
		t.RespondedBy = by
		settled = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

func (s *Store) ListInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, outlet_id, name, unit, quantity, cost_per_unit_cents, type
		FROM inventory_items
		ORDER BY outlet_id, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, 64)
	for rows.Next() {
		var item domain.InventoryItem
		if err := rows.Scan(&item.ID, &item.OutletID, &item.Name, &item.Unit, &item.Quantity, &item.CostPerUnitCents, &item.Type); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	if item.OutletID == "" || strings.TrimSpace(item.Name) == "" || item.Quantity.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}
	if item.ID == "" {
		item.ID = xid.New("inv")
	}
	item.Type = itemType(item.Type)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_items (id, outlet_id, name, unit, quantity, cost_per_unit_cents, type)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, item.ID, item.OutletID, item.Name, item.Unit, item.Quantity, item.CostPerUnitCents, item.Type)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	return &item, nil
}

const closingColumns = `id, outlet_id, staff_id, shift_name, day_key, window_start, closed_at,
	opening_balance_cents, total_sales_cash_cents, total_sales_qris_cents, total_expenses_cents,
	expected_cash_cents, actual_cash_cents, discrepancy_cents, notes, status, approved_by, approval_reason`

func scanClosing(row interface{ Scan(...any) error }) (*domain.DailyClosing, error) {
	var c domain.DailyClosing
	err := row.Scan(&c.ID, &c.OutletID, &c.StaffID, &c.ShiftName, &c.DayKey, &c.WindowStart, &c.ClosedAt,
		&c.OpeningBalanceCents, &c.TotalSalesCashCents, &c.TotalSalesQRISCents, &c.TotalExpensesCents,
		&c.ExpectedCashCents, &c.ActualCashCents, &c.DiscrepancyCents, &c.Notes, &c.Status, &c.ApprovedBy, &c.ApprovalReason)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListClosings(ctx context.Context, since time.Time) ([]domain.DailyClosing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+closingColumns+`
		FROM daily_closings
		WHERE $1::timestamptz IS NULL OR closed_at >= $1
		ORDER BY closed_at
	`, sinceArg(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	closings := make([]domain.DailyClosing, 0, 16)
	for rows.Next() {
		c, err := scanClosing(rows)
		if err != nil {
			return nil, err
		}
		closings = append(closings, *c)
	}
	return closings, rows.Err()
}

func (s *Store) GetClosing(ctx context.Context, id string) (*domain.DailyClosing, error) {
	c, err := scanClosing(s.db.QueryRowContext(ctx, `SELECT `+closingColumns+` FROM daily_closings WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return c, err
}

func (s *Store) CreateClosing(ctx context.Context, c domain.DailyClosing) (*domain.DailyClosing, error) {
	if c.StaffID == "" || c.OutletID == "" || c.DayKey == "" {
		return nil, store.ErrInvalidTransaction
	}
	if c.ID == "" {
		c.ID = xid.New("cls")
	}
	if c.ClosedAt.IsZero() {
		c.ClosedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_closings (`+closingColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, c.ID, c.OutletID, c.StaffID, c.ShiftName, c.DayKey, c.WindowStart, c.ClosedAt,
		c.OpeningBalanceCents, c.TotalSalesCashCents, c.TotalSalesQRISCents, c.TotalExpensesCents,
		c.ExpectedCashCents, c.ActualCashCents, c.DiscrepancyCents, c.Notes, c.Status, c.ApprovedBy, c.ApprovalReason)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateClosing
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, outlet_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.OutletID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, outletID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, outlet_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR outlet_id = $1) AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, outletID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.OutletID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := fn(pgTx); err != nil {
		return err
	}
	return pgTx.Commit()
}

// applyAdjustments adds each delta in place. Stock may go negative.
func applyAdjustments(ctx context.Context, pgTx *sql.Tx, adjustments []domain.InventoryAdjustment) error {
	for _, adj := range adjustments {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE inventory_items SET quantity = quantity + $2 WHERE id = $1
		`, adj.InventoryItemID, adj.Delta)
		if err != nil {
			return err
		}
		if err := requireAffected(res); err != nil {
			return fmt.Errorf("inventory item %s: %w", adj.InventoryItemID, err)
		}
	}
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func itemType(t domain.ItemType) domain.ItemType {
	if t == "" {
		return domain.ItemRaw
	}
	return t
}

func sinceArg(since time.Time) any {
	if since.IsZero() {
		return nil
	}
	return since
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time
	return &t
}

func nullClock(val *domain.ClockTime) any {
	if val == nil {
		return nil
	}
	return val.String()
}

func parseClock(val sql.NullString) (*domain.ClockTime, error) {
	if !val.Valid || val.String == "" {
		return nil, nil
	}
	c, err := domain.ParseClockTime(val.String)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
