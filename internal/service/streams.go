package service

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"outletpos/backend/internal/closing"
	"outletpos/backend/internal/domain"
	"outletpos/backend/internal/ledger"
	"outletpos/backend/internal/store"
	"outletpos/backend/internal/xid"
)

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.Transaction, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	outletID, err := resolveOutlet(actor, req.OutletID)
	if err != nil {
		return nil, err
	}

	items := normalizeItems(req.Items)
	if len(items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	for _, item := range items {
		if item.Quantity > maxLineQuantity {
			return nil, fmt.Errorf("product %s quantity %d: %w", item.ProductID, item.Quantity, store.ErrInvalidTransaction)
		}
	}
	method := req.PaymentMethod
	if method == "" {
		method = domain.PaymentCash
	}
	if !isSupportedPaymentMethod(method) {
		return nil, store.ErrInvalidTransaction
	}

	now := s.now()
	if err := s.ensureOpen(ctx, actor.StaffID, outletID); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.TransactionLine, 0, len(items))
	var total int64
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok || !product.Active {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		lines = append(lines, domain.TransactionLine{Product: product, Quantity: item.Quantity})
		lineTotal, ok := mulCents(product.PriceCents, int64(item.Quantity))
		if ok {
			total, ok = addCents(total, lineTotal)
		}
		if !ok {
			return nil, fmt.Errorf("cart total out of range: %w", store.ErrInvalidTransaction)
		}
	}

	resolver, err := s.resolver(ctx, outletID)
	if err != nil {
		return nil, err
	}
	s.logUnresolved(ctx, resolver, lines)

	created, err := s.repo.CreateTransaction(ctx, domain.Transaction{
		ID:            xid.New("tx"),
		OutletID:      outletID,
		CashierID:     actor.StaffID,
		Items:         lines,
		TotalCents:    total,
		PaymentMethod: method,
		Status:        domain.TxStatusClosed,
		CreatedAt:     now,
	}, ledger.Usage(resolver, lines))
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, outletID, "transaction.create", "transaction", created.ID, fmt.Sprintf("total=%d method=%s", created.TotalCents, created.PaymentMethod))
	return created, nil
}

// VoidTransaction restocks the recipe usage. A closing that already counted
// the sale keeps its stored totals.
func (s *Service) VoidTransaction(ctx context.Context, id string, req domain.VoidTransactionRequest) (*domain.Transaction, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanApprove() {
		return nil, ErrForbidden
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, store.ErrInvalidTransaction
	}

	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TxStatusClosed {
		return nil, store.ErrInvalidTransaction
	}

	resolver, err := s.resolver(ctx, tx.OutletID)
	if err != nil {
		return nil, err
	}
	usage := ledger.Usage(resolver, tx.Items)
	restock := make([]domain.InventoryAdjustment, 0, len(usage))
	for _, adj := range usage {
		restock = append(restock, domain.InventoryAdjustment{InventoryItemID: adj.InventoryItemID, Delta: adj.Delta.Neg()})
	}

	voided, err := s.repo.VoidTransaction(ctx, id, reason, s.now(), restock)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, voided.OutletID, "transaction.void", "transaction", voided.ID, "reason="+reason)
	return voided, nil
}

func (s *Service) RecordExpense(ctx context.Context, req domain.ExpenseRequest) (*domain.Expense, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	outletID, err := resolveOutlet(actor, req.OutletID)
	if err != nil {
		return nil, err
	}
	if req.AmountCents < 1 {
		return nil, store.ErrInvalidTransaction
	}
	if err := s.ensureOpen(ctx, actor.StaffID, outletID); err != nil {
		return nil, err
	}

	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		ID:          xid.New("exp"),
		OutletID:    outletID,
		StaffID:     actor.StaffID,
		TypeID:      strings.TrimSpace(req.TypeID),
		AmountCents: req.AmountCents,
		Notes:       strings.TrimSpace(req.Notes),
		CreatedAt:   s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, outletID, "expense.create", "expense", created.ID, fmt.Sprintf("amount=%d", created.AmountCents))
	return created, nil
}

// RecordProduction consumes the components and yields the result item in
// one atomic adjustment set.
func (s *Service) RecordProduction(ctx context.Context, req domain.ProductionRequest) (*domain.ProductionRecord, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	outletID, err := resolveOutlet(actor, req.OutletID)
	if err != nil {
		return nil, err
	}
	if !req.ResultQuantity.IsPositive() || len(req.Components) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	resolver, err := s.resolver(ctx, outletID)
	if err != nil {
		return nil, err
	}
	result, ok := resolver.ResolveByIDThenName(req.ResultItemID)
	if !ok {
		return nil, fmt.Errorf("result item %s: %w", req.ResultItemID, store.ErrNotFound)
	}

	components := make([]domain.ProductionComponent, 0, len(req.Components))
	adjustments := make([]domain.InventoryAdjustment, 0, len(req.Components)+1)
	for _, c := range req.Components {
		if !c.Quantity.IsPositive() {
			return nil, store.ErrInvalidTransaction
		}
		item, ok := resolver.ResolveByIDThenName(c.InventoryItemID)
		if !ok {
			return nil, fmt.Errorf("component %s: %w", c.InventoryItemID, store.ErrNotFound)
		}
		components = append(components, domain.ProductionComponent{InventoryItemID: item.ID, Quantity: c.Quantity})
		adjustments = append(adjustments, domain.InventoryAdjustment{InventoryItemID: item.ID, Delta: c.Quantity.Neg()})
	}
	adjustments = append(adjustments, domain.InventoryAdjustment{InventoryItemID: result.ID, Delta: req.ResultQuantity})

	created, err := s.repo.CreateProduction(ctx, domain.ProductionRecord{
		ID:             xid.New("prd"),
		OutletID:       outletID,
		StaffID:        actor.StaffID,
		ResultItemID:   result.ID,
		ResultQuantity: req.ResultQuantity,
		Components:     components,
		CreatedAt:      s.now(),
	}, adjustments)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, outletID, "production.create", "production", created.ID, fmt.Sprintf("result=%s qty=%s", result.Name, req.ResultQuantity))
	return created, nil
}

func (s *Service) RecordPurchase(ctx context.Context, req domain.PurchaseRequest) (*domain.Purchase, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	outletID, err := resolveOutlet(actor, req.OutletID)
	if err != nil {
		return nil, err
	}
	if !req.Quantity.IsPositive() || req.UnitPriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	resolver, err := s.resolver(ctx, outletID)
	if err != nil {
		return nil, err
	}
	item, ok := resolver.ResolveByIDThenName(req.InventoryItemID)
	if !ok {
		return nil, fmt.Errorf("inventory item %s: %w", req.InventoryItemID, store.ErrNotFound)
	}

	created, err := s.repo.CreatePurchase(ctx, domain.Purchase{
		ID:              xid.New("pur"),
		OutletID:        outletID,
		StaffID:         actor.StaffID,
		InventoryItemID: item.ID,
		Quantity:        req.Quantity,
		UnitPriceCents:  req.UnitPriceCents,
		CreatedAt:       s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, outletID, "purchase.create", "purchase", created.ID, fmt.Sprintf("item=%s qty=%s", item.Name, req.Quantity))
	return created, nil
}

// CreateTransfer takes the stock out of the source outlet immediately; the
// destination only gains it on acceptance.
func (s *Service) CreateTransfer(ctx context.Context, req domain.TransferRequest) (*domain.StockTransfer, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	fromOutletID, err := resolveOutlet(actor, req.FromOutletID)
	if err != nil {
		return nil, err
	}
	toOutletID := strings.TrimSpace(req.ToOutletID)
	if toOutletID == "" || toOutletID == fromOutletID || !req.Quantity.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}

	resolver, err := s.resolver(ctx, fromOutletID)
	if err != nil {
		return nil, err
	}
	source, ok := resolver.ByName(req.ItemName)
	if !ok {
		return nil, fmt.Errorf("item %q at %s: %w", req.ItemName, fromOutletID, store.ErrNotFound)
	}

	created, err := s.repo.CreateTransfer(ctx, domain.StockTransfer{
		ID:           xid.New("trf"),
		FromOutletID: fromOutletID,
		ToOutletID:   toOutletID,
		ItemName:     source.Name,
		Quantity:     req.Quantity,
		StaffID:      actor.StaffID,
		CreatedAt:    s.now(),
	}, source.ID)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, fromOutletID, "transfer.create", "transfer", created.ID, fmt.Sprintf("to=%s item=%s qty=%s", toOutletID, created.ItemName, created.Quantity))
	return created, nil
}

// RespondTransfer settles a pending transfer at the destination. Accepted
// stock lands on the destination item with the same name, which is created
// from the source item when the destination has none.
func (s *Service) RespondTransfer(ctx context.Context, id string, req domain.TransferRespondRequest) (*domain.StockTransfer, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	transfer, err := s.repo.GetTransfer(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := resolveOutlet(actor, transfer.ToOutletID); err != nil {
		return nil, err
	}
	if transfer.Status != domain.TransferPending {
		return nil, store.ErrInvalidTransaction
	}

	status := domain.TransferRejected
	var dest *domain.InventoryItem
	if req.Accept {
		status = domain.TransferAccepted
		items, err := s.repo.ListInventory(ctx)
		if err != nil {
			return nil, err
		}
		target, ok := ledger.NewResolver(transfer.ToOutletID, items).ByName(transfer.ItemName)
		if !ok {
			target = domain.InventoryItem{
				ID:       xid.New("inv"),
				OutletID: transfer.ToOutletID,
				Name:     transfer.ItemName,
				Type:     domain.ItemRaw,
			}
			if template, found := ledger.NewResolver(transfer.FromOutletID, items).ByName(transfer.ItemName); found {
				target.Unit = template.Unit
				target.CostPerUnitCents = template.CostPerUnitCents
				target.Type = template.Type
			}
		}
		dest = &target
	}

	settled, err := s.repo.RespondTransfer(ctx, id, status, actor.StaffID, s.now(), dest)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, settled.ToOutletID, "transfer."+string(status), "transfer", settled.ID, fmt.Sprintf("item=%s qty=%s", settled.ItemName, settled.Quantity))
	return settled, nil
}

func (s *Service) ListInventory(ctx context.Context, outletID string) ([]domain.InventoryItem, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	outletID, err = resolveOutlet(actor, outletID)
	if err != nil {
		return nil, err
	}
	resolver, err := s.resolver(ctx, outletID)
	if err != nil {
		return nil, err
	}
	return resolver.Items(), nil
}

func (s *Service) resolver(ctx context.Context, outletID string) (*ledger.Resolver, error) {
	items, err := s.repo.ListInventory(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.NewResolver(outletID, items), nil
}

func (s *Service) ensureOpen(ctx context.Context, staffID, outletID string) error {
	closed, err := s.IsShiftClosed(ctx, staffID, outletID, s.dayKey(s.now()))
	if err != nil {
		return err
	}
	if closed {
		return closing.ErrAlreadyClosed
	}
	return nil
}

func (s *Service) logUnresolved(ctx context.Context, resolver *ledger.Resolver, lines []domain.TransactionLine) {
	for _, line := range lines {
		for _, bom := range line.Product.Recipe {
			if _, ok := resolver.ResolveByIDThenName(bom.InventoryItemID); !ok {
				s.log.DebugContext(ctx, "recipe line does not resolve at outlet", "product_id", line.Product.ID, "ref", bom.InventoryItemID)
			}
		}
	}
}

// maxLineQuantity bounds a single cart line after merging duplicates.
const maxLineQuantity = 10000

func normalizeItems(items []domain.CartItem) []domain.CartItem {
	agg := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" || item.Quantity < 1 {
			continue
		}
		if _, seen := agg[id]; !seen {
			order = append(order, id)
		}
		// Saturate so merging can never wrap; the cap check rejects it.
		if item.Quantity > maxLineQuantity || agg[id] > maxLineQuantity-item.Quantity {
			agg[id] = maxLineQuantity + 1
			continue
		}
		agg[id] += item.Quantity
	}

	normalized := make([]domain.CartItem, 0, len(order))
	for _, id := range order {
		normalized = append(normalized, domain.CartItem{ProductID: id, Quantity: agg[id]})
	}
	return normalized
}

func mulCents(cents, qty int64) (int64, bool) {
	if cents == 0 || qty == 0 {
		return 0, true
	}
	if cents < 0 || qty < 0 || cents > math.MaxInt64/qty {
		return 0, false
	}
	return cents * qty, true
}

func addCents(a, b int64) (int64, bool) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, false
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, false
	}
	return a + b, true
}

var supportedPaymentMethods = []domain.PaymentMethod{
	domain.PaymentCash,
	domain.PaymentQRIS,
	domain.PaymentCard,
	domain.PaymentTransfer,
}

func isSupportedPaymentMethod(method domain.PaymentMethod) bool {
	return slices.Contains(supportedPaymentMethods, method)
}
