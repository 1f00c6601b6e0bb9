// Package ledger reconstructs per-item inventory movement for a time window.
//
// There is no historical stock table: the live quantity is the end balance
// and the start balance is solved backward from the movements in the window.
package ledger

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"outletpos/backend/internal/domain"
)

var epsilon = decimal.New(1, -3)

type Input struct {
	OutletID     string
	StaffID      string
	Window       domain.Window
	Inventory    []domain.InventoryItem
	Transactions []domain.Transaction
	Production   []domain.ProductionRecord
	Purchases    []domain.Purchase
	Transfers    []domain.StockTransfer
}

type Row struct {
	ItemID          string          `json:"item_id"`
	ItemName        string          `json:"item_name"`
	Unit            string          `json:"unit"`
	Start           decimal.Decimal `json:"start"`
	TotalIn         decimal.Decimal `json:"total_in"`
	TotalOut        decimal.Decimal `json:"total_out"`
	End             decimal.Decimal `json:"end"`
	Purchased       decimal.Decimal `json:"purchased"`
	Produced        decimal.Decimal `json:"produced"`
	TransferIn      decimal.Decimal `json:"transfer_in"`
	SoldUsage       decimal.Decimal `json:"sold_usage"`
	ProductionUsage decimal.Decimal `json:"production_usage"`
	TransferOut     decimal.Decimal `json:"transfer_out"`
}

type movement struct {
	purchased, produced, transferIn         decimal.Decimal
	soldUsage, productionUsage, transferOut decimal.Decimal
}

// Build returns one row per outlet item touched inside the window, sorted by
// item name.
func Build(in Input) []Row {
	resolver := NewResolver(in.OutletID, in.Inventory)
	moves := make(map[string]*movement)
	at := func(id string) *movement {
		m, ok := moves[id]
		if !ok {
			m = &movement{}
			moves[id] = m
		}
		return m
	}

	for _, p := range in.Purchases {
		if p.OutletID != in.OutletID || p.StaffID != in.StaffID || !in.Window.Contains(p.CreatedAt) {
			continue
		}
		if _, ok := resolver.local[p.InventoryItemID]; !ok {
			continue
		}
		m := at(p.InventoryItemID)
		m.purchased = m.purchased.Add(p.Quantity)
	}

	for _, rec := range in.Production {
		if rec.OutletID != in.OutletID || rec.StaffID != in.StaffID || !in.Window.Contains(rec.CreatedAt) {
			continue
		}
		if _, ok := resolver.local[rec.ResultItemID]; ok {
			m := at(rec.ResultItemID)
			m.produced = m.produced.Add(rec.ResultQuantity)
		}
		for _, c := range rec.Components {
			item, ok := resolver.ResolveByIDThenName(c.InventoryItemID)
			if !ok {
				slog.Debug("ledger: unresolved production component", "record_id", rec.ID, "ref", c.InventoryItemID, "outlet_id", in.OutletID)
				continue
			}
			m := at(item.ID)
			m.productionUsage = m.productionUsage.Add(c.Quantity)
		}
	}

	for _, tx := range in.Transactions {
		if !CountsAsSale(tx, in.OutletID, in.StaffID, in.Window) {
			continue
		}
		for _, line := range tx.Items {
			qty := decimal.NewFromInt(int64(line.Quantity))
			for _, bom := range line.Product.Recipe {
				item, ok := resolver.ResolveByIDThenName(bom.InventoryItemID)
				if !ok {
					slog.Debug("ledger: unresolved recipe line", "transaction_id", tx.ID, "product_id", line.Product.ID, "ref", bom.InventoryItemID)
					continue
				}
				m := at(item.ID)
				m.soldUsage = m.soldUsage.Add(bom.Quantity.Mul(qty))
			}
		}
	}

	for _, t := range in.Transfers {
		// Inbound stock belongs to whoever accepted it at the destination.
		if t.ToOutletID == in.OutletID && t.Status == domain.TransferAccepted && t.RespondedBy == in.StaffID && in.Window.Contains(t.ReceivedAt()) {
			if item, ok := resolver.ByName(t.ItemName); ok {
				m := at(item.ID)
				m.transferIn = m.transferIn.Add(t.Quantity)
			}
		}
		// Source stock leaves at send time, whatever the eventual status.
		if t.FromOutletID == in.OutletID && t.StaffID == in.StaffID && in.Window.Contains(t.CreatedAt) {
			if item, ok := resolver.ByName(t.ItemName); ok {
				m := at(item.ID)
				m.transferOut = m.transferOut.Add(t.Quantity)
			}
		}
	}

	rows := make([]Row, 0, len(moves))
	for id, m := range moves {
		item := resolver.local[id]
		row := newRow(item, m)
		if !touched(row) {
			continue
		}
		rows = append(rows, row)
	}
	slices.SortFunc(rows, func(a, b Row) int {
		if c := strings.Compare(NameKey(a.ItemName), NameKey(b.ItemName)); c != 0 {
			return c
		}
		return strings.Compare(a.ItemID, b.ItemID)
	})
	return rows
}

func newRow(item domain.InventoryItem, m *movement) Row {
	totalIn := m.purchased.Add(m.produced).Add(m.transferIn)
	totalOut := m.soldUsage.Add(m.productionUsage).Add(m.transferOut)
	end := item.Quantity
	return Row{
		ItemID:          item.ID,
		ItemName:        item.Name,
		Unit:            item.Unit,
		Start:           end.Sub(totalIn).Add(totalOut),
		TotalIn:         totalIn,
		TotalOut:        totalOut,
		End:             end,
		Purchased:       m.purchased,
		Produced:        m.produced,
		TransferIn:      m.transferIn,
		SoldUsage:       m.soldUsage,
		ProductionUsage: m.productionUsage,
		TransferOut:     m.transferOut,
	}
}

func touched(row Row) bool {
	return row.TotalIn.IsPositive() || row.TotalOut.IsPositive() || row.Start.Sub(row.End).Abs().GreaterThan(epsilon)
}

// CountsAsSale reports whether tx belongs to the staff member's shift sales.
func CountsAsSale(tx domain.Transaction, outletID, staffID string, window domain.Window) bool {
	return tx.Status == domain.TxStatusClosed &&
		tx.OutletID == outletID &&
		tx.CashierID == staffID &&
		window.Contains(tx.CreatedAt)
}

// Usage returns the stock deductions (negative deltas) a cart causes at the
// resolver's outlet. References that do not resolve are skipped.
func Usage(resolver *Resolver, lines []domain.TransactionLine) []domain.InventoryAdjustment {
	totals := make(map[string]decimal.Decimal)
	order := make([]string, 0)
	for _, line := range lines {
		qty := decimal.NewFromInt(int64(line.Quantity))
		for _, bom := range line.Product.Recipe {
			item, ok := resolver.ResolveByIDThenName(bom.InventoryItemID)
			if !ok {
				continue
			}
			if _, seen := totals[item.ID]; !seen {
				order = append(order, item.ID)
			}
			totals[item.ID] = totals[item.ID].Add(bom.Quantity.Mul(qty))
		}
	}
	adjustments := make([]domain.InventoryAdjustment, 0, len(order))
	for _, id := range order {
		adjustments = append(adjustments, domain.InventoryAdjustment{InventoryItemID: id, Delta: totals[id].Neg()})
	}
	return adjustments
}
