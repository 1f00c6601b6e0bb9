package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outletpos/backend/internal/domain"
)

var (
	shiftStart = time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	shiftEnd   = time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
)

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func inventory() []domain.InventoryItem {
	return []domain.InventoryItem{
		// template rows authored at the central kitchen
		{ID: "ck-coffee", OutletID: "central", Name: "Coffee Beans", Unit: "g", Quantity: qty("5000")},
		{ID: "ck-milk", OutletID: "central", Name: "Fresh Milk", Unit: "ml", Quantity: qty("8000")},
		// the outlet's own rows
		{ID: "o1-coffee", OutletID: "outlet-1", Name: "coffee beans", Unit: "g", Quantity: qty("900")},
		{ID: "o1-milk", OutletID: "outlet-1", Name: "Fresh Milk", Unit: "ml", Quantity: qty("1500")},
		{ID: "o1-syrup", OutletID: "outlet-1", Name: "Palm Syrup", Unit: "ml", Quantity: qty("300"), Type: domain.ItemWIP},
		{ID: "o1-sugar", OutletID: "outlet-1", Name: "Palm Sugar", Unit: "g", Quantity: qty("700")},
		{ID: "o1-cups", OutletID: "outlet-1", Name: "Cups", Unit: "pcs", Quantity: qty("40")},
	}
}

var latte = domain.Product{
	ID:         "latte",
	Name:       "Iced Latte",
	PriceCents: 25000,
	Recipe: []domain.BOMLine{
		{InventoryItemID: "ck-coffee", Quantity: qty("18")},
		{InventoryItemID: "ck-milk", Quantity: qty("150")},
		{InventoryItemID: "o1-syrup", Quantity: qty("20.5")},
		{InventoryItemID: "ghost-item", Quantity: qty("1")},
	},
}

func baseInput() Input {
	return Input{
		OutletID:  "outlet-1",
		StaffID:   "staff-a",
		Window:    domain.Window{Start: shiftStart, End: shiftEnd},
		Inventory: inventory(),
		Transactions: []domain.Transaction{
			{ID: "tx-1", OutletID: "outlet-1", CashierID: "staff-a", Status: domain.TxStatusClosed, CreatedAt: shiftStart.Add(time.Hour),
				Items: []domain.TransactionLine{{Product: latte, Quantity: 2}}},
			{ID: "tx-voided", OutletID: "outlet-1", CashierID: "staff-a", Status: domain.TxStatusVoided, CreatedAt: shiftStart.Add(time.Hour),
				Items: []domain.TransactionLine{{Product: latte, Quantity: 10}}},
			{ID: "tx-other-staff", OutletID: "outlet-1", CashierID: "staff-b", Status: domain.TxStatusClosed, CreatedAt: shiftStart.Add(time.Hour),
				Items: []domain.TransactionLine{{Product: latte, Quantity: 10}}},
			{ID: "tx-after", OutletID: "outlet-1", CashierID: "staff-a", Status: domain.TxStatusClosed, CreatedAt: shiftEnd,
				Items: []domain.TransactionLine{{Product: latte, Quantity: 10}}},
		},
		Production: []domain.ProductionRecord{
			{ID: "prod-1", OutletID: "outlet-1", StaffID: "staff-a", ResultItemID: "o1-syrup", ResultQuantity: qty("500"), CreatedAt: shiftStart.Add(30 * time.Minute),
				Components: []domain.ProductionComponent{{InventoryItemID: "o1-sugar", Quantity: qty("250")}}},
		},
		Purchases: []domain.Purchase{
			{ID: "po-1", OutletID: "outlet-1", StaffID: "staff-a", InventoryItemID: "o1-milk", Quantity: qty("1000"), CreatedAt: shiftStart.Add(2 * time.Hour)},
			{ID: "po-early", OutletID: "outlet-1", StaffID: "staff-a", InventoryItemID: "o1-milk", Quantity: qty("1000"), CreatedAt: shiftStart.Add(-time.Minute)},
		},
		Transfers: []domain.StockTransfer{
			{ID: "tr-in", FromOutletID: "central", ToOutletID: "outlet-1", ItemName: "Coffee Beans", Quantity: qty("250"), Status: domain.TransferAccepted, StaffID: "ck-staff", CreatedAt: shiftStart.Add(time.Hour), RespondedBy: "staff-a"},
			{ID: "tr-in-pending", FromOutletID: "central", ToOutletID: "outlet-1", ItemName: "Coffee Beans", Quantity: qty("999"), Status: domain.TransferPending, StaffID: "ck-staff", CreatedAt: shiftStart.Add(time.Hour)},
			{ID: "tr-out", FromOutletID: "outlet-1", ToOutletID: "outlet-2", ItemName: "Cups", Quantity: qty("10"), Status: domain.TransferPending, StaffID: "staff-a", CreatedAt: shiftStart.Add(3 * time.Hour)},
		},
	}
}

func rowsByID(rows []Row) map[string]Row {
	out := make(map[string]Row, len(rows))
	for _, r := range rows {
		out[r.ItemID] = r
	}
	return out
}

func TestBuildAttributesEveryStream(t *testing.T) {
	rows := rowsByID(Build(baseInput()))

	coffee := rows["o1-coffee"]
	assert.True(t, coffee.SoldUsage.Equal(qty("36")), "sold usage %s", coffee.SoldUsage)
	assert.True(t, coffee.TransferIn.Equal(qty("250")), "transfer in %s", coffee.TransferIn)
	assert.True(t, coffee.Start.Equal(qty("686")), "start %s", coffee.Start)

	milk := rows["o1-milk"]
	assert.True(t, milk.Purchased.Equal(qty("1000")))
	assert.True(t, milk.SoldUsage.Equal(qty("300")))

	syrup := rows["o1-syrup"]
	assert.True(t, syrup.Produced.Equal(qty("500")))
	assert.True(t, syrup.SoldUsage.Equal(qty("41")))

	sugar := rows["o1-sugar"]
	assert.True(t, sugar.ProductionUsage.Equal(qty("250")))
	assert.True(t, sugar.TotalIn.IsZero())

	cups := rows["o1-cups"]
	assert.True(t, cups.TransferOut.Equal(qty("10")), "pending outbound still counts")
}

func TestBuildConservesEveryRow(t *testing.T) {
	rows := Build(baseInput())
	require.NotEmpty(t, rows)
	for _, r := range rows {
		assert.True(t, r.Start.Add(r.TotalIn).Sub(r.TotalOut).Equal(r.End), "item %s does not balance", r.ItemName)
	}
}

func TestBuildSkipsUntouchedItems(t *testing.T) {
	in := baseInput()
	in.Transactions = nil
	in.Production = nil
	in.Purchases = nil
	in.Transfers = nil

	assert.Empty(t, Build(in))
}

func TestBuildIsRepeatable(t *testing.T) {
	in := baseInput()
	first := Build(in)
	second := Build(in)
	assert.Equal(t, first, second)
}

func TestBuildSortsByName(t *testing.T) {
	rows := Build(baseInput())
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.ItemName)
	}
	assert.Equal(t, []string{"coffee beans", "Cups", "Fresh Milk", "Palm Sugar", "Palm Syrup"}, names)
}

func TestBuildCreditsInboundTransferToAcceptingStaff(t *testing.T) {
	accepted := shiftStart.Add(2 * time.Hour)
	in := baseInput()
	in.Transactions = nil
	in.Production = nil
	in.Purchases = nil
	in.Transfers = []domain.StockTransfer{
		{ID: "tr-b", FromOutletID: "central", ToOutletID: "outlet-1", ItemName: "Cups", Quantity: qty("25"),
			Status: domain.TransferAccepted, StaffID: "ck-staff", CreatedAt: shiftStart, RespondedAt: &accepted, RespondedBy: "staff-b"},
	}

	assert.Empty(t, Build(in), "staff-a did not accept the transfer")

	in.StaffID = "staff-b"
	cups := rowsByID(Build(in))["o1-cups"]
	assert.True(t, cups.TransferIn.Equal(qty("25")), "transfer in %s", cups.TransferIn)
	assert.True(t, cups.TotalOut.IsZero())
}

func TestResolveByIDThenName(t *testing.T) {
	r := NewResolver("outlet-1", inventory())

	item, ok := r.ResolveByIDThenName("o1-milk")
	require.True(t, ok)
	assert.Equal(t, "o1-milk", item.ID)

	item, ok = r.ResolveByIDThenName("ck-coffee")
	require.True(t, ok, "template id falls back to a case-insensitive name match")
	assert.Equal(t, "o1-coffee", item.ID)

	_, ok = r.ResolveByIDThenName("ghost-item")
	assert.False(t, ok)
}

func TestUsageReturnsNegativeDeltas(t *testing.T) {
	r := NewResolver("outlet-1", inventory())
	adjustments := Usage(r, []domain.TransactionLine{{Product: latte, Quantity: 3}})

	require.Len(t, adjustments, 3)
	assert.Equal(t, "o1-coffee", adjustments[0].InventoryItemID)
	assert.True(t, adjustments[0].Delta.Equal(qty("-54")))
	assert.True(t, adjustments[2].Delta.Equal(qty("-61.5")))
}
