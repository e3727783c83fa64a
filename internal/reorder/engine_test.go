package reorder

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/emagerp/synccore/internal/naiveutc"
	"github.com/emagerp/synccore/internal/store"
)

func intPtr(n int) *int { return &n }

func TestReorderQuantity_PrefersManualOverride(t *testing.T) {
	item := store.InventoryItem{Quantity: 10, ReservedQuantity: 2, ManualReorderQuantity: intPtr(50)}
	require.Equal(t, 50, ReorderQuantity(item))
}

func TestReorderQuantity_UsesMaximumStockWhenSet(t *testing.T) {
	item := store.InventoryItem{Quantity: 10, ReservedQuantity: 0, MaximumStock: intPtr(30)}
	require.Equal(t, 20, ReorderQuantity(item))
}

func TestReorderQuantity_UsesReorderPointFormula(t *testing.T) {
	item := store.InventoryItem{Quantity: 5, ReservedQuantity: 0, ReorderPoint: 10}
	require.Equal(t, 15, ReorderQuantity(item)) // 2*10 - 5
}

func TestReorderQuantity_FallsBackToMinimumStockFormula(t *testing.T) {
	item := store.InventoryItem{Quantity: 2, ReservedQuantity: 0, MinimumStock: 10}
	require.Equal(t, 28, ReorderQuantity(item)) // 3*10 - 2
}

func TestReorderQuantity_NeverNegative(t *testing.T) {
	item := store.InventoryItem{Quantity: 100, ReservedQuantity: 0, MinimumStock: 1}
	require.Equal(t, 0, ReorderQuantity(item))
}

func TestAdjustedReorderQuantity_NetsAgainstPendingPOs(t *testing.T) {
	st, err := store.New(":memory:")
	require.NoError(t, err)
	e := New(st, decimal.NewFromFloat(0.65), func() naiveutc.Time { return naiveutc.Now() }, func() int { return 1 })

	item := store.InventoryItem{ProductID: 7, Quantity: 0, ReservedQuantity: 0, MinimumStock: 10} // raw = 30
	adjusted := e.AdjustedReorderQuantity(item, map[uint]int{7: 25})
	require.Equal(t, 5, adjusted)
}

func TestAssembleDrafts_GroupsBySupplierAndPicksUnitCostPriority(t *testing.T) {
	st, err := store.New(":memory:")
	require.NoError(t, err)

	fixedNow := naiveutc.Wrap(time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC))
	seq := 0
	e := New(st, decimal.NewFromFloat(0.65), func() naiveutc.Time { return fixedNow }, func() int { seq++; return seq })

	sheetPrice := decimal.NewFromFloat(12.5)
	lines := []SupplierLine{
		{ProductID: 1, SupplierID: 100, Quantity: 5, SupplierSheetPrice: &sheetPrice, SupplierCountry: "CN"},
		{ProductID: 2, SupplierID: 100, Quantity: 3, ProductBasePrice: decimal.NewFromFloat(9.0), SupplierCountry: "CN"},
		{ProductID: 3, SupplierID: 200, Quantity: 1, ProductBasePrice: decimal.NewFromFloat(20.0)},
	}

	result, err := e.AssembleDrafts(lines, "alice")
	require.NoError(t, err)
	require.Len(t, result.Created, 2)
	require.Empty(t, result.Failed)

	po, err := st.GetPurchaseOrder(1)
	require.NoError(t, err)
	require.Equal(t, "CNY", po.Currency)
	require.Len(t, po.Lines, 2)
}

func TestAssembleDrafts_OneDraftPerSupplierRegardlessOfLineCount(t *testing.T) {
	st, err := store.New(":memory:")
	require.NoError(t, err)

	fixedNow := naiveutc.Wrap(time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC))
	seq := 0
	e := New(st, decimal.NewFromFloat(0.65), func() naiveutc.Time { return fixedNow }, func() int { seq++; return seq })

	lines := []SupplierLine{
		{ProductID: 1, SupplierID: 100, Quantity: 5, ProductBasePrice: decimal.NewFromFloat(1)},
		{ProductID: 2, SupplierID: 100, Quantity: 3, ProductBasePrice: decimal.NewFromFloat(1)},
	}
	result, err := e.AssembleDrafts(lines, "alice")
	require.NoError(t, err)
	require.Len(t, result.Created, 1)

	po, err := st.GetPurchaseOrder(1)
	require.NoError(t, err)
	require.Len(t, po.Lines, 2)
}
