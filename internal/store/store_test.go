package store

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/emagerp/synccore/internal/naiveutc"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(":memory:")
	require.NoError(t, err)
	return st
}

func TestPendingOrderedQtyByProduct_ExcludesDraftOrders(t *testing.T) {
	st := newTestStore(t)

	draft := &PurchaseOrder{
		OrderNumber: "PO-DRAFT", SupplierID: 1, Status: POStatusDraft,
		Currency: "RON", ExchangeRate: decimal.NewFromInt(1), TotalValue: decimal.NewFromInt(50),
		OrderDate: naiveutc.Now(),
		Lines:     []PurchaseOrderLine{{ProductID: 7, OrderedQty: 50, UnitCost: decimal.NewFromInt(1)}},
	}
	require.NoError(t, st.CreatePurchaseOrder(draft, "alice"))

	sent := &PurchaseOrder{
		OrderNumber: "PO-SENT", SupplierID: 1, Status: POStatusSent,
		Currency: "RON", ExchangeRate: decimal.NewFromInt(1), TotalValue: decimal.NewFromInt(20),
		OrderDate: naiveutc.Now(),
		Lines:     []PurchaseOrderLine{{ProductID: 7, OrderedQty: 20, UnitCost: decimal.NewFromInt(1)}},
	}
	require.NoError(t, st.CreatePurchaseOrder(sent, "alice"))

	pending, err := st.PendingOrderedQtyByProduct()
	require.NoError(t, err)
	require.Equal(t, 20, pending[7], "draft PO quantity must not count toward pending-ordered netting")
}
