// Package reorder implements the auto-reorder formula, pending-PO netting,
// and bulk purchase-order draft assembly from spec §4.6, component C6.
package reorder

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/emagerp/synccore/internal/naiveutc"
	"github.com/emagerp/synccore/internal/store"
)

// Engine computes reorder quantities and assembles purchase-order drafts.
type Engine struct {
	store           *store.Store
	cnyExchangeRate decimal.Decimal

	nowFn func() naiveutc.Time
	seqFn func() int
}

// New builds a reorder Engine. now supplies the current instant for
// order_date stamping and the idempotency minute bucket; seq generates the
// sequence suffix for order numbers within a calendar day.
func New(st *store.Store, cnyExchangeRate decimal.Decimal, now func() naiveutc.Time, seq func() int) *Engine {
	return &Engine{store: st, cnyExchangeRate: cnyExchangeRate, nowFn: now, seqFn: seq}
}

// ReorderQuantity applies the auto reorder formula from spec §4.6.
func ReorderQuantity(item store.InventoryItem) int {
	available := item.Available()

	switch {
	case item.ManualReorderQuantity != nil:
		return *item.ManualReorderQuantity
	case item.MaximumStock != nil:
		return max0(*item.MaximumStock - available)
	case item.ReorderPoint > 0:
		return max0(2*item.ReorderPoint - available)
	default:
		return max0(3*item.MinimumStock - available)
	}
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// AdjustedReorderQuantity nets the raw reorder quantity against stock
// already on open purchase orders (spec §4.6 "pending-PO netting").
func (e *Engine) AdjustedReorderQuantity(item store.InventoryItem, pendingByProduct map[uint]int) int {
	raw := ReorderQuantity(item)
	pending := pendingByProduct[item.ProductID]
	return max0(raw - pending)
}

// SupplierLine is one product line contributed by a caller for bulk draft
// assembly (spec §4.6 "Bulk draft assembly" inputs).
type SupplierLine struct {
	ProductID          uint
	SupplierID         int64
	Quantity           int
	SupplierSheetPrice *decimal.Decimal
	SupplierItemPrice  *decimal.Decimal
	ProductBasePrice   decimal.Decimal
	SupplierCountry    string // "CN" marks a CNY-denominated supplier
}

// unitCost resolves a line's unit cost by priority: sheet price, then
// supplier-product price, then the product's own base price.
func (l SupplierLine) unitCost() decimal.Decimal {
	if l.SupplierSheetPrice != nil {
		return *l.SupplierSheetPrice
	}
	if l.SupplierItemPrice != nil {
		return *l.SupplierItemPrice
	}
	return l.ProductBasePrice
}

func (l SupplierLine) isCNY() bool {
	return l.SupplierCountry == "CN"
}

// DraftResult reports what the batch produced, per spec §4.6 step 3.
type DraftResult struct {
	Created []string // order numbers
	Failed  []DraftFailure
}

type DraftFailure struct {
	SupplierID int64
	Reason     string
}

// seenIdempotencyKeys guards against duplicate submission within one
// AssembleDrafts call; the set is local to that call, so keys are not
// remembered across calls and nothing in the store enforces them.
type seenIdempotencyKeys map[string]bool

// AssembleDrafts groups lines by supplier and creates one draft purchase
// order per group (spec §4.6 "Bulk draft assembly"). Per-supplier failures
// are collected rather than aborting the whole batch.
func (e *Engine) AssembleDrafts(lines []SupplierLine, actor string) (*DraftResult, error) {
	groups := make(map[int64][]SupplierLine)
	var order []int64
	for _, l := range lines {
		if _, ok := groups[l.SupplierID]; !ok {
			order = append(order, l.SupplierID)
		}
		groups[l.SupplierID] = append(groups[l.SupplierID], l)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	result := &DraftResult{}
	seen := make(seenIdempotencyKeys)
	now := e.nowFn()

	for _, supplierID := range order {
		group := groups[supplierID]
		key := idempotencyKey(supplierID, group, actor, now)
		if seen[key] {
			continue
		}
		seen[key] = true

		orderNumber, err := e.draftOne(supplierID, group, actor, now)
		if err != nil {
			result.Failed = append(result.Failed, DraftFailure{SupplierID: supplierID, Reason: err.Error()})
			continue
		}
		result.Created = append(result.Created, orderNumber)
	}
	return result, nil
}

func (e *Engine) draftOne(supplierID int64, group []SupplierLine, actor string, now naiveutc.Time) (string, error) {
	currency := "RON"
	rate := decimal.NewFromInt(1)
	if len(group) > 0 && group[0].isCNY() {
		currency = "CNY"
		rate = e.cnyExchangeRate
	}

	var lines []store.PurchaseOrderLine
	total := decimal.Zero
	for _, l := range group {
		cost := l.unitCost()
		lines = append(lines, store.PurchaseOrderLine{
			ProductID: l.ProductID,
			OrderedQty: l.Quantity,
			UnitCost:  cost,
		})
		total = total.Add(cost.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	orderNumber := fmt.Sprintf("PO-%s-%04d", now.Format("20060102"), e.seqFn())

	po := &store.PurchaseOrder{
		OrderNumber:  orderNumber,
		SupplierID:   supplierID,
		Status:       store.POStatusDraft,
		Currency:     currency,
		ExchangeRate: rate,
		TotalValue:   total,
		OrderDate:    now,
		Lines:        lines,
	}
	if err := e.store.CreatePurchaseOrder(po, actor); err != nil {
		return "", err
	}
	return orderNumber, nil
}

// idempotencyKey implements the tuple (supplier_id, sorted product ids,
// actor, minute bucket) from spec §4.6.
func idempotencyKey(supplierID int64, group []SupplierLine, actor string, now naiveutc.Time) string {
	ids := make([]int, len(group))
	for i, l := range group {
		ids[i] = int(l.ProductID)
	}
	sort.Ints(ids)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|", supplierID)
	for _, id := range ids {
		fmt.Fprintf(&sb, "%d,", id)
	}
	fmt.Fprintf(&sb, "|%s|%s", actor, now.Format("200601021504"))

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
