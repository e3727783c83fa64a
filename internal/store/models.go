// Package store is the sync core's single persistence handle (spec §9: one
// gorm.DB per process, shared by every component as a constructor
// dependency). Models mirror the data model in spec §3; every datetime
// column goes through naiveutc.Time to enforce the naive-UTC boundary rule
// from spec §5/§6.4.
package store

import (
	"github.com/shopspring/decimal"

	"github.com/emagerp/synccore/internal/naiveutc"
)

// Account discriminates the two parallel seller contexts (spec §3.1, GLOSSARY).
type Account string

const (
	AccountMain Account = "main"
	AccountFBE  Account = "fbe"
)

// Resource identifies the remote entity family a sync pulls (spec §3.2).
type Resource string

const (
	ResourceProducts Resource = "products"
	ResourceOffers   Resource = "offers"
	ResourceOrders   Resource = "orders"
)

// SyncMode enumerates the closed sync-mode set (spec §6.3).
type SyncMode string

const (
	ModeFull        SyncMode = "full"
	ModeIncremental SyncMode = "incremental"
	ModeSelective   SyncMode = "selective"
)

// ConflictStrategy enumerates the closed conflict-resolution strategies
// (spec §4.3, §6.3).
type ConflictStrategy string

const (
	StrategyEmagPriority  ConflictStrategy = "emag_priority"
	StrategyLocalPriority ConflictStrategy = "local_priority"
	StrategyNewestWins    ConflictStrategy = "newest_wins"
	StrategyManual        ConflictStrategy = "manual"
)

// SyncStatus enumerates the closed sync-log lifecycle states (spec §3.2).
type SyncStatus string

const (
	StatusQueued    SyncStatus = "queued"
	StatusRunning   SyncStatus = "running"
	StatusSucceeded SyncStatus = "succeeded"
	StatusFailed    SyncStatus = "failed"
	StatusCancelled SyncStatus = "cancelled"
)

// Terminal reports whether the status is write-once terminal (spec §3.2
// invariant, property test 3 in §8.1).
func (s SyncStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ImageRef and Characteristic are embedded JSON-ish sub-documents on
// Product (spec §3.1). Stored as JSON text columns via the JSON[T]
// wrapper in types.go.
type ImageRef struct {
	URL  string `json:"url"`
	Role string `json:"role"`
}

type Characteristic struct {
	ID    int    `json:"id"`
	Value string `json:"value"`
	Tag   string `json:"tag,omitempty"`
}

// Product is the catalog entity (spec §3.1).
type Product struct {
	ID                uint    `gorm:"primaryKey;autoIncrement"`
	Account           Account `gorm:"column:account;uniqueIndex:uq_product_sku;index"`
	SKU               string  `gorm:"column:sku;uniqueIndex:uq_product_sku"`
	RemoteID          *int64  `gorm:"column:remote_id;uniqueIndex:uq_product_remote,where:remote_id IS NOT NULL"`
	PartNumberKey     *string `gorm:"column:part_number_key;uniqueIndex:uq_product_pnk,where:part_number_key IS NOT NULL"`
	Name              string  `gorm:"column:name"`
	Brand             string  `gorm:"column:brand"`
	CategoryID        int64   `gorm:"column:category_id"`
	EANs              StringSlice `gorm:"column:eans;type:text"`
	SalePrice         decimal.Decimal `gorm:"column:sale_price;type:decimal(12,4)"`
	MinSalePrice      decimal.Decimal `gorm:"column:min_sale_price;type:decimal(12,4)"`
	MaxSalePrice      decimal.Decimal `gorm:"column:max_sale_price;type:decimal(12,4)"`
	Stock             int     `gorm:"column:stock"`
	ValidationStatus  int     `gorm:"column:validation_status"`
	OfferValidation   int     `gorm:"column:offer_validation_status"`
	Active            bool    `gorm:"column:active"`
	Images            JSON[[]ImageRef]       `gorm:"column:images;type:text"`
	Characteristics   JSON[[]Characteristic] `gorm:"column:characteristics;type:text"`
	ChineseName       string  `gorm:"column:chinese_name"`
	ContentHash       string  `gorm:"column:content_hash"` // for idempotence (spec §4.3)
	NeedsManualReview bool    `gorm:"column:needs_manual_review"`

	CreatedAt naiveutc.Time `gorm:"column:created_at"`
	UpdatedAt naiveutc.Time `gorm:"column:updated_at"`
}

func (Product) TableName() string { return "products" }

// SyncLog is the durable audit/state row for one sync invocation (spec §3.2).
type SyncLog struct {
	ID       uint             `gorm:"primaryKey;autoIncrement"`
	Account  Account          `gorm:"column:account;index:idx_sync_log_lookup"`
	Resource Resource         `gorm:"column:resource;index:idx_sync_log_lookup"`
	Mode     SyncMode         `gorm:"column:mode"`
	Status   SyncStatus       `gorm:"column:status"`

	StartedAt  *naiveutc.Time `gorm:"column:started_at;index:idx_sync_log_lookup"`
	FinishedAt *naiveutc.Time `gorm:"column:finished_at"`

	TotalItems     int    `gorm:"column:total_items"`
	ProcessedItems int    `gorm:"column:processed_items"`
	CreatedCount   int    `gorm:"column:created_count"`
	UpdatedCount   int    `gorm:"column:updated_count"`
	FailedCount    int    `gorm:"column:failed_count"`
	ErrorMessage   string `gorm:"column:error_message"`
	Actor          string `gorm:"column:actor"`

	CancelRequested bool `gorm:"column:cancel_requested"`

	IdempotencyKey string `gorm:"column:idempotency_key;index"`

	CreatedAt naiveutc.Time `gorm:"column:created_at"`
	UpdatedAt naiveutc.Time `gorm:"column:updated_at"`
}

func (SyncLog) TableName() string { return "sync_logs" }

// ManualConfirmed is a tri-state (spec §3.3): nil = never-matched, false =
// pending, true = confirmed.
type SupplierProduct struct {
	ID                  uint    `gorm:"primaryKey;autoIncrement"`
	SupplierID          int64   `gorm:"column:supplier_id;index"`
	RawName             string  `gorm:"column:raw_name"`
	NormalizedTokens    StringSlice `gorm:"column:normalized_tokens;type:text"`
	ImageURL            string  `gorm:"column:image_url"`
	Price               decimal.Decimal `gorm:"column:price;type:decimal(12,4)"`
	URL                 string  `gorm:"column:url"`
	LinkedLocalProductID *uint   `gorm:"column:linked_local_product_id;index"`
	SimilarityScore     *float64 `gorm:"column:similarity_score"`
	ManualConfirmed     *bool    `gorm:"column:manual_confirmed"`
	ConfirmedBy         string   `gorm:"column:confirmed_by"`
	ConfirmedAt         *naiveutc.Time `gorm:"column:confirmed_at"`

	CreatedAt naiveutc.Time `gorm:"column:created_at"`
	UpdatedAt naiveutc.Time `gorm:"column:updated_at"`
}

func (SupplierProduct) TableName() string { return "supplier_products" }

// InventoryItem is the warehouse stock row backing the reorder engine
// (spec §3.4).
type InventoryItem struct {
	ID                    uint  `gorm:"primaryKey;autoIncrement"`
	ProductID             uint  `gorm:"column:product_id;index"`
	WarehouseID           int64 `gorm:"column:warehouse_id;index"`
	Quantity              int   `gorm:"column:quantity"`
	ReservedQuantity      int   `gorm:"column:reserved_quantity"`
	MinimumStock          int   `gorm:"column:minimum_stock"`
	ReorderPoint          int   `gorm:"column:reorder_point"`
	MaximumStock          *int  `gorm:"column:maximum_stock"`
	ManualReorderQuantity *int  `gorm:"column:manual_reorder_quantity"`

	CreatedAt naiveutc.Time `gorm:"column:created_at"`
	UpdatedAt naiveutc.Time `gorm:"column:updated_at"`
}

func (InventoryItem) TableName() string { return "inventory_items" }

// Available returns quantity - reserved (spec §3.4).
func (i InventoryItem) Available() int {
	a := i.Quantity - i.ReservedQuantity
	if a < 0 {
		return 0
	}
	return a
}

// PurchaseOrderStatus is the closed PO lifecycle enum (spec §3.5).
type PurchaseOrderStatus string

const (
	POStatusDraft             PurchaseOrderStatus = "draft"
	POStatusSent              PurchaseOrderStatus = "sent"
	POStatusConfirmed         PurchaseOrderStatus = "confirmed"
	POStatusPartiallyReceived PurchaseOrderStatus = "partially_received"
	POStatusReceived          PurchaseOrderStatus = "received"
	POStatusCancelled         PurchaseOrderStatus = "cancelled"
)

// PurchaseOrder exclusively owns its lines (cascade delete, spec §3.6).
type PurchaseOrder struct {
	ID               uint                `gorm:"primaryKey;autoIncrement"`
	OrderNumber      string              `gorm:"column:order_number;uniqueIndex"`
	SupplierID       int64               `gorm:"column:supplier_id;index"`
	Status           PurchaseOrderStatus `gorm:"column:status"`
	Currency         string              `gorm:"column:currency"`
	ExchangeRate     decimal.Decimal     `gorm:"column:exchange_rate;type:decimal(12,6)"`
	TotalValue       decimal.Decimal     `gorm:"column:total_value;type:decimal(14,4)"`
	OrderDate        naiveutc.Time       `gorm:"column:order_date"`
	ExpectedDelivery *naiveutc.Time      `gorm:"column:expected_delivery"`

	Lines   []PurchaseOrderLine   `gorm:"foreignKey:PurchaseOrderID;constraint:OnDelete:CASCADE"`
	History []PurchaseOrderHistory `gorm:"foreignKey:PurchaseOrderID;constraint:OnDelete:CASCADE"`

	CreatedAt naiveutc.Time `gorm:"column:created_at"`
	UpdatedAt naiveutc.Time `gorm:"column:updated_at"`
}

func (PurchaseOrder) TableName() string { return "purchase_orders" }

type PurchaseOrderLine struct {
	ID              uint            `gorm:"primaryKey;autoIncrement"`
	PurchaseOrderID uint            `gorm:"column:purchase_order_id;index"`
	ProductID       uint            `gorm:"column:product_id;index"`
	OrderedQty      int             `gorm:"column:ordered_qty"`
	ReceivedQty     int             `gorm:"column:received_qty"`
	UnitCost        decimal.Decimal `gorm:"column:unit_cost;type:decimal(12,4)"`
}

func (PurchaseOrderLine) TableName() string { return "purchase_order_lines" }

// Received reports whether every unit on the line has arrived.
func (l PurchaseOrderLine) Received() bool { return l.ReceivedQty >= l.OrderedQty }

// Partial reports whether the line is between 0 and fully received.
func (l PurchaseOrderLine) Partial() bool { return l.ReceivedQty > 0 && l.ReceivedQty < l.OrderedQty }

// PurchaseOrderHistory is an append-only audit trail (spec §3.5).
type PurchaseOrderHistory struct {
	ID              uint          `gorm:"primaryKey;autoIncrement"`
	PurchaseOrderID uint          `gorm:"column:purchase_order_id;index"`
	Event           string        `gorm:"column:event"`
	Detail          string        `gorm:"column:detail"`
	Actor           string        `gorm:"column:actor"`
	CreatedAt       naiveutc.Time `gorm:"column:created_at"`
}

func (PurchaseOrderHistory) TableName() string { return "purchase_order_history" }

// SyncAuditEntry records one per-item conflict decision within a run,
// collapsible to counts (spec §4.3 "Conflict decisions are recorded per
// item in a per-run audit log").
type SyncAuditEntry struct {
	ID         uint          `gorm:"primaryKey;autoIncrement"`
	SyncLogID  uint          `gorm:"column:sync_log_id;index"`
	RemoteID   int64         `gorm:"column:remote_id"`
	Decision   string        `gorm:"column:decision"` // created|updated|skipped_unchanged|deactivated|queued_manual|failed
	Detail     string        `gorm:"column:detail"`
	CreatedAt  naiveutc.Time `gorm:"column:created_at"`
}

func (SyncAuditEntry) TableName() string { return "sync_audit_entries" }

// AllModels lists every model for AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&Product{},
		&SyncLog{},
		&SupplierProduct{},
		&InventoryItem{},
		&PurchaseOrder{},
		&PurchaseOrderLine{},
		&PurchaseOrderHistory{},
		&SyncAuditEntry{},
	}
}
