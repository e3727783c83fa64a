package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps the shared gorm handle every component depends on.
type Store struct {
	db *gorm.DB
}

// New opens dsn, branching between Postgres and SQLite the same way a
// "postgres://"/"postgresql://" prefixed DSN vs. a filesystem path always
// has in this codebase, then migrates every model.
func New(dsn string) (*Store, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("store connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dsn)
		if dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("store initialized (SQLite)")
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle for components that need custom queries
// or transactions (e.g. the sync engine's per-page commit).
func (s *Store) DB() *gorm.DB { return s.db }

// --- Product -----------------------------------------------------------

func (s *Store) UpsertProduct(p *Product) error {
	return s.db.Save(p).Error
}

func (s *Store) FindProductByRemoteID(account Account, remoteID int64) (*Product, error) {
	var p Product
	err := s.db.Where("account = ? AND remote_id = ?", account, remoteID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) FindProductBySKU(account Account, sku string) (*Product, error) {
	var p Product
	err := s.db.Where("account = ? AND sku = ?", account, sku).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProducts(account Account) ([]Product, error) {
	var ps []Product
	err := s.db.Where("account = ?", account).Find(&ps).Error
	return ps, err
}

// ListActiveRemoteProducts returns every active, remote-sourced product for
// account, the candidate set for "missing remotely" deactivation at the end
// of a full sync (spec §4.3). Locally-created products (RemoteID nil) are
// never candidates for this check.
func (s *Store) ListActiveRemoteProducts(account Account) ([]Product, error) {
	var ps []Product
	err := s.db.Where("account = ? AND active = ? AND remote_id IS NOT NULL", account, true).Find(&ps).Error
	return ps, err
}

// --- SyncLog -------------------------------------------------------------

func (s *Store) CreateSyncLog(l *SyncLog) error {
	return s.db.Create(l).Error
}

func (s *Store) UpdateSyncLog(l *SyncLog) error {
	return s.db.Save(l).Error
}

func (s *Store) GetSyncLog(id uint) (*SyncLog, error) {
	var l SyncLog
	err := s.db.First(&l, id).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// RunningSyncLogs returns every sync log currently in the "running" state,
// across all accounts and resources, for the concurrency controller's
// orphan sweep.
func (s *Store) RunningSyncLogs() ([]SyncLog, error) {
	var logs []SyncLog
	err := s.db.Where("status = ?", StatusRunning).Find(&logs).Error
	return logs, err
}

func (s *Store) LastSyncLog(account Account, resource Resource) (*SyncLog, error) {
	var l SyncLog
	err := s.db.Where("account = ? AND resource = ?", account, resource).
		Order("created_at DESC").First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) AppendAudit(e *SyncAuditEntry) error {
	return s.db.Create(e).Error
}

// --- SupplierProduct / matching -----------------------------------------

func (s *Store) ListUnmatchedSupplierProducts() ([]SupplierProduct, error) {
	var sps []SupplierProduct
	err := s.db.Where("linked_local_product_id IS NULL OR manual_confirmed = ?", false).Find(&sps).Error
	return sps, err
}

func (s *Store) UpsertSupplierProduct(sp *SupplierProduct) error {
	return s.db.Save(sp).Error
}

func (s *Store) ConfirmedSupplierProducts() ([]SupplierProduct, error) {
	var sps []SupplierProduct
	err := s.db.Where("manual_confirmed = ?", true).Find(&sps).Error
	return sps, err
}

// --- Inventory / reorder --------------------------------------------------

func (s *Store) ListInventoryBelowReorderPoint() ([]InventoryItem, error) {
	var items []InventoryItem
	err := s.db.Where("(quantity - reserved_quantity) <= reorder_point").Find(&items).Error
	return items, err
}

func (s *Store) GetInventoryItem(productID uint, warehouseID int64) (*InventoryItem, error) {
	var item InventoryItem
	err := s.db.Where("product_id = ? AND warehouse_id = ?", productID, warehouseID).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- PurchaseOrder ---------------------------------------------------------

// CreatePurchaseOrder persists an order with its lines and a "created"
// history entry in a single transaction.
func (s *Store) CreatePurchaseOrder(po *PurchaseOrder, actor string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(po).Error; err != nil {
			return err
		}
		hist := PurchaseOrderHistory{
			PurchaseOrderID: po.ID,
			Event:           "created",
			Detail:          po.OrderNumber,
			Actor:           actor,
		}
		return tx.Create(&hist).Error
	})
}

func (s *Store) GetPurchaseOrder(id uint) (*PurchaseOrder, error) {
	var po PurchaseOrder
	err := s.db.Preload("Lines").Preload("History").First(&po, id).Error
	if err != nil {
		return nil, err
	}
	return &po, nil
}

// PendingOrderedQtyByProduct sums ordered-but-not-fully-received quantities
// per product, across purchase orders actually placed with the supplier,
// for reorder netting (spec §4.6 "net against quantity already on open
// purchase orders"). Draft orders are excluded: they never deduct stock or
// reserve inventory, so they must not suppress the next reorder suggestion.
func (s *Store) PendingOrderedQtyByProduct() (map[uint]int, error) {
	var lines []PurchaseOrderLine
	err := s.db.Joins("JOIN purchase_orders ON purchase_orders.id = purchase_order_lines.purchase_order_id").
		Where("purchase_orders.status IN ?", []PurchaseOrderStatus{POStatusSent, POStatusConfirmed, POStatusPartiallyReceived}).
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]int)
	for _, l := range lines {
		out[l.ProductID] += l.OrderedQty - l.ReceivedQty
	}
	return out, nil
}

// AppendPOHistory records one audit event for a purchase order (spec §3.5).
func (s *Store) AppendPOHistory(h *PurchaseOrderHistory) error {
	return s.db.Create(h).Error
}

// RecordReceipt applies a goods-receipt against a line within a transaction,
// bumping the line's received_qty, recomputing the order's overall status,
// and appending a history row.
func (s *Store) RecordReceipt(lineID uint, qty int, actor string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var line PurchaseOrderLine
		if err := tx.First(&line, lineID).Error; err != nil {
			return err
		}
		line.ReceivedQty += qty
		if line.ReceivedQty > line.OrderedQty {
			line.ReceivedQty = line.OrderedQty
		}
		if err := tx.Save(&line).Error; err != nil {
			return err
		}

		var lines []PurchaseOrderLine
		if err := tx.Where("purchase_order_id = ?", line.PurchaseOrderID).Find(&lines).Error; err != nil {
			return err
		}
		allReceived, anyReceived := true, false
		for _, l := range lines {
			if l.ReceivedQty > 0 {
				anyReceived = true
			}
			if !l.Received() {
				allReceived = false
			}
		}
		status := POStatusSent
		switch {
		case allReceived:
			status = POStatusReceived
		case anyReceived:
			status = POStatusPartiallyReceived
		}
		if err := tx.Model(&PurchaseOrder{}).Where("id = ?", line.PurchaseOrderID).
			Update("status", status).Error; err != nil {
			return err
		}

		hist := PurchaseOrderHistory{
			PurchaseOrderID: line.PurchaseOrderID,
			Event:           "receipt",
			Detail:          actor,
			Actor:           actor,
		}
		return tx.Create(&hist).Error
	})
}
