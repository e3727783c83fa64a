package emagapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/emagerp/synccore/internal/ratelimit"
	"github.com/emagerp/synccore/internal/syncengine"
)

// productWireRecord mirrors the eMAG product-offer read payload shape
// (spec §6.1 "product-offer read/save").
type productWireRecord struct {
	ID               int64    `json:"id"`
	PartNumberKey    string   `json:"part_number_key"`
	Name             string   `json:"name"`
	Brand            string   `json:"brand"`
	CategoryID       int64    `json:"category_id"`
	EAN              []string `json:"ean"`
	SalePrice        string   `json:"sale_price"`
	MinSalePrice     string   `json:"min_sale_price"`
	MaxSalePrice     string   `json:"max_sale_price"`
	Stock            []struct {
		Value int `json:"value"`
	} `json:"stock"`
	ValidationStatus []struct {
		Value int `json:"value"`
	} `json:"validation_status"`
	OfferValidationStatus struct {
		Value int `json:"value"`
	} `json:"offer_validation_status"`
	Status       int   `json:"status"`
	ModifiedDate int64 `json:"modified_date_unix"`
}

func (r productWireRecord) toRecord() syncengine.RemoteRecord {
	stock := 0
	if len(r.Stock) > 0 {
		stock = r.Stock[0].Value
	}
	validation := 0
	if len(r.ValidationStatus) > 0 {
		validation = r.ValidationStatus[0].Value
	}
	return syncengine.RemoteRecord{
		RemoteID:         r.ID,
		PartNumberKey:    r.PartNumberKey,
		Name:             r.Name,
		Brand:            r.Brand,
		CategoryID:       r.CategoryID,
		EANs:             r.EAN,
		SalePrice:        r.SalePrice,
		MinSalePrice:     r.MinSalePrice,
		MaxSalePrice:     r.MaxSalePrice,
		Stock:            stock,
		ValidationStatus: validation,
		OfferValidation:  r.OfferValidationStatus.Value,
		Active:           r.Status == 1,
		RemoteUpdatedAt:  r.ModifiedDate,
	}
}

// ProductSource adapts a Client into a syncengine.RemoteSource for the
// products resource.
type ProductSource struct {
	client   *Client
	pageSize int
}

func NewProductSource(client *Client, pageSize int) *ProductSource {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &ProductSource{client: client, pageSize: pageSize}
}

func (s *ProductSource) FetchPage(ctx context.Context, page int, modifiedSince *time.Time, filters map[string]string) ([]syncengine.RemoteRecord, int, bool, error) {
	body := map[string]interface{}{
		"currentPage":  page,
		"itemsPerPage": s.pageSize,
	}
	for k, v := range filters {
		body[k] = v
	}
	acceptsModifiedSince := true
	if modifiedSince != nil {
		body["modifiedSince"] = strconv.FormatInt(modifiedSince.Unix(), 10)
	}

	var wire []productWireRecord
	pageInfo, err := s.client.Call(ctx, ratelimit.ClassOther, http.MethodPost, "/product_offer/read", body, &wire)
	if err != nil {
		return nil, 0, acceptsModifiedSince, err
	}

	records := make([]syncengine.RemoteRecord, 0, len(wire))
	for _, w := range wire {
		records = append(records, w.toRecord())
	}

	total := len(records)
	if pageInfo != nil {
		total = pageInfo.TotalItems
	}
	return records, total, acceptsModifiedSince, nil
}
