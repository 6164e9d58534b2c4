package entity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fieldsales/go-fieldsync/syncdb"
)

// Product mirrors a saleable Odoo product.product. Products originate on the
// server only.
type Product struct {
	syncdb.Meta
	Name         string  `json:"name"`
	Code         string  `json:"default_code,omitempty"`
	Barcode      string  `json:"barcode,omitempty"`
	ListPrice    float64 `json:"list_price"`
	UOMID        int64   `json:"uom_id,omitempty"`
	UOMName      string  `json:"uom_name,omitempty"`
	CategoryID   int64   `json:"categ_id,omitempty"`
	CategoryName string  `json:"categ_name,omitempty"`
	ProductType  string  `json:"type,omitempty"`
	Active       bool    `json:"active"`
}

// SyncMeta implements syncdb.Record.
func (p *Product) SyncMeta() *syncdb.Meta { return &p.Meta }

type productWire struct {
	ID           *int64   `json:"id"`
	Name         string   `json:"name"`
	Code         *string  `json:"default_code"`
	Barcode      *string  `json:"barcode"`
	ListPrice    *float64 `json:"list_price"`
	UOMID        *int64   `json:"uom_id"`
	UOMName      *string  `json:"uom_name"`
	CategoryID   *int64   `json:"categ_id"`
	CategoryName *string  `json:"categ_name"`
	Type         *string  `json:"type"`
	Active       *bool    `json:"active"`
}

// ProductAdapter maps products from the /products endpoint.
type ProductAdapter struct{}

func (ProductAdapter) EntityName() string { return TypeProduct }
func (ProductAdapter) Path() string       { return "/products" }
func (ProductAdapter) Incremental() bool  { return false }

func (ProductAdapter) FromRemote(raw json.RawMessage) (*Product, error) {
	var w productWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("failed to decode product: %w", err)
	}
	if w.ID == nil {
		return nil, nil
	}
	p := &Product{
		Name:         w.Name,
		Code:         deref(w.Code),
		Barcode:      deref(w.Barcode),
		ListPrice:    derefF(w.ListPrice),
		UOMID:        derefI(w.UOMID),
		UOMName:      deref(w.UOMName),
		CategoryID:   derefI(w.CategoryID),
		CategoryName: deref(w.CategoryName),
		ProductType:  deref(w.Type),
		Active:       w.Active == nil || *w.Active,
	}
	p.ID = *w.ID
	return p, nil
}

func (ProductAdapter) Enrich(ctx context.Context, p *Product) error { return nil }
