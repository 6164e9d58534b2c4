package entity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fieldsales/go-fieldsync/syncdb"
)

// Sale mirrors an Odoo sale.order. CustomerName is denormalized from the
// local customer table for display.
type Sale struct {
	syncdb.Meta
	Name         string  `json:"name,omitempty"`
	DateOrder    string  `json:"date_order,omitempty"`
	AmountTotal  float64 `json:"amount_total"`
	OrderState   string  `json:"state,omitempty"`
	CustomerID   int64   `json:"partner_id"`
	CustomerName string  `json:"customer_name,omitempty"`
	WriteDate    string  `json:"write_date,omitempty"`
}

// SyncMeta implements syncdb.Record.
func (s *Sale) SyncMeta() *syncdb.Meta { return &s.Meta }

type saleWire struct {
	ID          *int64   `json:"id"`
	MobileUID   string   `json:"mobile_uid"`
	Name        *string  `json:"name"`
	DateOrder   *string  `json:"date_order"`
	AmountTotal *float64 `json:"amount_total"`
	State       *string  `json:"state"`
	PartnerID   *int64   `json:"partner_id"`
	WriteDate   *string  `json:"write_date"`
}

// SaleAdapter maps sale orders to and from the /sales endpoint.
type SaleAdapter struct {
	Customers CustomerLookup
}

func (SaleAdapter) EntityName() string { return TypeSale }
func (SaleAdapter) Path() string       { return "/sales" }
func (SaleAdapter) Incremental() bool  { return false }

func (SaleAdapter) FromRemote(raw json.RawMessage) (*Sale, error) {
	var w saleWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("failed to decode sale: %w", err)
	}
	if w.ID == nil {
		return nil, nil
	}
	s := &Sale{
		Name:        deref(w.Name),
		DateOrder:   deref(w.DateOrder),
		AmountTotal: derefF(w.AmountTotal),
		OrderState:  deref(w.State),
		CustomerID:  derefI(w.PartnerID),
		WriteDate:   deref(w.WriteDate),
	}
	s.ID = *w.ID
	s.MobileUID = w.MobileUID
	return s, nil
}

func (SaleAdapter) ToRemote(s *Sale) map[string]any {
	payload := map[string]any{
		"mobile_uid": s.MobileUID,
		"partner_id": s.CustomerID,
	}
	putString(payload, "date_order", s.DateOrder)
	return payload
}

// Enrich attaches the customer name from the local store; a missing customer
// leaves the name empty.
func (a SaleAdapter) Enrich(ctx context.Context, s *Sale) error {
	name, err := lookupCustomerName(ctx, a.Customers, s.CustomerID)
	if err != nil {
		return err
	}
	s.CustomerName = name
	return nil
}
