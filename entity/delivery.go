package entity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fieldsales/go-fieldsync/syncdb"
)

// Delivery mirrors an outgoing Odoo stock.picking. Deliveries originate on
// the server only; the client never creates them.
type Delivery struct {
	syncdb.Meta
	Name          string         `json:"name,omitempty"`
	CustomerID    int64          `json:"partner_id"`
	CustomerName  string         `json:"customer_name,omitempty"`
	ScheduledDate string         `json:"scheduled_date,omitempty"`
	PickingState  string         `json:"state,omitempty"`
	SaleID        int64          `json:"sale_id,omitempty"`
	WriteDate     string         `json:"write_date,omitempty"`
	Lines         []DeliveryLine `json:"lines,omitempty"`
}

// DeliveryLine is one stock move on a delivery.
type DeliveryLine struct {
	ID           int64   `json:"id"`
	ProductID    int64   `json:"product_id"`
	ProductName  string  `json:"product_name,omitempty"`
	Quantity     float64 `json:"quantity"`
	QuantityDone float64 `json:"quantity_done"`
	UOM          string  `json:"uom,omitempty"`
}

// SyncMeta implements syncdb.Record.
func (d *Delivery) SyncMeta() *syncdb.Meta { return &d.Meta }

type deliveryWire struct {
	ID            *int64             `json:"id"`
	Name          *string            `json:"name"`
	PartnerID     *int64             `json:"partner_id"`
	ScheduledDate *string            `json:"scheduled_date"`
	State         *string            `json:"state"`
	SaleID        *int64             `json:"sale_id"`
	WriteDate     *string            `json:"write_date"`
	Lines         []deliveryLineWire `json:"lines"`
}

type deliveryLineWire struct {
	ID           *int64   `json:"id"`
	ProductID    *int64   `json:"product_id"`
	ProductName  *string  `json:"product_name"`
	Quantity     *float64 `json:"quantity"`
	QuantityDone *float64 `json:"quantity_done"`
	UOM          *string  `json:"uom"`
}

// DeliveryAdapter maps deliveries from the /deliveries endpoint.
type DeliveryAdapter struct {
	Customers CustomerLookup
}

func (DeliveryAdapter) EntityName() string { return TypeDelivery }
func (DeliveryAdapter) Path() string       { return "/deliveries" }
func (DeliveryAdapter) Incremental() bool  { return false }

func (DeliveryAdapter) FromRemote(raw json.RawMessage) (*Delivery, error) {
	var w deliveryWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("failed to decode delivery: %w", err)
	}
	if w.ID == nil {
		return nil, nil
	}
	d := &Delivery{
		Name:          deref(w.Name),
		CustomerID:    derefI(w.PartnerID),
		ScheduledDate: deref(w.ScheduledDate),
		PickingState:  deref(w.State),
		SaleID:        derefI(w.SaleID),
		WriteDate:     deref(w.WriteDate),
	}
	for _, lw := range w.Lines {
		d.Lines = append(d.Lines, DeliveryLine{
			ID:           derefI(lw.ID),
			ProductID:    derefI(lw.ProductID),
			ProductName:  deref(lw.ProductName),
			Quantity:     derefF(lw.Quantity),
			QuantityDone: derefF(lw.QuantityDone),
			UOM:          deref(lw.UOM),
		})
	}
	d.ID = *w.ID
	return d, nil
}

// Enrich attaches the customer name from the local store.
func (a DeliveryAdapter) Enrich(ctx context.Context, d *Delivery) error {
	name, err := lookupCustomerName(ctx, a.Customers, d.CustomerID)
	if err != nil {
		return err
	}
	d.CustomerName = name
	return nil
}
