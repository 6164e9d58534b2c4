package entity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fieldsales/go-fieldsync/syncdb"
)

// Payment mirrors an Odoo account.payment (inbound customer payment).
type Payment struct {
	syncdb.Meta
	Name         string  `json:"name,omitempty"`
	CustomerID   int64   `json:"partner_id"`
	CustomerName string  `json:"customer_name,omitempty"`
	Amount       float64 `json:"amount"`
	Date         string  `json:"date,omitempty"`
	Memo         string  `json:"memo,omitempty"`
	JournalID    int64   `json:"journal_id,omitempty"`
	PaymentState string  `json:"state,omitempty"`
}

// SyncMeta implements syncdb.Record.
func (p *Payment) SyncMeta() *syncdb.Meta { return &p.Meta }

type paymentWire struct {
	ID        *int64   `json:"id"`
	MobileUID string   `json:"mobile_uid"`
	Name      *string  `json:"name"`
	PartnerID *int64   `json:"partner_id"`
	Amount    *float64 `json:"amount"`
	Date      *string  `json:"date"`
	Memo      *string  `json:"memo"`
	JournalID *int64   `json:"journal_id"`
	State     *string  `json:"state"`
}

// PaymentAdapter maps payments to and from the /payments endpoint.
type PaymentAdapter struct {
	Customers CustomerLookup
}

func (PaymentAdapter) EntityName() string { return TypePayment }
func (PaymentAdapter) Path() string       { return "/payments" }
func (PaymentAdapter) Incremental() bool  { return false }

func (PaymentAdapter) FromRemote(raw json.RawMessage) (*Payment, error) {
	var w paymentWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("failed to decode payment: %w", err)
	}
	if w.ID == nil {
		return nil, nil
	}
	p := &Payment{
		Name:         deref(w.Name),
		CustomerID:   derefI(w.PartnerID),
		Amount:       derefF(w.Amount),
		Date:         deref(w.Date),
		Memo:         deref(w.Memo),
		JournalID:    derefI(w.JournalID),
		PaymentState: deref(w.State),
	}
	p.ID = *w.ID
	p.MobileUID = w.MobileUID
	return p, nil
}

func (PaymentAdapter) ToRemote(p *Payment) map[string]any {
	payload := map[string]any{
		"mobile_uid": p.MobileUID,
		"partner_id": p.CustomerID,
		"amount":     p.Amount,
	}
	putString(payload, "date", p.Date)
	putString(payload, "memo", p.Memo)
	if p.JournalID > 0 {
		payload["journal_id"] = p.JournalID
	}
	return payload
}

// Enrich attaches the customer name from the local store.
func (a PaymentAdapter) Enrich(ctx context.Context, p *Payment) error {
	name, err := lookupCustomerName(ctx, a.Customers, p.CustomerID)
	if err != nil {
		return err
	}
	p.CustomerName = name
	return nil
}
