package entity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fieldsales/go-fieldsync/syncdb"
)

// Visit mirrors an Odoo res.partner.visit check-in.
type Visit struct {
	syncdb.Meta
	CustomerID    int64  `json:"partner_id"`
	CustomerName  string `json:"partner_name,omitempty"`
	VisitDatetime string `json:"visit_datetime,omitempty"`
	Memo          string `json:"memo,omitempty"`
	WriteDate     string `json:"write_date,omitempty"`
}

// SyncMeta implements syncdb.Record.
func (v *Visit) SyncMeta() *syncdb.Meta { return &v.Meta }

type visitWire struct {
	ID            *int64  `json:"id"`
	MobileUID     string  `json:"mobile_uid"`
	PartnerID     *int64  `json:"partner_id"`
	PartnerName   *string `json:"partner_name"`
	VisitDatetime *string `json:"visit_datetime"`
	Memo          *string `json:"memo"`
	WriteDate     *string `json:"write_date"`
}

// VisitAdapter maps visits to and from the /visits endpoint.
type VisitAdapter struct {
	Customers CustomerLookup
}

func (VisitAdapter) EntityName() string { return TypeVisit }
func (VisitAdapter) Path() string       { return "/visits" }
func (VisitAdapter) Incremental() bool  { return false }

func (VisitAdapter) FromRemote(raw json.RawMessage) (*Visit, error) {
	var w visitWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("failed to decode visit: %w", err)
	}
	if w.ID == nil {
		return nil, nil
	}
	v := &Visit{
		CustomerID:    derefI(w.PartnerID),
		CustomerName:  deref(w.PartnerName),
		VisitDatetime: deref(w.VisitDatetime),
		Memo:          deref(w.Memo),
		WriteDate:     deref(w.WriteDate),
	}
	v.ID = *w.ID
	v.MobileUID = w.MobileUID
	return v, nil
}

func (VisitAdapter) ToRemote(v *Visit) map[string]any {
	payload := map[string]any{
		"mobile_uid":     v.MobileUID,
		"partner_id":     v.CustomerID,
		"visit_datetime": v.VisitDatetime,
	}
	putString(payload, "memo", v.Memo)
	return payload
}

// Enrich resolves the customer name locally when the server did not send one.
func (a VisitAdapter) Enrich(ctx context.Context, v *Visit) error {
	if v.CustomerName != "" {
		return nil
	}
	name, err := lookupCustomerName(ctx, a.Customers, v.CustomerID)
	if err != nil {
		return err
	}
	v.CustomerName = name
	return nil
}
