package entity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fieldsales/go-fieldsync/syncdb"
)

// Customer mirrors an Odoo res.partner with customer rank.
type Customer struct {
	syncdb.Meta
	Name           string  `json:"name"`
	City           string  `json:"city,omitempty"`
	TaxID          string  `json:"tax_id,omitempty"`
	Email          string  `json:"email,omitempty"`
	Phone          string  `json:"phone,omitempty"`
	Website        string  `json:"website,omitempty"`
	Latitude       float64 `json:"partner_latitude,omitempty"`
	Longitude      float64 `json:"partner_longitude,omitempty"`
	MobileSyncDate string  `json:"mobile_sync_date,omitempty"`
	WriteDate      string  `json:"write_date,omitempty"`
}

// SyncMeta implements syncdb.Record.
func (c *Customer) SyncMeta() *syncdb.Meta { return &c.Meta }

type customerWire struct {
	ID             *int64   `json:"id"`
	MobileUID      string   `json:"mobile_uid"`
	Name           string   `json:"name"`
	City           *string  `json:"city"`
	TaxID          *string  `json:"tax_id"`
	Email          *string  `json:"email"`
	Phone          *string  `json:"phone"`
	Website        *string  `json:"website"`
	Latitude       *float64 `json:"partner_latitude"`
	Longitude      *float64 `json:"partner_longitude"`
	MobileSyncDate *string  `json:"mobile_sync_date"`
	WriteDate      *string  `json:"write_date"`
}

// CustomerAdapter maps customers to and from the /customer endpoint. It is
// the only adapter with incremental sync: the server supports a since filter
// on partner write_date.
type CustomerAdapter struct{}

func (CustomerAdapter) EntityName() string { return TypeCustomer }
func (CustomerAdapter) Path() string       { return "/customer" }
func (CustomerAdapter) Incremental() bool  { return true }

// FromRemote converts a server item into a domain customer. Items without a
// server ID are dropped (nil, nil) to protect the local primary key space.
func (CustomerAdapter) FromRemote(raw json.RawMessage) (*Customer, error) {
	var w customerWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("failed to decode customer: %w", err)
	}
	if w.ID == nil {
		return nil, nil
	}
	c := &Customer{
		Name:           w.Name,
		City:           deref(w.City),
		TaxID:          deref(w.TaxID),
		Email:          deref(w.Email),
		Phone:          deref(w.Phone),
		Website:        deref(w.Website),
		Latitude:       derefF(w.Latitude),
		Longitude:      derefF(w.Longitude),
		MobileSyncDate: deref(w.MobileSyncDate),
		WriteDate:      deref(w.WriteDate),
	}
	c.ID = *w.ID
	c.MobileUID = w.MobileUID
	return c, nil
}

// ToRemote builds the create payload. The provisional local ID never goes on
// the wire; the mobile UID is the correlation key.
func (CustomerAdapter) ToRemote(c *Customer) map[string]any {
	payload := map[string]any{
		"mobile_uid": c.MobileUID,
		"name":       c.Name,
	}
	putString(payload, "city", c.City)
	putString(payload, "tax_id", c.TaxID)
	putString(payload, "email", c.Email)
	putString(payload, "phone", c.Phone)
	putString(payload, "website", c.Website)
	putString(payload, "mobile_sync_date", c.MobileSyncDate)
	if c.Latitude != 0 || c.Longitude != 0 {
		payload["partner_latitude"] = c.Latitude
		payload["partner_longitude"] = c.Longitude
	}
	return payload
}

// Enrich is a no-op: customers denormalize nothing.
func (CustomerAdapter) Enrich(ctx context.Context, c *Customer) error { return nil }

// SetLocation updates the geo position on an existing customer.
func (CustomerAdapter) SetLocation(c *Customer, lat, lon float64) {
	c.Latitude = lat
	c.Longitude = lon
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefF(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func derefI(i *int64) int64 {
	if i == nil {
		return 0
	}
	return *i
}

func putString(payload map[string]any, key, value string) {
	if value != "" {
		payload[key] = value
	}
}
