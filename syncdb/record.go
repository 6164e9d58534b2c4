// Package syncdb provides the SQLite-backed local store for the field-sales
// sync client: one generic table per entity type, the credential/last-sync
// settings table and the durable retry queue.
//
// Server-assigned IDs are positive; locally created records carry negative
// provisional IDs until the server confirms them.
package syncdb

import "time"

// State is the sync lifecycle state carried by every record in the store.
type State string

const (
	// StateSynced marks a record whose server copy matches the local one.
	StateSynced State = "SYNCED"
	// StatePending marks a locally authored record awaiting server confirmation.
	StatePending State = "PENDING"
	// StateError marks a record whose last push attempt failed permanently.
	StateError State = "ERROR"
)

// Meta holds the sync bookkeeping fields embedded in every domain record.
type Meta struct {
	ID           int64     `json:"id"`
	MobileUID    string    `json:"mobile_uid,omitempty"`
	State        State     `json:"sync_state"`
	LastModified time.Time `json:"last_modified"`
}

// Pending reports whether the record still awaits server confirmation.
func (m *Meta) Pending() bool { return m.State == StatePending }

// Record is implemented by pointer domain types stored in a Store.
type Record interface {
	SyncMeta() *Meta
}

// RecordOf constrains a pointer type *T that implements Record, so stores and
// engines can both allocate T values and mutate them through the interface.
type RecordOf[T any] interface {
	Record
	*T
}
