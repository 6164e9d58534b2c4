// Package syncer implements the offline creation/sync reconciliation
// protocol: per-entity sync engines that reconcile the Odoo backend into the
// local store, the pending-to-synced creation protocol with provisional
// negative IDs, and the durable retry queue with exponential backoff.
package syncer

// Status tags the three cases of the result stream.
type Status string

const (
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Messages surfaced by the core itself (transport faults are classified by
// odooapi.Classify).
const (
	MsgCredentialMissing  = "credential not configured"
	MsgResponseIncomplete = "created but response incomplete"
)

// Event is one emission of a sync stream. Every case carries the best
// currently-known data so screens never blank out: Loading carries the
// cached list, Error carries whatever the store holds at failure time.
type Event[T any] struct {
	Status  Status
	Data    []T
	Message string
}

// RecordEvent is one emission of a creation stream, carrying the single
// record involved: the pending record on error, the confirmed one on success.
type RecordEvent[T any] struct {
	Status  Status
	Record  T
	Message string
}
