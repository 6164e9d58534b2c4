package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/fieldsales/go-fieldsync/odooapi"
	"github.com/fieldsales/go-fieldsync/syncdb"
)

// ledgerLayout is the ISO-8601 format recorded in the last-sync-time ledger
// and sent back to the server as the "since" filter.
const ledgerLayout = time.RFC3339

// SyncAdapter is the per-entity capability consumed by an Engine: endpoint
// location, incremental support, remote-to-domain mapping and foreign-name
// enrichment.
type SyncAdapter[T any, PT syncdb.RecordOf[T]] interface {
	EntityName() string
	Path() string
	// Incremental reports whether the server supports a "since" filter for
	// this entity type. Non-incremental entities always sync full.
	Incremental() bool
	// FromRemote converts one server list item into a domain record. It
	// returns (nil, nil) for items lacking a server ID; the engine skips
	// those.
	FromRemote(raw json.RawMessage) (PT, error)
	// Enrich resolves denormalized foreign names from the local store. A
	// missing related record yields an empty name, never an error.
	Enrich(ctx context.Context, rec PT) error
}

// Engine pulls authoritative data for one entity type from the Odoo backend
// and reconciles it into the local store, emitting the tri-state result
// stream. It exclusively owns writes to SYNCED records of its entity type.
type Engine[T any, PT syncdb.RecordOf[T]] struct {
	store    *syncdb.Store[T, PT]
	client   *odooapi.Client
	settings *syncdb.Settings
	adapter  SyncAdapter[T, PT]
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine wires a sync engine for one entity type.
func NewEngine[T any, PT syncdb.RecordOf[T]](
	store *syncdb.Store[T, PT],
	client *odooapi.Client,
	settings *syncdb.Settings,
	adapter SyncAdapter[T, PT],
	logger *slog.Logger,
) *Engine[T, PT] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine[T, PT]{
		store:    store,
		client:   client,
		settings: settings,
		adapter:  adapter,
		logger:   logger,
		now:      time.Now,
	}
}

// EntityName returns the entity type this engine syncs.
func (e *Engine[T, PT]) EntityName() string { return e.adapter.EntityName() }

// SyncFromRemote reconciles server state into the local store. The stream
// emits Loading with the cached data immediately, then exactly one of
// Success (freshly persisted records) or Error (classified message plus the
// best data available at failure time), and closes.
func (e *Engine[T, PT]) SyncFromRemote(ctx context.Context) <-chan Event[PT] {
	return e.start(ctx, false)
}

// SyncFull forces a full sync by discarding the incremental baseline first.
// Callers use it to recover from server-side deletions, which incremental
// sync never observes.
func (e *Engine[T, PT]) SyncFull(ctx context.Context) <-chan Event[PT] {
	return e.start(ctx, true)
}

// Sync drains SyncFromRemote and reports the terminal outcome. Used by the
// dashboard aggregator.
func (e *Engine[T, PT]) Sync(ctx context.Context) error {
	var last Event[PT]
	for ev := range e.SyncFromRemote(ctx) {
		last = ev
	}
	if last.Status == StatusError {
		return errors.New(last.Message)
	}
	return nil
}

// FullSync drains SyncFull and reports the terminal outcome.
func (e *Engine[T, PT]) FullSync(ctx context.Context) error {
	var last Event[PT]
	for ev := range e.SyncFull(ctx) {
		last = ev
	}
	if last.Status == StatusError {
		return errors.New(last.Message)
	}
	return nil
}

func (e *Engine[T, PT]) start(ctx context.Context, force bool) <-chan Event[PT] {
	// Buffered so the run completes even when the caller abandons the stream;
	// writes committed before abandonment stay committed.
	ch := make(chan Event[PT], 4)
	go func() {
		defer close(ch)
		e.run(ctx, ch, force)
	}()
	return ch
}

func (e *Engine[T, PT]) run(ctx context.Context, ch chan<- Event[PT], force bool) {
	entityType := e.adapter.EntityName()

	cached, _ := e.store.GetAll(ctx)
	ch <- Event[PT]{Status: StatusLoading, Data: cached}

	apiKey, err := e.settings.APIKey(ctx)
	if err != nil {
		e.fail(ctx, ch, odooapi.Classify(err))
		return
	}
	if strings.TrimSpace(apiKey) == "" {
		e.logger.Warn("sync skipped", "entity", entityType, "reason", MsgCredentialMissing)
		ch <- Event[PT]{Status: StatusError, Data: cached, Message: MsgCredentialMissing}
		return
	}

	since := ""
	if e.adapter.Incremental() && !force {
		since, err = e.settings.LastSyncTime(ctx, entityType)
		if err != nil {
			e.fail(ctx, ch, odooapi.Classify(err))
			return
		}
		if since != "" {
			count, err := e.store.Count(ctx)
			if err != nil {
				e.fail(ctx, ch, odooapi.Classify(err))
				return
			}
			// Stale ledger: the store was cleared out-of-band while the
			// ledger survived. Clear it and resync from scratch.
			if count == 0 {
				if err := e.settings.SetLastSyncTime(ctx, entityType, ""); err != nil {
					e.fail(ctx, ch, odooapi.Classify(err))
					return
				}
				since = ""
			}
		}
	}
	if force {
		if err := e.settings.SetLastSyncTime(ctx, entityType, ""); err != nil {
			e.fail(ctx, ch, odooapi.Classify(err))
			return
		}
	}

	items, err := e.client.ListAll(ctx, apiKey, e.adapter.Path(), since)
	if err != nil {
		e.fail(ctx, ch, odooapi.Classify(err))
		return
	}

	now := e.now()
	recs := make([]PT, 0, len(items))
	for _, raw := range items {
		rec, err := e.adapter.FromRemote(raw)
		if err != nil {
			e.fail(ctx, ch, odooapi.Classify(err))
			return
		}
		if rec == nil {
			// Missing server ID; dropping it protects the local primary key.
			e.logger.Warn("dropping record without server id", "entity", entityType)
			continue
		}
		meta := rec.SyncMeta()
		meta.State = syncdb.StateSynced
		meta.LastModified = now
		if err := e.adapter.Enrich(ctx, rec); err != nil {
			e.fail(ctx, ch, odooapi.Classify(err))
			return
		}
		recs = append(recs, rec)
	}

	if since == "" {
		err = e.store.ReplaceAll(ctx, recs)
	} else {
		err = e.store.UpsertMany(ctx, recs)
	}
	if err != nil {
		e.fail(ctx, ch, odooapi.Classify(err))
		return
	}

	if err := e.settings.SetLastSyncTime(ctx, entityType, now.UTC().Format(ledgerLayout)); err != nil {
		e.fail(ctx, ch, odooapi.Classify(err))
		return
	}

	fresh, err := e.store.GetAll(ctx)
	if err != nil {
		e.fail(ctx, ch, odooapi.Classify(err))
		return
	}
	e.logger.Info("sync completed",
		"entity", entityType, "fetched", len(recs), "incremental", since != "")
	ch <- Event[PT]{Status: StatusSuccess, Data: fresh}
}

// fail emits the Error case. The data is re-read at catch time so it reflects
// partial writes that succeeded before the fault, not the stale snapshot from
// the Loading emission.
func (e *Engine[T, PT]) fail(ctx context.Context, ch chan<- Event[PT], message string) {
	data, _ := e.store.GetAll(ctx)
	e.logger.Warn("sync failed", "entity", e.adapter.EntityName(), "error", message)
	ch <- Event[PT]{Status: StatusError, Data: data, Message: message}
}
