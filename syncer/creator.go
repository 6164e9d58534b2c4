package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldsales/go-fieldsync/odooapi"
	"github.com/fieldsales/go-fieldsync/syncdb"
)

// CreateAdapter extends SyncAdapter with the domain-to-wire mapping for the
// batch create endpoint. The provisional local ID never appears in the
// payload; the mobile UID is the sole correlation key.
type CreateAdapter[T any, PT syncdb.RecordOf[T]] interface {
	SyncAdapter[T, PT]
	ToRemote(rec PT) map[string]any
}

// LocationAdapter is the optional capability for entities whose geo position
// can be updated after creation.
type LocationAdapter[T any, PT syncdb.RecordOf[T]] interface {
	CreateAdapter[T, PT]
	SetLocation(rec PT, lat, lon float64)
}

// Creator runs the creation/reconciliation protocol for one entity type: the
// draft is persisted immediately under a provisional negative ID, then
// promoted to the server-confirmed record when the batch create echoes its
// mobile UID back with a server ID. Every failure mode leaves the provisional
// record intact in PENDING state.
type Creator[T any, PT syncdb.RecordOf[T]] struct {
	store    *syncdb.Store[T, PT]
	client   *odooapi.Client
	settings *syncdb.Settings
	adapter  CreateAdapter[T, PT]
	queue    *Queue
	logger   *slog.Logger
	now      func() time.Time
	newUID   func() string
}

// NewCreator wires a creation protocol for one entity type. queue may be nil
// to disable automatic enqueueing of transient failures.
func NewCreator[T any, PT syncdb.RecordOf[T]](
	store *syncdb.Store[T, PT],
	client *odooapi.Client,
	settings *syncdb.Settings,
	adapter CreateAdapter[T, PT],
	queue *Queue,
	logger *slog.Logger,
) *Creator[T, PT] {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Creator[T, PT]{
		store:    store,
		client:   client,
		settings: settings,
		adapter:  adapter,
		queue:    queue,
		logger:   logger,
		now:      time.Now,
		newUID:   uuid.NewString,
	}
	if queue != nil {
		queue.register(adapter.EntityName(), adapter.Path(), c.promoteFromQueue)
	}
	return c
}

// Create persists the draft locally and attempts to promote it to a
// server-confirmed record. The stream emits Loading, then exactly one of
// Success (the confirmed record) or Error (the pending record as saved),
// and closes.
func (c *Creator[T, PT]) Create(ctx context.Context, draft PT) <-chan RecordEvent[PT] {
	ch := make(chan RecordEvent[PT], 4)
	go func() {
		defer close(ch)
		c.runCreate(ctx, ch, draft)
	}()
	return ch
}

func (c *Creator[T, PT]) runCreate(ctx context.Context, ch chan<- RecordEvent[PT], draft PT) {
	ch <- RecordEvent[PT]{Status: StatusLoading}

	uid := c.newUID()
	provisionalID, err := c.provisionalID(ctx)
	if err != nil {
		ch <- RecordEvent[PT]{Status: StatusError, Message: odooapi.Classify(err)}
		return
	}

	meta := draft.SyncMeta()
	meta.ID = provisionalID
	meta.MobileUID = uid
	meta.State = syncdb.StatePending
	meta.LastModified = c.now()
	if err := c.adapter.Enrich(ctx, draft); err != nil {
		ch <- RecordEvent[PT]{Status: StatusError, Message: odooapi.Classify(err)}
		return
	}
	if err := c.store.UpsertOne(ctx, draft); err != nil {
		ch <- RecordEvent[PT]{Status: StatusError, Message: odooapi.Classify(err)}
		return
	}
	// From here the record is visible offline regardless of network outcome.

	apiKey, err := c.settings.APIKey(ctx)
	if err != nil {
		ch <- RecordEvent[PT]{Status: StatusError, Record: draft, Message: odooapi.Classify(err)}
		return
	}
	if strings.TrimSpace(apiKey) == "" {
		ch <- RecordEvent[PT]{Status: StatusError, Record: draft, Message: MsgCredentialMissing}
		return
	}

	payload := c.adapter.ToRemote(draft)
	resp, err := c.client.CreateBatch(ctx, apiKey, c.adapter.Path(), []map[string]any{payload})
	if err != nil {
		c.maybeEnqueue(ctx, uid, payload, err)
		ch <- RecordEvent[PT]{Status: StatusError, Record: draft, Message: odooapi.Classify(err)}
		return
	}

	raw, found := resp.FindByMobileUID(uid)
	if !found {
		ch <- RecordEvent[PT]{Status: StatusError, Record: draft, Message: MsgResponseIncomplete}
		return
	}
	confirmed, err := c.confirm(ctx, raw)
	if err != nil {
		ch <- RecordEvent[PT]{Status: StatusError, Record: draft, Message: MsgResponseIncomplete}
		return
	}
	if err := c.store.Promote(ctx, provisionalID, confirmed); err != nil {
		ch <- RecordEvent[PT]{Status: StatusError, Record: draft, Message: odooapi.Classify(err)}
		return
	}
	if c.queue != nil {
		// Confirmed outside queue replay; drop any stale queue entry.
		if err := c.queue.RemoveByMobileUID(ctx, uid); err != nil {
			c.logger.Warn("failed to drop queue entry after direct confirmation",
				"entity", c.adapter.EntityName(), "mobile_uid", uid, "error", err)
		}
	}
	c.logger.Info("creation confirmed", "entity", c.adapter.EntityName(),
		"provisional_id", provisionalID, "server_id", confirmed.SyncMeta().ID)
	ch <- RecordEvent[PT]{Status: StatusSuccess, Record: confirmed}
}

// UpdateLocation runs the pending-attempt-reconcile shape for a geo update on
// an existing record. Because the local write is the only user-visible
// effect, a failed server call degrades to Success with a cautionary message.
// The server call is skipped entirely when the record carries no mobile UID:
// there is no correlation key the server could match it by.
func (c *Creator[T, PT]) UpdateLocation(ctx context.Context, id int64, lat, lon float64) <-chan RecordEvent[PT] {
	ch := make(chan RecordEvent[PT], 4)
	go func() {
		defer close(ch)
		c.runLocationUpdate(ctx, ch, id, lat, lon)
	}()
	return ch
}

func (c *Creator[T, PT]) runLocationUpdate(ctx context.Context, ch chan<- RecordEvent[PT], id int64, lat, lon float64) {
	ch <- RecordEvent[PT]{Status: StatusLoading}

	locAdapter, ok := c.adapter.(LocationAdapter[T, PT])
	if !ok {
		ch <- RecordEvent[PT]{Status: StatusError,
			Message: "location updates not supported for " + c.adapter.EntityName()}
		return
	}
	rec, err := c.store.GetByID(ctx, id)
	if err != nil {
		ch <- RecordEvent[PT]{Status: StatusError, Message: odooapi.Classify(err)}
		return
	}
	if rec == nil {
		ch <- RecordEvent[PT]{Status: StatusError, Message: "record not found"}
		return
	}

	locAdapter.SetLocation(rec, lat, lon)
	meta := rec.SyncMeta()
	meta.LastModified = c.now()

	if meta.ID <= 0 && meta.MobileUID == "" {
		// Never synced: nothing exists on the server to update yet.
		if err := c.store.UpsertOne(ctx, rec); err != nil {
			ch <- RecordEvent[PT]{Status: StatusError, Message: odooapi.Classify(err)}
			return
		}
		ch <- RecordEvent[PT]{Status: StatusSuccess, Record: rec,
			Message: "location saved locally"}
		return
	}
	if meta.MobileUID == "" {
		// Server-originated record with no correlation key. The batch
		// endpoint upserts strictly by mobile UID, so posting a freshly
		// minted one would create a duplicate on the server instead of
		// updating this record. Keep the change local.
		if err := c.store.UpsertOne(ctx, rec); err != nil {
			ch <- RecordEvent[PT]{Status: StatusError, Message: odooapi.Classify(err)}
			return
		}
		ch <- RecordEvent[PT]{Status: StatusSuccess, Record: rec,
			Message: "location saved locally; server update pending"}
		return
	}
	if err := c.store.UpsertOne(ctx, rec); err != nil {
		ch <- RecordEvent[PT]{Status: StatusError, Message: odooapi.Classify(err)}
		return
	}

	apiKey, err := c.settings.APIKey(ctx)
	if err != nil || strings.TrimSpace(apiKey) == "" {
		ch <- RecordEvent[PT]{Status: StatusSuccess, Record: rec,
			Message: "location saved locally; server update pending"}
		return
	}
	resp, err := c.client.CreateBatch(ctx, apiKey, c.adapter.Path(),
		[]map[string]any{c.adapter.ToRemote(rec)})
	if err != nil {
		c.logger.Warn("location update not pushed", "entity", c.adapter.EntityName(),
			"id", meta.ID, "error", err)
		ch <- RecordEvent[PT]{Status: StatusSuccess, Record: rec,
			Message: "location saved locally; server update pending"}
		return
	}
	raw, found := resp.FindByMobileUID(meta.MobileUID)
	if !found {
		ch <- RecordEvent[PT]{Status: StatusSuccess, Record: rec,
			Message: "location saved locally; server update pending"}
		return
	}
	confirmed, err := c.confirm(ctx, raw)
	if err != nil {
		ch <- RecordEvent[PT]{Status: StatusSuccess, Record: rec,
			Message: "location saved locally; server update pending"}
		return
	}
	if err := c.store.Promote(ctx, meta.ID, confirmed); err != nil {
		ch <- RecordEvent[PT]{Status: StatusSuccess, Record: rec,
			Message: "location saved locally; server update pending"}
		return
	}
	ch <- RecordEvent[PT]{Status: StatusSuccess, Record: confirmed}
}

// provisionalID computes the next negative placeholder ID: -1 when no
// provisional records exist, otherwise one below the current minimum. IDs are
// strictly decreasing and never reused for the life of the local store.
func (c *Creator[T, PT]) provisionalID(ctx context.Context) (int64, error) {
	min, ok, err := c.store.MinID(ctx)
	if err != nil {
		return 0, err
	}
	if !ok || min >= 0 {
		return -1, nil
	}
	return min - 1, nil
}

// confirm converts a matched create-response item into a SYNCED domain record.
func (c *Creator[T, PT]) confirm(ctx context.Context, raw json.RawMessage) (PT, error) {
	confirmed, err := c.adapter.FromRemote(raw)
	if err != nil {
		return nil, err
	}
	if confirmed == nil {
		return nil, errors.New(MsgResponseIncomplete)
	}
	meta := confirmed.SyncMeta()
	meta.State = syncdb.StateSynced
	meta.LastModified = c.now()
	if err := c.adapter.Enrich(ctx, confirmed); err != nil {
		return nil, err
	}
	return confirmed, nil
}

// promoteFromQueue applies a creation confirmed through queue replay back to
// the local store, replacing the provisional record when one still exists.
func (c *Creator[T, PT]) promoteFromQueue(ctx context.Context, raw json.RawMessage, mobileUID string) error {
	confirmed, err := c.confirm(ctx, raw)
	if err != nil {
		return err
	}
	pending, err := c.store.GetByMobileUID(ctx, mobileUID)
	if err != nil {
		return err
	}
	if pending != nil && pending.SyncMeta().ID != confirmed.SyncMeta().ID {
		return c.store.Promote(ctx, pending.SyncMeta().ID, confirmed)
	}
	return c.store.UpsertOne(ctx, confirmed)
}

func (c *Creator[T, PT]) maybeEnqueue(ctx context.Context, uid string, payload map[string]any, cause error) {
	if c.queue == nil || !odooapi.Transient(cause) {
		return
	}
	if err := c.queue.EnqueuePayload(ctx, c.adapter.EntityName(), uid, payload); err != nil {
		c.logger.Warn("failed to enqueue creation for retry",
			"entity", c.adapter.EntityName(), "mobile_uid", uid, "error", err)
	}
}
