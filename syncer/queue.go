package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fieldsales/go-fieldsync/odooapi"
	"github.com/fieldsales/go-fieldsync/syncdb"
)

// Backoff bounds for queue replay.
const (
	BackoffBase = 30 * time.Second
	BackoffMax  = time.Hour
)

// Backoff returns the delay before the next replay attempt after retryCount
// failures: min(30s * 2^(retryCount+1), 1h). The first four delays are 60s,
// 120s, 240s and 480s.
func Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	d := BackoffBase << uint(retryCount+1)
	if d <= 0 || d > BackoffMax {
		return BackoffMax
	}
	return d
}

// ConnectivityMonitor reports whether the device currently has connectivity.
// Consulted synchronously before every processing pass.
type ConnectivityMonitor interface {
	IsCurrentlyOnline() bool
}

// OnlineFunc adapts a plain function to a ConnectivityMonitor.
type OnlineFunc func() bool

func (f OnlineFunc) IsCurrentlyOnline() bool { return f() }

// ProcessResult summarizes one queue processing pass.
type ProcessResult struct {
	SuccessCount int
	FailCount    int
	SkippedCount int
}

// promoteFunc applies a confirmed creation (raw response item correlated by
// mobile UID) back into the owning entity's local store.
type promoteFunc func(ctx context.Context, raw json.RawMessage, mobileUID string) error

type queueRoute struct {
	path    string
	promote promoteFunc
}

// Queue replays failed creations against the Odoo backend with bounded
// exponential backoff. Entries persist across restarts; replay relies on the
// server's upsert-by-mobile-uid semantics for idempotency.
type Queue struct {
	store    *syncdb.QueueStore
	client   *odooapi.Client
	settings *syncdb.Settings
	monitor  ConnectivityMonitor
	routes   map[string]queueRoute
	logger   *slog.Logger
	now      func() time.Time
}

// NewQueue wires the retry queue. monitor may be nil, in which case the queue
// assumes connectivity.
func NewQueue(store *syncdb.QueueStore, client *odooapi.Client, settings *syncdb.Settings,
	monitor ConnectivityMonitor, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		store:    store,
		client:   client,
		settings: settings,
		monitor:  monitor,
		routes:   make(map[string]queueRoute),
		logger:   logger,
		now:      time.Now,
	}
}

// register is called by each Creator so the queue knows the endpoint and the
// store promotion for that entity type.
func (q *Queue) register(entityType, path string, promote promoteFunc) {
	q.routes[entityType] = queueRoute{path: path, promote: promote}
}

// EnqueuePayload appends a failed creation payload for later replay.
// Idempotency is by mobile UID; callers must not double-enqueue the same
// logical creation.
func (q *Queue) EnqueuePayload(ctx context.Context, entityType, mobileUID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal queue payload: %w", err)
	}
	id, err := q.store.Enqueue(ctx, entityType, mobileUID, string(body), q.now())
	if err != nil {
		return err
	}
	q.logger.Info("creation queued for retry",
		"entity", entityType, "mobile_uid", mobileUID, "queue_id", id)
	return nil
}

// RemoveByMobileUID drops queue entries for a record confirmed through a path
// other than queue replay.
func (q *Queue) RemoveByMobileUID(ctx context.Context, mobileUID string) error {
	return q.store.DeleteByMobileUID(ctx, mobileUID)
}

// Entries returns the full queue contents, oldest first.
func (q *Queue) Entries(ctx context.Context) ([]syncdb.QueueEntry, error) {
	return q.store.All(ctx)
}

// ProcessQueue replays every eligible entry once. It returns a zero result
// without touching the queue when the device is offline or no credential is
// configured. Per-entry faults are captured into the entry's lastError and
// the pass continues; nothing throws past this method.
func (q *Queue) ProcessQueue(ctx context.Context) (ProcessResult, error) {
	var result ProcessResult

	if q.monitor != nil && !q.monitor.IsCurrentlyOnline() {
		return result, nil
	}
	apiKey, err := q.settings.APIKey(ctx)
	if err != nil {
		return result, err
	}
	if strings.TrimSpace(apiKey) == "" {
		return result, nil
	}

	// Scheduler step: promote FAILED entries whose backoff elapsed and whose
	// retry budget remains. Whatever stays FAILED afterwards is skipped.
	if _, err := q.store.Requeue(ctx, q.now()); err != nil {
		return result, err
	}
	skipped, err := q.store.CountByStatus(ctx, syncdb.QueueFailed)
	if err != nil {
		return result, err
	}
	result.SkippedCount = skipped

	pending, err := q.store.Pending(ctx)
	if err != nil {
		return result, err
	}
	for i := range pending {
		entry := &pending[i]
		if ctx.Err() != nil {
			break
		}
		if err := q.store.MarkProcessing(ctx, entry.ID); err != nil {
			q.logger.Warn("failed to mark queue entry", "queue_id", entry.ID, "error", err)
			result.FailCount++
			continue
		}
		if err := q.replay(ctx, apiKey, entry); err != nil {
			attemptAt := q.now()
			nextAt := attemptAt.Add(Backoff(entry.RetryCount))
			if markErr := q.store.MarkFailed(ctx, entry.ID, err.Error(), attemptAt, nextAt); markErr != nil {
				q.logger.Warn("failed to record replay failure", "queue_id", entry.ID, "error", markErr)
			}
			q.logger.Warn("queue replay failed", "entity", entry.EntityType,
				"mobile_uid", entry.MobileUID, "retry", entry.RetryCount+1, "error", err)
			result.FailCount++
			continue
		}
		if err := q.store.Delete(ctx, entry.ID); err != nil {
			q.logger.Warn("failed to delete replayed queue entry", "queue_id", entry.ID, "error", err)
		}
		result.SuccessCount++
	}

	q.logger.Info("queue processed", "succeeded", result.SuccessCount,
		"failed", result.FailCount, "skipped", result.SkippedCount)
	return result, nil
}

// replay re-issues the stored single-element batch create. Success requires
// the response to echo the entry's mobile UID with a server ID, matching the
// direct creation path.
func (q *Queue) replay(ctx context.Context, apiKey string, entry *syncdb.QueueEntry) error {
	route, ok := q.routes[entry.EntityType]
	if !ok {
		return fmt.Errorf("no endpoint registered for entity type %q", entry.EntityType)
	}
	var item map[string]any
	if err := json.Unmarshal([]byte(entry.Payload), &item); err != nil {
		return fmt.Errorf("failed to decode queued payload: %w", err)
	}
	resp, err := q.client.CreateBatch(ctx, apiKey, route.path, []map[string]any{item})
	if err != nil {
		return err
	}
	raw, found := resp.FindByMobileUID(entry.MobileUID)
	if !found {
		return errors.New(MsgResponseIncomplete)
	}
	if route.promote != nil {
		if err := route.promote(ctx, raw, entry.MobileUID); err != nil {
			// The server accepted the creation; the local promotion will be
			// reconciled by the next sync.
			q.logger.Warn("failed to promote replayed record locally",
				"entity", entry.EntityType, "mobile_uid", entry.MobileUID, "error", err)
		}
	}
	return nil
}
