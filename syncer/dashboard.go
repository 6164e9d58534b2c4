package syncer

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Syncer is the per-entity surface the dashboard drives. Engine implements it
// for every registered entity type.
type Syncer interface {
	EntityName() string
	Sync(ctx context.Context) error
}

// Dashboard fans a refresh out to every entity syncer concurrently. One
// entity failing never stops the others; SyncAll reports failures per entity.
type Dashboard struct {
	syncers []Syncer
	logger  *slog.Logger
}

func NewDashboard(logger *slog.Logger, syncers ...Syncer) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dashboard{syncers: syncers, logger: logger}
}

// SyncAll refreshes every entity and returns a map of entity name to failure
// message for the ones that failed. An empty map means everything succeeded.
func (d *Dashboard) SyncAll(ctx context.Context) map[string]string {
	var mu sync.Mutex
	failures := make(map[string]string)

	var g errgroup.Group
	for _, s := range d.syncers {
		s := s
		g.Go(func() error {
			if err := s.Sync(ctx); err != nil {
				mu.Lock()
				failures[s.EntityName()] = err.Error()
				mu.Unlock()
				d.logger.Warn("entity refresh failed", "entity", s.EntityName(), "error", err)
			}
			// The failures map is the report; a non-nil return here would
			// only duplicate its first entry.
			return nil
		})
	}
	// Every closure returns nil; Wait only serves as the barrier.
	_ = g.Wait()
	return failures
}
