package syncer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSyncer struct {
	name  string
	err   error
	calls atomic.Int32
}

func (s *fakeSyncer) EntityName() string { return s.name }

func (s *fakeSyncer) Sync(ctx context.Context) error {
	s.calls.Add(1)
	return s.err
}

func TestDashboardSyncAll(t *testing.T) {
	ok1 := &fakeSyncer{name: "customer"}
	bad := &fakeSyncer{name: "sale", err: errors.New("server error - try again later")}
	ok2 := &fakeSyncer{name: "product"}

	d := NewDashboard(nil, ok1, bad, ok2)
	failures := d.SyncAll(context.Background())

	// One entity failing never blocks the others.
	require.Equal(t, int32(1), ok1.calls.Load())
	require.Equal(t, int32(1), ok2.calls.Load())
	require.Equal(t, map[string]string{"sale": "server error - try again later"}, failures)
}

func TestDashboardSyncAllClean(t *testing.T) {
	d := NewDashboard(nil, &fakeSyncer{name: "customer"}, &fakeSyncer{name: "visit"})
	failures := d.SyncAll(context.Background())
	require.Empty(t, failures)
}
