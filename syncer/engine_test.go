package syncer

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldsales/go-fieldsync/odooapi"
	"github.com/fieldsales/go-fieldsync/syncdb"
)

func TestEngineFullSyncReplacesStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.settings.SetAPIKey(ctx, "key"))
	f.seedSynced(t, 1, "stale name")
	f.seedSynced(t, 2, "deleted on server")

	f.serveList([]string{
		`{"id":1,"name":"fresh name"}`,
		`{"id":3,"name":"brand new"}`,
	}, nil)

	eng := f.engine(t, false)
	events := drain(t, eng.SyncFromRemote(ctx))

	require.Equal(t, StatusLoading, events[0].Status)
	require.ElementsMatch(t, []int64{1, 2}, ids(events[0].Data))

	last := events[len(events)-1]
	require.Equal(t, StatusSuccess, last.Status)
	require.ElementsMatch(t, []int64{1, 3}, ids(last.Data))

	// Record 2 was removed in the same pass that upserted the rest.
	gone, err := f.store.GetByID(ctx, 2)
	require.NoError(t, err)
	require.Nil(t, gone)
	kept, err := f.store.GetByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "fresh name", kept.Name)
	require.Equal(t, syncdb.StateSynced, kept.State)
}

func TestEngineMissingCredential(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedSynced(t, 1, "cached")
	f.handle = func(w http.ResponseWriter, r *http.Request) {
		t.Error("server must not be called without a credential")
	}

	eng := f.engine(t, false)
	events := drain(t, eng.SyncFromRemote(ctx))

	last := events[len(events)-1]
	require.Equal(t, StatusError, last.Status)
	require.Equal(t, MsgCredentialMissing, last.Message)
	// Cached data rides along with the failure.
	require.ElementsMatch(t, []int64{1}, ids(last.Data))
}

func TestEngineServerErrorKeepsCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.settings.SetAPIKey(ctx, "key"))
	f.seedSynced(t, 1, "cached")
	f.serveStatus(500, "boom")

	eng := f.engine(t, false)
	events := drain(t, eng.SyncFromRemote(ctx))

	last := events[len(events)-1]
	require.Equal(t, StatusError, last.Status)
	require.Equal(t, odooapi.MsgServerError, last.Message)
	require.ElementsMatch(t, []int64{1}, ids(last.Data))

	count, err := f.store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestEngineIncrementalUpsertsWithoutDeleting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.settings.SetAPIKey(ctx, "key"))
	f.seedSynced(t, 1, "old record")
	require.NoError(t, f.settings.SetLastSyncTime(ctx, "item", "2026-03-09T12:00:00Z"))

	var sawSince []string
	f.serveList([]string{`{"id":2,"name":"changed since"}`}, &sawSince)

	eng := f.engine(t, true)
	events := drain(t, eng.SyncFromRemote(ctx))

	require.Equal(t, []string{"2026-03-09T12:00:00Z"}, sawSince)
	last := events[len(events)-1]
	require.Equal(t, StatusSuccess, last.Status)
	// Absence from an incremental page means unchanged, not deleted.
	require.ElementsMatch(t, []int64{1, 2}, ids(last.Data))

	since, err := f.settings.LastSyncTime(ctx, "item")
	require.NoError(t, err)
	require.Equal(t, f.now.Format(time.RFC3339), since)
}

func TestEngineStaleLedgerForcesFullSync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.settings.SetAPIKey(ctx, "key"))
	// Ledger survived a store wipe: the baseline it describes is gone.
	require.NoError(t, f.settings.SetLastSyncTime(ctx, "item", "2026-03-09T12:00:00Z"))

	var sawSince []string
	f.serveList([]string{`{"id":1,"name":"restored"}`}, &sawSince)

	eng := f.engine(t, true)
	events := drain(t, eng.SyncFromRemote(ctx))

	require.Equal(t, []string{""}, sawSince)
	require.Equal(t, StatusSuccess, events[len(events)-1].Status)

	count, err := f.store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestEngineSyncFullDiscardsBaseline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.settings.SetAPIKey(ctx, "key"))
	f.seedSynced(t, 1, "kept")
	f.seedSynced(t, 2, "deleted on server")
	require.NoError(t, f.settings.SetLastSyncTime(ctx, "item", "2026-03-09T12:00:00Z"))

	var sawSince []string
	f.serveList([]string{`{"id":1,"name":"kept"}`}, &sawSince)

	eng := f.engine(t, true)
	events := drain(t, eng.SyncFull(ctx))

	require.Equal(t, []string{""}, sawSince)
	last := events[len(events)-1]
	require.Equal(t, StatusSuccess, last.Status)
	require.ElementsMatch(t, []int64{1}, ids(last.Data))
}

func TestEngineDropsItemsWithoutServerID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.settings.SetAPIKey(ctx, "key"))

	f.serveList([]string{
		`{"name":"no id at all"}`,
		`{"id":9,"name":"valid"}`,
	}, nil)

	eng := f.engine(t, false)
	events := drain(t, eng.SyncFromRemote(ctx))

	last := events[len(events)-1]
	require.Equal(t, StatusSuccess, last.Status)
	require.ElementsMatch(t, []int64{9}, ids(last.Data))
}

func TestEngineSyncReportsTerminalError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.settings.SetAPIKey(ctx, "key"))
	f.serveStatus(401, "invalid key")

	eng := f.engine(t, false)
	err := eng.Sync(ctx)
	require.Error(t, err)
	require.Equal(t, odooapi.MsgAuthFailed, err.Error())

	f.serveList(nil, nil)
	require.NoError(t, eng.Sync(ctx))
}
