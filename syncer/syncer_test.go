package syncer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldsales/go-fieldsync/odooapi"
	"github.com/fieldsales/go-fieldsync/syncdb"
)

// item is the test entity: minimal fields plus a geo position so the
// location-update path is exercisable.
type item struct {
	syncdb.Meta
	Name string  `json:"name"`
	Lat  float64 `json:"lat,omitempty"`
	Lon  float64 `json:"lon,omitempty"`
}

func (i *item) SyncMeta() *syncdb.Meta { return &i.Meta }

type itemWire struct {
	ID        *int64  `json:"id"`
	MobileUID string  `json:"mobile_uid"`
	Name      string  `json:"name"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

type itemAdapter struct {
	incremental bool
}

func (itemAdapter) EntityName() string  { return "item" }
func (itemAdapter) Path() string        { return "/items" }
func (a itemAdapter) Incremental() bool { return a.incremental }

func (itemAdapter) FromRemote(raw json.RawMessage) (*item, error) {
	var w itemWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.ID == nil {
		return nil, nil
	}
	it := &item{Name: w.Name, Lat: w.Lat, Lon: w.Lon}
	it.ID = *w.ID
	it.MobileUID = w.MobileUID
	return it, nil
}

func (itemAdapter) ToRemote(it *item) map[string]any {
	payload := map[string]any{"mobile_uid": it.MobileUID, "name": it.Name}
	if it.Lat != 0 || it.Lon != 0 {
		payload["lat"] = it.Lat
		payload["lon"] = it.Lon
	}
	return payload
}

func (itemAdapter) Enrich(ctx context.Context, it *item) error { return nil }

func (itemAdapter) SetLocation(it *item, lat, lon float64) {
	it.Lat = lat
	it.Lon = lon
}

// fixture wires one item store against a swappable fake server.
type fixture struct {
	db       *sql.DB
	store    *syncdb.Store[item, *item]
	settings *syncdb.Settings
	qstore   *syncdb.QueueStore
	client   *odooapi.Client
	handle   http.HandlerFunc
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := syncdb.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := syncdb.NewStore[item, *item](db, "items")
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		store:    store,
		settings: syncdb.NewSettings(db),
		qstore:   syncdb.NewQueueStore(db),
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.handle = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no handler installed"}`, http.StatusInternalServerError)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.handle(w, r)
	}))
	t.Cleanup(srv.Close)
	f.client = odooapi.NewClient(srv.URL)
	return f
}

func (f *fixture) engine(t *testing.T, incremental bool) *Engine[item, *item] {
	t.Helper()
	e := NewEngine(f.store, f.client, f.settings, itemAdapter{incremental: incremental}, nil)
	e.now = func() time.Time { return f.now }
	return e
}

func (f *fixture) creator(t *testing.T, queue *Queue) *Creator[item, *item] {
	t.Helper()
	c := NewCreator(f.store, f.client, f.settings, itemAdapter{}, queue, nil)
	c.now = func() time.Time { return f.now }
	return c
}

func (f *fixture) queue(monitor ConnectivityMonitor) *Queue {
	q := NewQueue(f.qstore, f.client, f.settings, monitor, nil)
	q.now = func() time.Time { return f.now }
	return q
}

func (f *fixture) seedSynced(t *testing.T, id int64, name string) {
	t.Helper()
	it := &item{Name: name}
	it.ID = id
	it.State = syncdb.StateSynced
	it.LastModified = f.now.Add(-time.Hour)
	require.NoError(t, f.store.UpsertOne(context.Background(), it))
}

func (f *fixture) seedSyncedUID(t *testing.T, id int64, uid, name string) {
	t.Helper()
	it := &item{Name: name}
	it.ID = id
	it.MobileUID = uid
	it.State = syncdb.StateSynced
	it.LastModified = f.now.Add(-time.Hour)
	require.NoError(t, f.store.UpsertOne(context.Background(), it))
}

func (f *fixture) seedPending(t *testing.T, id int64, uid, name string) {
	t.Helper()
	it := &item{Name: name}
	it.ID = id
	it.MobileUID = uid
	it.State = syncdb.StatePending
	it.LastModified = f.now.Add(-time.Hour)
	require.NoError(t, f.store.UpsertOne(context.Background(), it))
}

// serveList installs a list handler returning the given items on every page
// request, recording the since parameter it saw.
func (f *fixture) serveList(items []string, sawSince *[]string) {
	f.handle = func(w http.ResponseWriter, r *http.Request) {
		if sawSince != nil {
			since := r.URL.Query().Get("since")
			*sawSince = append(*sawSince, since)
		}
		fmt.Fprintf(w, `{"total":%d,"limit":%d,"offset":0,"count":%d,"data":[%s]}`,
			len(items), odooapi.DefaultPageLimit, len(items), joinJSON(items))
	}
}

// serveCreate installs a create handler that assigns server IDs upward from
// nextID, echoing each posted item's mobile_uid and name.
func (f *fixture) serveCreate(nextID int64) {
	f.handle = func(w http.ResponseWriter, r *http.Request) {
		var posted []map[string]any
		if err := json.NewDecoder(r.Body).Decode(&posted); err != nil {
			http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
			return
		}
		out := make([]string, 0, len(posted))
		for _, p := range posted {
			name, _ := p["name"].(string)
			uid, _ := p["mobile_uid"].(string)
			out = append(out, fmt.Sprintf(`{"id":%d,"mobile_uid":%q,"name":%q}`, nextID, uid, name))
			nextID++
		}
		fmt.Fprintf(w, `{"count":%d,"data":[%s]}`, len(out), joinJSON(out))
	}
}

func (f *fixture) serveStatus(code int, message string) {
	f.handle = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		fmt.Fprintf(w, `{"error":%q}`, message)
	}
}

func joinJSON(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ","
		}
		out += it
	}
	return out
}

func drain[T any](t *testing.T, ch <-chan Event[T]) []Event[T] {
	t.Helper()
	var events []Event[T]
	for ev := range ch {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	return events
}

func drainRecords[T any](t *testing.T, ch <-chan RecordEvent[T]) []RecordEvent[T] {
	t.Helper()
	var events []RecordEvent[T]
	for ev := range ch {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	return events
}

func ids(recs []*item) []int64 {
	out := make([]int64, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
