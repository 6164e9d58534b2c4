package odooapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListSendsAuthAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/customer", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Equal(t, "100", r.URL.Query().Get("limit"))
		require.Equal(t, "0", r.URL.Query().Get("offset"))
		require.Equal(t, "2026-03-01T10:00:00Z", r.URL.Query().Get("since"))
		fmt.Fprint(w, `{"total":1,"limit":100,"offset":0,"count":1,"data":[{"id":5}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	list, err := c.List(context.Background(), "test-key", "/customer", "2026-03-01T10:00:00Z", 100, 0)
	require.NoError(t, err)
	require.Equal(t, 1, list.Count)
	require.Len(t, list.Data, 1)
}

func TestListOmitsEmptySince(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.URL.Query()["since"]
		require.False(t, present)
		fmt.Fprint(w, `{"total":0,"limit":100,"offset":0,"count":0,"data":[]}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).List(context.Background(), "k", "/sales", "", 100, 0)
	require.NoError(t, err)
}

func TestListAllPages(t *testing.T) {
	total := DefaultPageLimit + 3
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		n := DefaultPageLimit
		if offset+n > total {
			n = total - offset
		}
		data := make([]json.RawMessage, n)
		for i := range data {
			data[i] = json.RawMessage(fmt.Sprintf(`{"id":%d}`, offset+i+1))
		}
		resp := ListResponse{Total: total, Limit: DefaultPageLimit, Offset: offset, Count: n, Data: data}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	items, err := NewClient(srv.URL).ListAll(context.Background(), "k", "/products", "")
	require.NoError(t, err)
	require.Len(t, items, total)
}

func TestListErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid API key","details":"key expired"}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).List(context.Background(), "bad", "/customer", "", 100, 0)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, "invalid API key", apiErr.Message)
}

func TestCreateBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/sales", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var items []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&items))
		require.Len(t, items, 1)
		require.Equal(t, "uid-1", items[0]["mobile_uid"])
		fmt.Fprint(w, `{"count":1,"data":[{"id":900,"mobile_uid":"uid-1","name":"SO900"}]}`)
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).CreateBatch(context.Background(), "k", "/sales",
		[]map[string]any{{"mobile_uid": "uid-1", "partner_id": 7}})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count)

	raw, ok := resp.FindByMobileUID("uid-1")
	require.True(t, ok)
	var item CreatedItem
	require.NoError(t, json.Unmarshal(raw, &item))
	require.Equal(t, int64(900), *item.ID)
}

func TestCreateBatchGuards(t *testing.T) {
	c := NewClient("http://unused")

	_, err := c.CreateBatch(context.Background(), "k", "/sales", nil)
	require.Error(t, err)

	big := make([]map[string]any, MaxBatchSize+1)
	for i := range big {
		big[i] = map[string]any{"mobile_uid": fmt.Sprintf("uid-%d", i)}
	}
	_, err = c.CreateBatch(context.Background(), "k", "/sales", big)
	require.Error(t, err)
}

func TestFindByMobileUID(t *testing.T) {
	resp := &CreateResponse{Data: []json.RawMessage{
		json.RawMessage(`{"id":10,"mobile_uid":"uid-a"}`),
		json.RawMessage(`{"id":null,"mobile_uid":"uid-b"}`),
		json.RawMessage(`{"id":0,"mobile_uid":"uid-c"}`),
	}}

	_, ok := resp.FindByMobileUID("uid-a")
	require.True(t, ok)

	// Echoed back without a usable server ID counts as not found.
	_, ok = resp.FindByMobileUID("uid-b")
	require.False(t, ok)
	_, ok = resp.FindByMobileUID("uid-c")
	require.False(t, ok)
	_, ok = resp.FindByMobileUID("uid-missing")
	require.False(t, ok)
}
