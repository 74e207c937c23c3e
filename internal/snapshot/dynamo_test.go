package snapshot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo answers GetItem, PutItem and DeleteItem for a single table keyed
// by the "key" string attribute.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]json.RawMessage
}

type dynamoRequest struct {
	TableName string                       `json:"TableName"`
	Key       map[string]map[string]string `json:"Key"`
	Item      json.RawMessage              `json:"Item"`
}

func (f *fakeDynamo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req dynamoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/x-amz-json-1.0")
	target := r.Header.Get("X-Amz-Target")
	switch {
	case strings.HasSuffix(target, ".PutItem"):
		var item map[string]map[string]string
		_ = json.Unmarshal(req.Item, &item)
		f.items[item["key"]["S"]] = req.Item
		w.Write([]byte(`{}`))
	case strings.HasSuffix(target, ".GetItem"):
		item, ok := f.items[req.Key["key"]["S"]]
		if !ok {
			w.Write([]byte(`{}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]json.RawMessage{"Item": item})
	case strings.HasSuffix(target, ".DeleteItem"):
		delete(f.items, req.Key["key"]["S"])
		w.Write([]byte(`{}`))
	default:
		http.Error(w, "unsupported "+target, http.StatusBadRequest)
	}
}

func newTestDynamoStore(t *testing.T) *DynamoStore {
	t.Helper()
	srv := httptest.NewServer(&fakeDynamo{items: make(map[string]json.RawMessage)})
	t.Cleanup(srv.Close)

	store, err := NewDynamoStore(context.Background(), DynamoOptions{
		Region:   "us-east-1",
		ID:       "test",
		Secret:   "test",
		Endpoint: srv.URL,
		Table:    "canvas_snapshots",
	})
	require.NoError(t, err)
	return store
}

func TestDynamoStoreRoundTrip(t *testing.T) {
	store := newTestDynamoStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, Key("r"))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, Key("r"), `{"data":"AAAA","settings":null}`, time.Hour))
	got, err := store.Get(ctx, Key("r"))
	require.NoError(t, err)
	assert.Equal(t, `{"data":"AAAA","settings":null}`, got)

	require.NoError(t, store.Delete(ctx, Key("r")))
	_, err = store.Get(ctx, Key("r"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDynamoStoreExpiredItem(t *testing.T) {
	store := newTestDynamoStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, Key("r"), "AAAA", time.Minute))

	store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err := store.Get(ctx, Key("r"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCoordinatorOverDynamo(t *testing.T) {
	c := NewCoordinator(newTestDynamoStore(t), time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, "r", Snapshot{Data: json.RawMessage(`"AAAA"`)}))
	require.NoError(t, c.SaveSettings(ctx, "r", json.RawMessage(`{"grid":true}`)))

	snap, err := c.Load(ctx, "r")
	require.NoError(t, err)
	assert.JSONEq(t, `"AAAA"`, string(snap.Data))
	assert.JSONEq(t, `{"grid":true}`, string(snap.Settings))
}
