package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ibisync/internal/model"
	v1 "ibisync/pkg/api/v1"
	"ibisync/pkg/logger"
)

func init() {
	logger.InitLogger("test")
}

func TestHandleEvent_DropsStaleSequences(t *testing.T) {
	c := NewSyncClient("http://localhost", "key")
	defer c.Close()

	var seen []int64
	record := func(ev v1.SyncEvent) { seen = append(seen, ev.Seq) }

	c.handleEvent(v1.SyncEvent{Seq: 1}, record)
	c.handleEvent(v1.SyncEvent{Seq: 2}, record)
	c.handleEvent(v1.SyncEvent{Seq: 2}, record) // duplicate
	c.handleEvent(v1.SyncEvent{Seq: 1}, record) // replay
	c.handleEvent(v1.SyncEvent{Seq: 3}, record)

	if len(seen) != 3 {
		t.Fatalf("delivered %d events, want 3", len(seen))
	}
	for i, want := range []int64{1, 2, 3} {
		if seen[i] != want {
			t.Errorf("event[%d].Seq = %d, want %d", i, seen[i], want)
		}
	}
}

func TestEnqueue_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sync/queue" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-Ibis-Key"); got != "svc-key" {
			t.Errorf("X-Ibis-Key = %q", got)
		}

		var in EnqueueInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("bad body: %v", err)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"item": model.SyncQueueItem{
				ID:       "generated-id",
				SyncType: model.SyncType(in.SyncType),
				EntityID: in.EntityID,
				Status:   model.QueuePending,
			},
		})
	}))
	defer srv.Close()

	c := NewSyncClient(srv.URL, "svc-key")
	defer c.Close()

	item, err := c.Enqueue(context.Background(), EnqueueInput{
		SyncType:   "IT_INVENTORY",
		EntityType: "INBOUND",
		EntityID:   "IN-001",
		EntityData: "{}",
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if item.ID != "generated-id" || item.Status != model.QueuePending {
		t.Errorf("item = %+v", item)
	}
}

func TestDoJSON_SurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "no retries remaining"})
	}))
	defer srv.Close()

	c := NewSyncClient(srv.URL, "svc-key")
	defer c.Close()

	_, err := c.GetItem(context.Background(), "item-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "no retries remaining") || !strings.Contains(err.Error(), "409") {
		t.Errorf("error lost the API detail: %v", err)
	}
}
