package service

import (
	"sync/atomic"
	"time"

	"ibisync/internal/buffer"
	"ibisync/internal/metrics"
	v1 "ibisync/pkg/api/v1"
	"ibisync/pkg/logger"
)

// Client is one connected event stream subscriber. CriticalOnly subscribers
// (alerting hooks) receive only events that demand operator attention.
type Client struct {
	Send         chan v1.SyncEvent
	CriticalOnly bool
}

// Hub fans sync events out to stream subscribers and keeps a replay buffer
// for reconnects. It is the notification seam between the queue/tracker core
// and whatever alerting sits outside.
type Hub struct {
	clients    map[*Client]bool
	Broadcast  chan v1.SyncEvent
	Register   chan *Client
	Unregister chan *Client

	observer  metrics.HubObserver
	heartbeat time.Duration
	buffer    *buffer.EventBuffer
	seq       atomic.Int64
}

func NewHub(observer metrics.HubObserver, heartbeat time.Duration, bufferSize int) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		Broadcast:  make(chan v1.SyncEvent, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		observer:   observer,
		heartbeat:  heartbeat,
		buffer:     buffer.NewEventBuffer(bufferSize),
	}
}

// Publish stamps the event with the next sequence number and timestamp,
// records it for replay and hands it to the broadcast loop. Safe for
// concurrent use; Run must be active or publishers will eventually block.
func (h *Hub) Publish(ev v1.SyncEvent) v1.SyncEvent {
	ev.Seq = h.seq.Add(1)
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.buffer.Add(ev)
	h.Broadcast <- ev
	return ev
}

// GetSince replays buffered events after lastSeq; false means the client
// fell too far behind and must resync from the queue/tracker listings.
func (h *Hub) GetSince(lastSeq int64) ([]v1.SyncEvent, bool) {
	return h.buffer.GetSince(lastSeq)
}

func (h *Hub) Run() {
	var ticker *time.Ticker
	var heartbeatC <-chan time.Time
	if h.heartbeat > 0 {
		ticker = time.NewTicker(h.heartbeat)
		heartbeatC = ticker.C
		defer ticker.Stop()
	}

	for {
		select {
		case client := <-h.Register:
			h.clients[client] = true
			h.observer.IncOnline()
		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.observer.DecOnline()
			}
		case <-heartbeatC:
			h.push(v1.SyncEvent{Type: v1.EventPing})
		case ev := <-h.Broadcast:
			h.observer.RecordEvent()
			h.push(ev)
		}
	}
}

func (h *Hub) push(ev v1.SyncEvent) {
	for client := range h.clients {
		if client.CriticalOnly && ev.Type != v1.EventPing && !ev.Critical() {
			continue
		}
		select {
		case client.Send <- ev:
		default:
			// Slow consumer, drop the connection rather than the event loop.
			logger.Warn("stream client too slow, disconnecting")
			close(client.Send)
			delete(h.clients, client)
			h.observer.DecOnline()
		}
	}
}
