package service

import (
	"sync"
	"testing"
	"time"

	v1 "ibisync/pkg/api/v1"
)

type MockObserver struct{}

func (m *MockObserver) IncOnline()   {}
func (m *MockObserver) DecOnline()   {}
func (m *MockObserver) RecordEvent() {}

func TestHub_Concurrency(t *testing.T) {
	hub := NewHub(&MockObserver{}, 100*time.Millisecond, 512)
	go hub.Run()

	var wg sync.WaitGroup
	// Parameters for race detection
	clientCount := 50
	eventCount := 200

	clients := make([]*Client, clientCount)

	// 1. Concurrent Registration
	for i := 0; i < clientCount; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			c := &Client{
				Send: make(chan v1.SyncEvent, 50),
			}
			clients[idx] = c
			hub.Register <- c
		}(i)
	}
	wg.Wait()

	broadcastDone := make(chan struct{})

	// 2. Concurrent Publish
	go func() {
		for i := 0; i < eventCount; i++ {
			hub.Publish(v1.SyncEvent{
				Type:     v1.EventItemCompleted,
				ItemID:   "item-1",
				Priority: "NORMAL",
			})
			// Small delay to allow interleaving with unregister
			if i%10 == 0 {
				time.Sleep(time.Millisecond)
			}
		}
		close(broadcastDone)
	}()

	// 3. Concurrent Unregister (churn)
	go func() {
		for i := 0; i < clientCount/2; i++ {
			time.Sleep(2 * time.Millisecond)
			hub.Unregister <- clients[i]
		}
	}()

	// 4. Reader Consuming Loop
	var readWg sync.WaitGroup
	for i := 0; i < clientCount; i++ {
		readWg.Add(1)
		go func(c *Client) {
			defer readWg.Done()
			timeout := time.After(3 * time.Second)
			for {
				select {
				case _, ok := <-c.Send:
					if !ok {
						return // Channel closed by Hub (disconnect/unregister)
					}
				case <-broadcastDone:
					// Drain remaining
					for {
						select {
						case _, ok := <-c.Send:
							if !ok {
								return
							}
						default:
							return
						}
					}
				case <-timeout:
					return
				}
			}
		}(clients[i])
	}

	readWg.Wait()
}

func TestHub_PublishStampsSequence(t *testing.T) {
	hub := NewHub(&MockObserver{}, time.Hour, 16)
	go hub.Run()

	first := hub.Publish(v1.SyncEvent{Type: v1.EventItemCompleted})
	second := hub.Publish(v1.SyncEvent{Type: v1.EventItemFailed})

	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("seqs = %d, %d, want 1, 2", first.Seq, second.Seq)
	}
	if first.At.IsZero() {
		t.Error("Publish must stamp a timestamp")
	}

	events, ok := hub.GetSince(first.Seq)
	if !ok {
		t.Fatal("GetSince reported a gap on a fresh buffer")
	}
	if len(events) != 1 || events[0].Seq != second.Seq {
		t.Errorf("replay = %+v, want just seq 2", events)
	}
}

func TestHub_CriticalOnlyFiltering(t *testing.T) {
	hub := NewHub(&MockObserver{}, time.Hour, 16)
	go hub.Run()

	all := &Client{Send: make(chan v1.SyncEvent, 16)}
	critical := &Client{Send: make(chan v1.SyncEvent, 16), CriticalOnly: true}
	hub.Register <- all
	hub.Register <- critical

	hub.Publish(v1.SyncEvent{Type: v1.EventItemCompleted, Priority: "NORMAL"})
	hub.Publish(v1.SyncEvent{Type: v1.EventCeisaRejected, Reference: "CEISA-20260301-AAAA0001"})
	hub.Publish(v1.SyncEvent{Type: v1.EventItemFailed, Priority: "CRITICAL", ItemID: "item-9"})

	collect := func(c *Client, n int) []v1.SyncEvent {
		var out []v1.SyncEvent
		timeout := time.After(2 * time.Second)
		for len(out) < n {
			select {
			case ev := <-c.Send:
				out = append(out, ev)
			case <-timeout:
				t.Fatalf("timed out after %d events", len(out))
			}
		}
		return out
	}

	if got := collect(all, 3); len(got) != 3 {
		t.Errorf("plain client got %d events, want 3", len(got))
	}

	got := collect(critical, 2)
	if got[0].Type != v1.EventCeisaRejected || got[1].Type != v1.EventItemFailed {
		t.Errorf("critical client got %v, %v", got[0].Type, got[1].Type)
	}
	select {
	case ev := <-critical.Send:
		t.Errorf("critical client received extra event %v", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}
