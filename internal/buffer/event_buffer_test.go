package buffer

import (
	"sync"
	"testing"
	"time"

	v1 "ibisync/pkg/api/v1"
)

func TestEventBuffer_Lifecycle(t *testing.T) {
	// Size 3
	buf := NewEventBuffer(3)

	// 1. Empty buffer: nothing to replay, no resync needed.
	events, ok := buf.GetSince(0)
	if !ok || len(events) != 0 {
		t.Error("empty buffer should return empty slice and ok=true")
	}

	// 2. Fill buffer [1, 2, 3]
	buf.Add(v1.SyncEvent{Seq: 1})
	buf.Add(v1.SyncEvent{Seq: 2})
	buf.Add(v1.SyncEvent{Seq: 3})

	// 3. A client that has seen nothing (lastSeq 0) is still contiguous with
	// oldest seq 1, so the full ring replays.
	events, ok = buf.GetSince(0)
	if !ok || len(events) != 3 {
		t.Errorf("GetSince(0) = (%d events, %v), want (3, true)", len(events), ok)
	}

	// 4. Wrap around: add 4. Buffer logical: [2, 3, 4]
	buf.Add(v1.SyncEvent{Seq: 4})

	// 5. Seq 1 fell out of the ring; a client at 0 has a gap now.
	_, ok = buf.GetSince(0)
	if ok {
		t.Error("GetSince(0) after wrap should demand a resync")
	}

	// 6. lastSeq 1 is exactly one behind oldest(2): still contiguous.
	events, ok = buf.GetSince(1)
	if !ok || len(events) != 3 {
		t.Errorf("GetSince(1) = (%d events, %v), want (3, true)", len(events), ok)
	}

	// 7. Partial replay (> 2 -> [3, 4])
	events, ok = buf.GetSince(2)
	if !ok {
		t.Error("GetSince(2) should be valid")
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events, got %d", len(events))
	}
	if events[0].Seq != 3 || events[1].Seq != 4 {
		t.Errorf("expected [3, 4], got [%d, %d]", events[0].Seq, events[1].Seq)
	}

	// 8. Up to date (> 4 -> [])
	events, ok = buf.GetSince(4)
	if !ok {
		t.Error("GetSince(4) should be valid")
	}
	if len(events) != 0 {
		t.Errorf("expected 0 events, got %d", len(events))
	}
}

func TestEventBuffer_Concurrency(t *testing.T) {
	buf := NewEventBuffer(1000)
	done := make(chan struct{})
	count := 5000

	// Writer
	go func() {
		for i := 1; i <= count; i++ {
			buf.Add(v1.SyncEvent{Seq: int64(i)})
			time.Sleep(2 * time.Microsecond)
		}
		close(done)
	}()

	// Readers
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			var lastSeq int64 = 0
			// Timeout safety
			timeout := time.After(5 * time.Second)

			for {
				select {
				case <-done:
					return
				case <-timeout:
					t.Error("Test timed out")
					return
				default:
					events, ok := buf.GetSince(lastSeq)
					if ok && len(events) > 0 {
						lastSeq = events[len(events)-1].Seq
					}
					if !ok {
						// A real client would refetch the listings here and
						// restart from the live stream.
						lastSeq = 0
					}
				}
			}
		}(i)
	}

	wg.Wait()
}
