package buffer

import (
	"sort"
	"sync"

	v1 "ibisync/pkg/api/v1"
)

// EventBuffer is a fixed-size ring of recent sync events, ordered by Seq.
// Reconnecting stream clients replay from their last seen Seq; when the gap
// is wider than the ring they must fall back to a full listing.
type EventBuffer struct {
	mu     sync.RWMutex
	events []v1.SyncEvent
	size   int
	head   int
	isFull bool
}

func NewEventBuffer(size int) *EventBuffer {
	if size <= 0 {
		size = 1000
	}
	return &EventBuffer{
		events: make([]v1.SyncEvent, size),
		size:   size,
		head:   0,
		isFull: false,
	}
}

func (b *EventBuffer) Add(ev v1.SyncEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[b.head] = ev
	b.head = (b.head + 1) % b.size
	if b.head == 0 {
		b.isFull = true
	}
}

// GetSince returns events with Seq > lastSeq. The second return is false
// when lastSeq predates the oldest buffered event and a resync is required.
func (b *EventBuffer) GetSince(lastSeq int64) ([]v1.SyncEvent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := b.head
	start := 0
	if b.isFull {
		count = b.size
		start = b.head
	}

	if count == 0 {
		return nil, true
	}

	oldestSeq := b.events[start].Seq
	if lastSeq < oldestSeq-1 {
		return nil, false
	}

	// Seqs are monotonic, so the ring is sorted logically; binary search the
	// first event past lastSeq.
	idx := sort.Search(count, func(i int) bool {
		physIdx := (start + i) % b.size
		return b.events[physIdx].Seq > lastSeq
	})

	if idx == count {
		return nil, true
	}

	result := make([]v1.SyncEvent, 0, count-idx)
	for i := idx; i < count; i++ {
		physIdx := (start + i) % b.size
		result = append(result, b.events[physIdx])
	}

	return result, true
}
