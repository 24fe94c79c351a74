package v1

import "time"

type EventType string

const (
	EventPing          EventType = "ping"
	EventItemCompleted EventType = "item_completed"
	EventItemFailed    EventType = "item_failed"
	EventItemCancelled EventType = "item_cancelled"
	EventCeisaApproved EventType = "ceisa_approved"
	EventCeisaRejected EventType = "ceisa_rejected"
	EventCeisaFailed   EventType = "ceisa_failed"
)

// SyncEvent is the domain event the core emits for the alerting side:
// terminal queue outcomes and CEISA decisions. Seq is assigned by the hub
// and is strictly increasing, which lets reconnecting dashboards catch up.
type SyncEvent struct {
	Seq        int64     `json:"seq"`
	Type       EventType `json:"type"`
	ItemID     string    `json:"item_id,omitempty"`
	SyncType   string    `json:"sync_type,omitempty"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	Priority   string    `json:"priority,omitempty"`
	Reference  string    `json:"reference,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// Critical marks the events an alerting subscriber must never miss:
// CRITICAL-priority terminal failures and customs rejections.
func (e SyncEvent) Critical() bool {
	if e.Type == EventCeisaRejected {
		return true
	}
	return e.Type == EventItemFailed && e.Priority == "CRITICAL"
}
