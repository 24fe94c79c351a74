package model

import "time"

type SyncType string

const (
	SyncITInventory SyncType = "IT_INVENTORY"
	SyncCeisa       SyncType = "CEISA"
)

type EntityType string

const (
	EntityInbound       EntityType = "INBOUND"
	EntityOutbound      EntityType = "OUTBOUND"
	EntityProduction    EntityType = "PRODUCTION"
	EntityStockMutation EntityType = "STOCK_MUTATION"
	EntityBCDocument    EntityType = "BC_DOCUMENT"
)

type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityNormal   Priority = "NORMAL"
	PriorityLow      Priority = "LOW"
)

// PriorityRank returns the serving order of a priority, lower first.
// Unknown values sort after LOW.
func PriorityRank(p Priority) int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

type QueueStatus string

const (
	QueuePending    QueueStatus = "PENDING"
	QueueInProgress QueueStatus = "IN_PROGRESS"
	QueueCompleted  QueueStatus = "COMPLETED"
	QueueFailed     QueueStatus = "FAILED"
	QueueCancelled  QueueStatus = "CANCELLED"
)

// SyncQueueItem is one unit of outbound work: a business entity that must be
// pushed to IT Inventory or CEISA. EntityData is passed through to the
// transport unexamined.
type SyncQueueItem struct {
	ID           string      `json:"id" gorm:"primaryKey;size:36"`
	SyncType     SyncType    `json:"sync_type" gorm:"size:32;index"`
	EntityType   EntityType  `json:"entity_type" gorm:"size:32;index"`
	EntityID     string      `json:"entity_id" gorm:"size:64;index"`
	EntityData   string      `json:"entity_data" gorm:"type:text"`
	Priority     Priority    `json:"priority" gorm:"size:16;index"`
	Status       QueueStatus `json:"status" gorm:"size:16;index"`
	RetryCount   int         `json:"retry_count" gorm:"default:0"`
	MaxRetries   int         `json:"max_retries"`
	LastAttempt  *time.Time  `json:"last_attempt,omitempty"`
	NextRetry    *time.Time  `json:"next_retry,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt    time.Time   `json:"created_at" gorm:"index"`
	CreatedBy    string      `json:"created_by" gorm:"size:64"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (SyncQueueItem) TableName() string {
	return "sync_queue_items"
}

// Terminal reports whether the item can never be selected again.
func (i *SyncQueueItem) Terminal() bool {
	return i.Status == QueueCompleted || i.Status == QueueCancelled
}
