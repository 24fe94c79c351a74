package model

import "time"

// SyncAudit records every operator-visible mutation of the queue and the
// CEISA tracker: who enqueued, retried, cancelled or submitted what.
type SyncAudit struct {
	ID         int64      `json:"id" gorm:"primaryKey"`
	Action     string     `json:"action" gorm:"size:32;index"`
	EntityType EntityType `json:"entity_type" gorm:"size:32"`
	EntityID   string     `json:"entity_id" gorm:"size:64;index"`
	Reference  string     `json:"reference" gorm:"size:64;index"` // queue item id or CEISA reference
	Detail     string     `json:"detail" gorm:"type:text"`
	Operator   string     `json:"operator" gorm:"size:64"`
	TraceID    string     `json:"trace_id" gorm:"size:36;index"`
	CreatedAt  time.Time  `json:"created_at" gorm:"index"`
}

const (
	AuditEnqueue = "ENQUEUE"
	AuditRetry   = "RETRY"
	AuditCancel  = "CANCEL"
	AuditClear   = "CLEAR_COMPLETED"
	AuditSubmit  = "CEISA_SUBMIT"
)
