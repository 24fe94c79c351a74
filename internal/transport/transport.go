package transport

import (
	"context"
	"errors"

	"ibisync/internal/model"
)

// Delivery is one outbound payload. For CEISA submissions Reference carries
// the generated CEISA reference; IT Inventory deliveries leave it empty.
type Delivery struct {
	SyncType   model.SyncType   `json:"sync_type"`
	EntityType model.EntityType `json:"entity_type"`
	EntityID   string           `json:"entity_id"`
	Reference  string           `json:"reference,omitempty"`
	Payload    string           `json:"payload"`
}

// ExternalStatus is the customs side's answer to a status poll.
type ExternalStatus string

const (
	StatusProcessing ExternalStatus = "PROCESSING"
	StatusApproved   ExternalStatus = "APPROVED"
	StatusRejected   ExternalStatus = "REJECTED"
)

// PollResult carries the polled status plus the rejection reason when the
// customs system rejected the document.
type PollResult struct {
	Status ExternalStatus
	Reason string
}

var ErrPollUnsupported = errors.New("transport does not support status polling")

// Transport is the delivery capability the queue and the tracker depend on.
// Implementations decide the protocol; callers only see success or failure.
type Transport interface {
	Deliver(ctx context.Context, d Delivery) error
	PollStatus(ctx context.Context, reference string) (PollResult, error)
}
