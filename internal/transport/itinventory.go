package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"ibisync/internal/model"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const ITInventoryRootPrefix = "/ibis/itinventory/"

// BuildMirrorKey places an entity under its type in the shared mirror tree,
// e.g. /ibis/itinventory/INBOUND/IN-2024-0001.
func BuildMirrorKey(entityType model.EntityType, entityID string) string {
	return fmt.Sprintf("%s%s/%s", ITInventoryRootPrefix, entityType, entityID)
}

type EtcdKV interface {
	clientv3.KV
}

// ITInventoryMirror delivers transactions to the IT Inventory system by
// writing them into the shared etcd tree the inventory agent watches.
// Repeated deliveries of the same entity overwrite in place, so redelivery
// after a partial failure is safe.
type ITInventoryMirror struct {
	client EtcdKV
}

func NewITInventoryMirror(client EtcdKV) *ITInventoryMirror {
	return &ITInventoryMirror{client: client}
}

func (m *ITInventoryMirror) Deliver(ctx context.Context, d Delivery) error {
	val, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	key := BuildMirrorKey(d.EntityType, d.EntityID)
	if _, err := m.client.Put(ctx, key, string(val)); err != nil {
		return fmt.Errorf("mirror put %s: %w", key, err)
	}
	return nil
}

// PollStatus is not meaningful for the inventory mirror; a successful Put is
// the whole contract.
func (m *ITInventoryMirror) PollStatus(ctx context.Context, reference string) (PollResult, error) {
	return PollResult{}, ErrPollUnsupported
}

func (m *ITInventoryMirror) Health(ctx context.Context) error {
	_, err := m.client.Get(ctx, ITInventoryRootPrefix, clientv3.WithPrefix(), clientv3.WithCountOnly())
	return err
}
