package repository

import (
	"context"
	"errors"
	"time"

	"ibisync/internal/model"

	"gorm.io/gorm"
)

// queueOrder sorts the way operators see the queue: priority rank first,
// newest first within a rank.
const queueOrder = "FIELD(priority,'CRITICAL','HIGH','NORMAL','LOW'), created_at DESC"

// QueueInterface defines persistence for sync queue items.
type QueueInterface interface {
	Create(ctx context.Context, item *model.SyncQueueItem) error
	GetByID(ctx context.Context, id string) (*model.SyncQueueItem, error)
	List(ctx context.Context, status *model.QueueStatus) ([]model.SyncQueueItem, error)
	FetchProcessable(ctx context.Context, now time.Time, limit int) ([]model.SyncQueueItem, error)
	ClaimForAttempt(ctx context.Context, id string, attemptAt time.Time) (bool, error)
	Save(ctx context.Context, item *model.SyncQueueItem) error
	DeleteCompleted(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[model.QueueStatus]int64, error)
	WithTx(tx *gorm.DB) QueueInterface
}

type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

func (r *QueueRepository) Create(ctx context.Context, item *model.SyncQueueItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *QueueRepository) GetByID(ctx context.Context, id string) (*model.SyncQueueItem, error) {
	var item model.SyncQueueItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *QueueRepository) List(ctx context.Context, status *model.QueueStatus) ([]model.SyncQueueItem, error) {
	var items []model.SyncQueueItem
	query := r.db.WithContext(ctx)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	err := query.Order(queueOrder).Find(&items).Error
	return items, err
}

// FetchProcessable returns items eligible for an attempt: PENDING, or FAILED
// with retries remaining, whose backoff window has elapsed. Ordering matches
// List so processing serves CRITICAL work first.
func (r *QueueRepository) FetchProcessable(ctx context.Context, now time.Time, limit int) ([]model.SyncQueueItem, error) {
	var items []model.SyncQueueItem
	err := r.db.WithContext(ctx).
		Where("(status = ? OR (status = ? AND retry_count < max_retries))", model.QueuePending, model.QueueFailed).
		Where("(next_retry IS NULL OR next_retry <= ?)", now).
		Order(queueOrder).
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ClaimForAttempt flips an item to IN_PROGRESS with a conditional update.
// A false return means another pass claimed it first or its status moved;
// the caller must skip the item. This is what keeps attempts at-most-once
// across overlapping processing passes.
func (r *QueueRepository) ClaimForAttempt(ctx context.Context, id string, attemptAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.SyncQueueItem{}).
		Where("id = ? AND status IN ?", id, []model.QueueStatus{model.QueuePending, model.QueueFailed}).
		Updates(map[string]any{
			"status":       model.QueueInProgress,
			"last_attempt": attemptAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *QueueRepository) Save(ctx context.Context, item *model.SyncQueueItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *QueueRepository) DeleteCompleted(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ?", model.QueueCompleted).
		Delete(&model.SyncQueueItem{})
	return res.RowsAffected, res.Error
}

func (r *QueueRepository) CountByStatus(ctx context.Context) (map[model.QueueStatus]int64, error) {
	var rows []struct {
		Status model.QueueStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.SyncQueueItem{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[model.QueueStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *QueueRepository) WithTx(tx *gorm.DB) QueueInterface {
	return &QueueRepository{db: tx}
}
