package repository

import (
	"context"

	"ibisync/internal/model"

	"gorm.io/gorm"
)

// AuditInterface defines the interface for the sync operation trail.
type AuditInterface interface {
	Create(ctx context.Context, audit *model.SyncAudit) error
	ListByReference(ctx context.Context, reference string) ([]model.SyncAudit, error)
	List(ctx context.Context, offset, limit int) ([]model.SyncAudit, int64, error)
	PingContext(ctx context.Context) error
	WithTx(tx *gorm.DB) AuditInterface
}

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, audit *model.SyncAudit) error {
	return r.db.WithContext(ctx).Create(audit).Error
}

func (r *AuditRepository) ListByReference(ctx context.Context, reference string) ([]model.SyncAudit, error) {
	var audits []model.SyncAudit
	err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		Order("created_at DESC").
		Find(&audits).Error
	return audits, err
}

func (r *AuditRepository) List(ctx context.Context, offset, limit int) ([]model.SyncAudit, int64, error) {
	var audits []model.SyncAudit
	var total int64

	db := r.db.WithContext(ctx).Model(&model.SyncAudit{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Offset(offset).Limit(limit).Order("id DESC").Find(&audits).Error; err != nil {
		return nil, 0, err
	}

	return audits, total, nil
}

func (r *AuditRepository) PingContext(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *AuditRepository) WithTx(tx *gorm.DB) AuditInterface {
	return &AuditRepository{db: tx}
}
