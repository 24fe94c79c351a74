package repository

import (
	"context"
	"errors"

	"ibisync/internal/model"

	"gorm.io/gorm"
)

// CeisaInterface defines persistence for customs submission records.
type CeisaInterface interface {
	Create(ctx context.Context, record *model.CeisaStatusRecord) error
	GetByReference(ctx context.Context, reference string) (*model.CeisaStatusRecord, error)
	List(ctx context.Context) ([]model.CeisaStatusRecord, error)
	FetchNonTerminal(ctx context.Context, limit int) ([]model.CeisaStatusRecord, error)
	Save(ctx context.Context, record *model.CeisaStatusRecord) error
	WithTx(tx *gorm.DB) CeisaInterface
}

type CeisaRepository struct {
	db *gorm.DB
}

func NewCeisaRepository(db *gorm.DB) *CeisaRepository {
	return &CeisaRepository{db: db}
}

func (r *CeisaRepository) Create(ctx context.Context, record *model.CeisaStatusRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *CeisaRepository) GetByReference(ctx context.Context, reference string) (*model.CeisaStatusRecord, error) {
	var record model.CeisaStatusRecord
	if err := r.db.WithContext(ctx).Where("ceisa_reference = ?", reference).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *CeisaRepository) List(ctx context.Context) ([]model.CeisaStatusRecord, error) {
	var records []model.CeisaStatusRecord
	err := r.db.WithContext(ctx).Order("submission_date DESC").Find(&records).Error
	return records, err
}

// FetchNonTerminal returns records still awaiting a customs decision, oldest
// submissions first so long-waiting documents get polled before fresh ones.
func (r *CeisaRepository) FetchNonTerminal(ctx context.Context, limit int) ([]model.CeisaStatusRecord, error) {
	var records []model.CeisaStatusRecord
	err := r.db.WithContext(ctx).
		Where("status IN ?", []model.CeisaStatus{model.CeisaPending, model.CeisaSubmitted, model.CeisaProcessing}).
		Order("submission_date ASC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *CeisaRepository) Save(ctx context.Context, record *model.CeisaStatusRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *CeisaRepository) WithTx(tx *gorm.DB) CeisaInterface {
	return &CeisaRepository{db: tx}
}
