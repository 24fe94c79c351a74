package repository

import (
	"context"
	"errors"

	"ibisync/internal/model"

	"gorm.io/gorm"
)

// ClientRepository validates API keys for the entity services pushing work
// into the queue.
type ClientRepository interface {
	ValidateAPIKey(ctx context.Context, apiKey string) (bool, error)
}

type APIClientRepository struct {
	db *gorm.DB
}

func NewAPIClientRepository(db *gorm.DB) *APIClientRepository {
	return &APIClientRepository{db: db}
}

func (r *APIClientRepository) ValidateAPIKey(ctx context.Context, apiKey string) (bool, error) {
	var client model.APIClient
	err := r.db.WithContext(ctx).
		Where("api_key = ? AND status = 1", apiKey).
		First(&client).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
