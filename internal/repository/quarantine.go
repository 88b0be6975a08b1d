package repository

import (
	"context"

	"murmur/internal/models"
	"murmur/internal/observability"

	"gorm.io/gorm"
)

// QuarantineRepository defines the interface for quarantined-item data operations
type QuarantineRepository interface {
	Create(ctx context.Context, item *models.QuarantinedItem) error
	GetByID(ctx context.Context, id uint) (*models.QuarantinedItem, error)
	List(ctx context.Context, limit, offset int) ([]*models.QuarantinedItem, error)
	Delete(ctx context.Context, id uint) error
}

type quarantineRepository struct {
	db      *gorm.DB
	metrics *observability.DatabaseMetrics
}

// NewQuarantineRepository creates a new quarantine repository
func NewQuarantineRepository(db *gorm.DB) QuarantineRepository {
	return &quarantineRepository{db: db, metrics: observability.NewDatabaseMetrics(db)}
}

func (r *quarantineRepository) Create(ctx context.Context, item *models.QuarantinedItem) error {
	defer r.metrics.TrackQuery("insert", "quarantined_items")()
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *quarantineRepository) GetByID(ctx context.Context, id uint) (*models.QuarantinedItem, error) {
	var item models.QuarantinedItem
	defer r.metrics.TrackQuery("select", "quarantined_items")()
	if err := r.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *quarantineRepository) List(ctx context.Context, limit, offset int) ([]*models.QuarantinedItem, error) {
	var items []*models.QuarantinedItem
	defer r.metrics.TrackQuery("select", "quarantined_items")()
	err := r.db.WithContext(ctx).
		Order("flagged_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *quarantineRepository) Delete(ctx context.Context, id uint) error {
	defer r.metrics.TrackQuery("delete", "quarantined_items")()
	result := r.db.WithContext(ctx).Delete(&models.QuarantinedItem{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
