package repository

import (
	"context"

	"murmur/internal/models"
	"murmur/internal/observability"

	"gorm.io/gorm"
)

// ReportRepository defines the interface for reader-report data operations
type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id uint) (*models.Report, error)
	List(ctx context.Context, status string, limit, offset int) ([]*models.Report, error)
	UpdateStatus(ctx context.Context, id uint, status string) error
}

type reportRepository struct {
	db      *gorm.DB
	metrics *observability.DatabaseMetrics
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db, metrics: observability.NewDatabaseMetrics(db)}
}

func (r *reportRepository) Create(ctx context.Context, report *models.Report) error {
	defer r.metrics.TrackQuery("insert", "reports")()
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *reportRepository) GetByID(ctx context.Context, id uint) (*models.Report, error) {
	var report models.Report
	defer r.metrics.TrackQuery("select", "reports")()
	if err := r.db.WithContext(ctx).First(&report, id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *reportRepository) List(ctx context.Context, status string, limit, offset int) ([]*models.Report, error) {
	var reports []*models.Report
	defer r.metrics.TrackQuery("select", "reports")()
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Limit(limit).Offset(offset).Find(&reports).Error
	if err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *reportRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	defer r.metrics.TrackQuery("update", "reports")()
	result := r.db.WithContext(ctx).
		Model(&models.Report{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
