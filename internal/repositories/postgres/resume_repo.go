package postgres

import (
	"context"
	"errors"

	"github.com/adminlove520/EasyJob/internal/models"
	"github.com/adminlove520/EasyJob/internal/utils"
	"gorm.io/gorm"
)

type ResumeRepository interface {
	Insert(ctx context.Context, r *models.Resume) error
	Update(ctx context.Context, r *models.Resume) error
	GetByID(ctx context.Context, id uint) (*models.Resume, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]models.Resume, error)
	Delete(ctx context.Context, id uint) error
}

type resumeRepo struct {
	db *gorm.DB
}

func NewResumeRepo(db *gorm.DB) ResumeRepository {
	return &resumeRepo{db: db}
}

func (r *resumeRepo) Insert(ctx context.Context, row *models.Resume) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *resumeRepo) Update(ctx context.Context, row *models.Resume) error {
	return r.db.WithContext(ctx).Save(row).Error
}

func (r *resumeRepo) GetByID(ctx context.Context, id uint) (*models.Resume, error) {
	var row models.Resume
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *resumeRepo) ListByOwner(ctx context.Context, ownerID uint) ([]models.Resume, error) {
	var rows []models.Resume
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *resumeRepo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Resume{}).Error
}
