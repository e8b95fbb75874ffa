package postgres

import (
	"context"

	"github.com/adminlove520/EasyJob/internal/models"
	"gorm.io/gorm"
)

type TranscriptRepository interface {
	Insert(ctx context.Context, msg *models.TranscriptMessage) error
	ListBySession(ctx context.Context, resumeID, sessionID uint, limit int) ([]models.TranscriptMessage, error)
	LatestN(ctx context.Context, resumeID uint, n int) ([]models.TranscriptMessage, error)
}

type transcriptRepo struct {
	db *gorm.DB
}

func NewTranscriptRepo(db *gorm.DB) TranscriptRepository {
	return &transcriptRepo{db: db}
}

func (r *transcriptRepo) Insert(ctx context.Context, msg *models.TranscriptMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *transcriptRepo) ListBySession(ctx context.Context, resumeID, sessionID uint, limit int) ([]models.TranscriptMessage, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows []models.TranscriptMessage
	err := r.db.WithContext(ctx).
		Where("resume_id = ? AND session_id = ?", resumeID, sessionID).
		Order("timestamp ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *transcriptRepo) LatestN(ctx context.Context, resumeID uint, n int) ([]models.TranscriptMessage, error) {
	if n <= 0 {
		n = 20
	}
	var rows []models.TranscriptMessage
	err := r.db.WithContext(ctx).
		Where("resume_id = ?", resumeID).
		Order("timestamp DESC").
		Limit(n).
		Find(&rows).Error
	return rows, err
}
