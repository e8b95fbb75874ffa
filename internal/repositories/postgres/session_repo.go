package postgres

import (
	"context"
	"errors"

	"github.com/adminlove520/EasyJob/internal/models"
	"github.com/adminlove520/EasyJob/internal/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SessionStats are the per-user interview counters.
type SessionStats struct {
	Total     int64 `json:"total_interviews"`
	Completed int64 `json:"completed_interviews"`
	Active    int64 `json:"active_interviews"`
}

type SessionRepository interface {
	Create(ctx context.Context, s *models.InterviewSession) error
	GetByID(ctx context.Context, resumeID, sessionID uint) (*models.InterviewSession, error)
	ListByResume(ctx context.Context, resumeID uint) ([]models.InterviewSession, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]models.InterviewSession, error)

	// SaveAnswers replaces the answer list and clears the cached report,
	// which is stale once the interview content changes.
	SaveAnswers(ctx context.Context, sessionID uint, answers datatypes.JSONSlice[models.AnswerRecord]) error
	SaveQuestions(ctx context.Context, sessionID uint, questions datatypes.JSONSlice[models.QuestionRecord]) error

	// Complete marks the session completed. Completing an already-completed
	// session is a no-op success. A nil score leaves overall_score untouched.
	Complete(ctx context.Context, sessionID uint, overallScore *int) error

	SaveReport(ctx context.Context, sessionID uint, report datatypes.JSON) error
	ClearReport(ctx context.Context, sessionID uint) error

	ListCompletedWithoutScore(ctx context.Context, resumeID uint) ([]models.InterviewSession, error)
	SetOverallScore(ctx context.Context, sessionID uint, score int) error

	Delete(ctx context.Context, resumeID, sessionID uint) error
	StatsByOwner(ctx context.Context, ownerID uint) (SessionStats, error)
}

type sessionRepo struct {
	db *gorm.DB
}

func NewSessionRepo(db *gorm.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) Create(ctx context.Context, s *models.InterviewSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *sessionRepo) GetByID(ctx context.Context, resumeID, sessionID uint) (*models.InterviewSession, error) {
	var row models.InterviewSession
	err := r.db.WithContext(ctx).
		Where("id = ? AND resume_id = ?", sessionID, resumeID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *sessionRepo) ListByResume(ctx context.Context, resumeID uint) ([]models.InterviewSession, error) {
	var rows []models.InterviewSession
	err := r.db.WithContext(ctx).
		Where("resume_id = ?", resumeID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *sessionRepo) ListByOwner(ctx context.Context, ownerID uint) ([]models.InterviewSession, error) {
	var rows []models.InterviewSession
	err := r.db.WithContext(ctx).
		Joins("JOIN resumes ON resumes.id = interview_sessions.resume_id").
		Where("resumes.owner_id = ?", ownerID).
		Order("interview_sessions.created_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *sessionRepo) SaveAnswers(ctx context.Context, sessionID uint, answers datatypes.JSONSlice[models.AnswerRecord]) error {
	return r.db.WithContext(ctx).
		Model(&models.InterviewSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{
			"answers":     answers,
			"report_data": nil,
		}).Error
}

func (r *sessionRepo) SaveQuestions(ctx context.Context, sessionID uint, questions datatypes.JSONSlice[models.QuestionRecord]) error {
	return r.db.WithContext(ctx).
		Model(&models.InterviewSession{}).
		Where("id = ?", sessionID).
		Update("questions", questions).Error
}

func (r *sessionRepo) Complete(ctx context.Context, sessionID uint, overallScore *int) error {
	updates := map[string]any{
		"status":      models.SessionCompleted,
		"report_data": nil,
	}
	if overallScore != nil {
		updates["overall_score"] = *overallScore
	}
	return r.db.WithContext(ctx).
		Model(&models.InterviewSession{}).
		Where("id = ?", sessionID).
		Updates(updates).Error
}

func (r *sessionRepo) SaveReport(ctx context.Context, sessionID uint, report datatypes.JSON) error {
	return r.db.WithContext(ctx).
		Model(&models.InterviewSession{}).
		Where("id = ?", sessionID).
		Update("report_data", report).Error
}

func (r *sessionRepo) ClearReport(ctx context.Context, sessionID uint) error {
	return r.db.WithContext(ctx).
		Model(&models.InterviewSession{}).
		Where("id = ?", sessionID).
		Update("report_data", nil).Error
}

func (r *sessionRepo) ListCompletedWithoutScore(ctx context.Context, resumeID uint) ([]models.InterviewSession, error) {
	var rows []models.InterviewSession
	err := r.db.WithContext(ctx).
		Where("resume_id = ? AND status = ? AND overall_score IS NULL", resumeID, models.SessionCompleted).
		Find(&rows).Error
	return rows, err
}

func (r *sessionRepo) SetOverallScore(ctx context.Context, sessionID uint, score int) error {
	return r.db.WithContext(ctx).
		Model(&models.InterviewSession{}).
		Where("id = ?", sessionID).
		Update("overall_score", score).Error
}

func (r *sessionRepo) Delete(ctx context.Context, resumeID, sessionID uint) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND resume_id = ?", sessionID, resumeID).
		Delete(&models.InterviewSession{}).Error
}

func (r *sessionRepo) StatsByOwner(ctx context.Context, ownerID uint) (SessionStats, error) {
	var stats SessionStats
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&models.InterviewSession{}).
			Joins("JOIN resumes ON resumes.id = interview_sessions.resume_id").
			Where("resumes.owner_id = ?", ownerID)
	}

	if err := base().Count(&stats.Total).Error; err != nil {
		return stats, err
	}
	if err := base().Where("interview_sessions.status = ?", models.SessionCompleted).Count(&stats.Completed).Error; err != nil {
		return stats, err
	}
	err := base().Where("interview_sessions.status = ?", models.SessionActive).Count(&stats.Active).Error
	return stats, err
}
