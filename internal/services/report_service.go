package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/adminlove520/EasyJob/internal/cache"
	"github.com/adminlove520/EasyJob/internal/models"
	pgrepo "github.com/adminlove520/EasyJob/internal/repositories/postgres"
	"github.com/adminlove520/EasyJob/internal/utils"
)

const reportTTL = time.Hour

// QuestionResult is one row of the report breakdown.
type QuestionResult struct {
	Index    int    `json:"index"`
	Question string `json:"question"`
	Type     string `json:"type"`
	Answer   string `json:"answer"`
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// Report is the aggregated result of one interview session. Derived entirely
// from stored evaluations, so regeneration after a cache drop is cheap.
type Report struct {
	SessionID     uint   `json:"session_id"`
	JobPosition   string `json:"job_position,omitempty"`
	InterviewMode string `json:"interview_mode,omitempty"`
	Status        string `json:"status"`

	QuestionCount int `json:"question_count"`
	AnsweredCount int `json:"answered_count"`
	OverallScore  int `json:"overall_score"`
	AverageScore  int `json:"average_score"`

	Results     []QuestionResult `json:"results"`
	Suggestions []string         `json:"suggestions,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

type ReportService interface {
	// GetReport returns the session report, serving the cached copy when the
	// session content has not changed since it was generated. regenerate
	// bypasses both caches and rebuilds from the stored evaluations.
	GetReport(ctx context.Context, resumeID, sessionID uint, regenerate bool) (*Report, error)
}

type reportService struct {
	sessions pgrepo.SessionRepository
	cache    cache.Cache
	log      *logrus.Logger
}

func NewReportService(sessions pgrepo.SessionRepository, c cache.Cache, log *logrus.Logger) ReportService {
	if log == nil {
		log = logrus.New()
	}
	return &reportService{sessions: sessions, cache: c, log: log}
}

func (s *reportService) GetReport(ctx context.Context, resumeID, sessionID uint, regenerate bool) (*Report, error) {
	const op = "ReportService.GetReport"

	if !regenerate && s.cache != nil {
		var cached Report
		if hit, err := s.cache.GetJSON(ctx, cache.ReportKey(sessionID), &cached); err == nil && hit {
			return &cached, nil
		}
	}

	sess, err := s.sessions.GetByID(ctx, resumeID, sessionID)
	if err != nil {
		if utils.IsNotFound(err) {
			return nil, utils.E(utils.CodeNotFound, op, "interview session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load interview session", err)
	}

	// report_data is cleared on every answer append and on completion, so a
	// stored copy is always consistent with the session content.
	if !regenerate && len(sess.ReportData) > 0 {
		var stored Report
		if err := json.Unmarshal(sess.ReportData, &stored); err == nil {
			s.recache(ctx, sessionID, &stored)
			return &stored, nil
		}
		s.log.WithField("session_id", sessionID).Warn("stored report unreadable; regenerating")
	}

	report := buildReport(sess)

	raw, err := json.Marshal(report)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode report", err)
	}
	if err := s.sessions.SaveReport(ctx, sessionID, datatypes.JSON(raw)); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("report persist failed")
	}
	s.recache(ctx, sessionID, report)
	return report, nil
}

func (s *reportService) recache(ctx context.Context, sessionID uint, r *Report) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJSON(ctx, cache.ReportKey(sessionID), r, reportTTL); err != nil {
		s.log.WithError(err).Warn("report cache write failed")
	}
}

func buildReport(sess *models.InterviewSession) *Report {
	report := &Report{
		SessionID:     sess.ID,
		JobPosition:   sess.JobPosition,
		InterviewMode: sess.InterviewMode,
		Status:        string(sess.Status),
		QuestionCount: len(sess.Questions),
		AnsweredCount: len(sess.Answers),
		GeneratedAt:   time.Now().UTC(),
	}

	total := 0
	for _, a := range sess.Answers {
		result := QuestionResult{
			Index:    a.QuestionIndex,
			Answer:   a.Answer,
			Score:    a.Evaluation.Score,
			Feedback: a.Evaluation.Feedback,
		}
		if a.QuestionIndex < len(sess.Questions) {
			q := sess.Questions[a.QuestionIndex]
			result.Question = q.Question
			result.Type = q.Type
		}
		report.Results = append(report.Results, result)
		report.Suggestions = append(report.Suggestions, a.Evaluation.Suggestions...)
		total += a.Evaluation.Score
	}

	if len(sess.Answers) > 0 {
		report.AverageScore = total / len(sess.Answers)
	}
	if sess.OverallScore != nil {
		report.OverallScore = *sess.OverallScore
	} else {
		report.OverallScore = report.AverageScore
	}
	return report
}
