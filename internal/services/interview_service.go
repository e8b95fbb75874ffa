package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adminlove520/EasyJob/internal/cache"
	"github.com/adminlove520/EasyJob/internal/models"
	"github.com/adminlove520/EasyJob/internal/orchestrator"
	"github.com/adminlove520/EasyJob/internal/providers/llm"
	pgrepo "github.com/adminlove520/EasyJob/internal/repositories/postgres"
	"github.com/adminlove520/EasyJob/internal/utils"
)

const (
	defaultQuestionCount = 10
	minQuestionCount     = 5
	maxQuestionCount     = 20

	statsTTL = 30 * time.Second
)

// InterviewStats is the per-user dashboard payload.
type InterviewStats struct {
	pgrepo.SessionStats
	CompletionRate float64 `json:"completion_rate"`
}

// InterviewService is the server-side session contract. It satisfies the
// orchestrator's SessionStore, QuestionSupplier, and AnswerEvaluator, and
// carries the administrative operations the orchestrator does not own.
type InterviewService interface {
	orchestrator.SessionStore
	orchestrator.QuestionSupplier
	orchestrator.AnswerEvaluator

	GetSession(ctx context.Context, resumeID, sessionID uint) (*models.InterviewSession, error)
	// FollowUpQuestion generates a supplementary question once the preset
	// list is exhausted, appending it to the session's question list.
	FollowUpQuestion(ctx context.Context, resumeID, sessionID uint) (models.QuestionRecord, error)

	ListByOwner(ctx context.Context, ownerID uint) ([]models.InterviewSession, error)
	Stats(ctx context.Context, ownerID uint) (InterviewStats, error)
	CalculateMissingScores(ctx context.Context, resumeID uint) (int, error)
	CleanupDuplicates(ctx context.Context, resumeID uint) (int, error)
}

type interviewService struct {
	sessions pgrepo.SessionRepository
	resumes  pgrepo.ResumeRepository
	llm      llm.Provider
	cache    cache.Cache
	log      *logrus.Logger
}

func NewInterviewService(sessions pgrepo.SessionRepository, resumes pgrepo.ResumeRepository, provider llm.Provider, c cache.Cache, log *logrus.Logger) InterviewService {
	if log == nil {
		log = logrus.New()
	}
	return &interviewService{sessions: sessions, resumes: resumes, llm: provider, cache: c, log: log}
}

func clampQuestionCount(n int) int {
	switch {
	case n <= 0:
		return defaultQuestionCount
	case n < minQuestionCount:
		return minQuestionCount
	case n > maxQuestionCount:
		return maxQuestionCount
	}
	return n
}

// ListSessions returns the reconciled view: newest first, with older active
// sessions flagged possible_duplicate. The read itself never mutates status;
// the authoritative fix happens on the orchestrator's next resolving pass.
func (s *interviewService) ListSessions(ctx context.Context, resumeID uint) ([]models.InterviewSession, error) {
	const op = "InterviewService.ListSessions"

	rows, err := s.sessions.ListByResume(ctx, resumeID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list interview sessions", err)
	}
	return orchestrator.Reconcile(rows).Sessions, nil
}

// CreateSession provisions a session with freshly generated preset
// questions. When an active session already exists for the resume it is
// returned instead: near-simultaneous starts must converge on one session,
// not produce two.
func (s *interviewService) CreateSession(ctx context.Context, resumeID uint, cfg orchestrator.StartConfig) (*models.InterviewSession, error) {
	const op = "InterviewService.CreateSession"

	resume, err := s.resumes.GetByID(ctx, resumeID)
	if err != nil {
		if utils.IsNotFound(err) {
			return nil, utils.E(utils.CodeNotFound, op, "resume not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load resume", err)
	}

	existing, err := s.sessions.ListByResume(ctx, resumeID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list interview sessions", err)
	}
	if rec := orchestrator.Reconcile(existing); rec.NewestActive != nil {
		s.log.WithFields(logrus.Fields{
			"resume_id":  resumeID,
			"session_id": rec.NewestActive.ID,
		}).Info("adopting existing active session instead of creating a duplicate")
		return rec.NewestActive, nil
	}

	count := clampQuestionCount(cfg.QuestionCount)
	questions, err := s.llm.GenerateQuestions(ctx, json.RawMessage(resume.Content), cfg.JDContent, cfg.InterviewMode, count)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to generate interview questions", err)
	}

	row := &models.InterviewSession{
		ResumeID:      resumeID,
		JobPosition:   cfg.JobPosition,
		InterviewMode: cfg.InterviewMode,
		JDContent:     cfg.JDContent,
		Questions:     questions,
		Answers:       nil,
		Status:        models.SessionActive,
	}
	if err := s.sessions.Create(ctx, row); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create interview session", err)
	}

	s.invalidate(ctx, resumeID, row.ID)
	return row, nil
}

// EndSession marks the session completed. Idempotent: ending an
// already-completed session is a no-op success. Overall scoring is
// best-effort, matching the product rule that a finished interview must end
// even when the scorer is down.
func (s *interviewService) EndSession(ctx context.Context, resumeID, sessionID uint) error {
	const op = "InterviewService.EndSession"

	sess, err := s.sessions.GetByID(ctx, resumeID, sessionID)
	if err != nil {
		if utils.IsNotFound(err) {
			return utils.E(utils.CodeNotFound, op, "interview session not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to load interview session", err)
	}
	if sess.Status.Terminal() {
		return nil
	}

	var scorePtr *int
	if len(sess.Answers) > 0 {
		score, scoreErr := s.llm.OverallScore(ctx, sess.Questions, sess.Answers)
		if scoreErr != nil {
			s.log.WithError(scoreErr).WithField("session_id", sessionID).
				Warn("overall score unavailable; ending session without one")
		} else {
			scorePtr = &score
		}
	}

	if err := s.sessions.Complete(ctx, sessionID, scorePtr); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to complete interview session", err)
	}

	s.invalidate(ctx, resumeID, sessionID)
	return nil
}

func (s *interviewService) DeleteSession(ctx context.Context, resumeID, sessionID uint) error {
	const op = "InterviewService.DeleteSession"

	if _, err := s.sessions.GetByID(ctx, resumeID, sessionID); err != nil {
		if utils.IsNotFound(err) {
			return utils.E(utils.CodeNotFound, op, "interview session not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to load interview session", err)
	}
	if err := s.sessions.Delete(ctx, resumeID, sessionID); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to delete interview session", err)
	}

	s.invalidate(ctx, resumeID, sessionID)
	return nil
}

func (s *interviewService) GetSession(ctx context.Context, resumeID, sessionID uint) (*models.InterviewSession, error) {
	const op = "InterviewService.GetSession"

	sess, err := s.sessions.GetByID(ctx, resumeID, sessionID)
	if err != nil {
		if utils.IsNotFound(err) {
			return nil, utils.E(utils.CodeNotFound, op, "interview session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load interview session", err)
	}
	return sess, nil
}

// NextQuestion serves the stored question at the current index and fails
// with ErrNoMoreQuestions once the preset list is exhausted; supplementary
// questions go through FollowUpQuestion explicitly.
func (s *interviewService) NextQuestion(ctx context.Context, resumeID, sessionID uint) (models.QuestionRecord, error) {
	const op = "InterviewService.NextQuestion"

	sess, err := s.sessions.GetByID(ctx, resumeID, sessionID)
	if err != nil {
		if utils.IsNotFound(err) {
			return models.QuestionRecord{}, orchestrator.ErrSessionNotFound
		}
		return models.QuestionRecord{}, utils.E(utils.CodeInternal, op, "failed to load interview session", err)
	}

	idx := sess.CurrentQuestionIndex()
	if idx >= len(sess.Questions) {
		return models.QuestionRecord{}, orchestrator.ErrNoMoreQuestions
	}
	return sess.Questions[idx], nil
}

func (s *interviewService) FollowUpQuestion(ctx context.Context, resumeID, sessionID uint) (models.QuestionRecord, error) {
	const op = "InterviewService.FollowUpQuestion"

	sess, err := s.sessions.GetByID(ctx, resumeID, sessionID)
	if err != nil {
		if utils.IsNotFound(err) {
			return models.QuestionRecord{}, utils.E(utils.CodeNotFound, op, "interview session not found", err)
		}
		return models.QuestionRecord{}, utils.E(utils.CodeInternal, op, "failed to load interview session", err)
	}
	if sess.Status.Terminal() {
		return models.QuestionRecord{}, utils.E(utils.CodeConflict, op, "interview session already completed", orchestrator.ErrSessionCompleted)
	}

	resume, err := s.resumes.GetByID(ctx, resumeID)
	if err != nil {
		return models.QuestionRecord{}, utils.E(utils.CodeInternal, op, "failed to load resume", err)
	}

	history := make([]llm.Exchange, 0, len(sess.Answers))
	for _, a := range sess.Answers {
		if a.QuestionIndex < len(sess.Questions) {
			history = append(history, llm.Exchange{
				Question: sess.Questions[a.QuestionIndex].Question,
				Answer:   a.Answer,
			})
		}
	}

	q, err := s.llm.NextQuestion(ctx, history, json.RawMessage(resume.Content))
	if err != nil {
		return models.QuestionRecord{}, utils.E(utils.CodeUnavailable, op, "failed to generate follow-up question", err)
	}
	q.Index = len(sess.Questions)

	questions := append(sess.Questions, q)
	if err := s.sessions.SaveQuestions(ctx, sessionID, questions); err != nil {
		return models.QuestionRecord{}, utils.E(utils.CodeInternal, op, "failed to append follow-up question", err)
	}
	return q, nil
}

// SubmitAnswer evaluates one answer and appends it exactly once, in index
// order. A retry of the most recently appended (answer, index) pair returns
// the stored evaluation without re-appending, so clients that lost the
// response can safely resubmit.
func (s *interviewService) SubmitAnswer(ctx context.Context, resumeID, sessionID uint, answer string, questionIndex int) (models.Evaluation, error) {
	const op = "InterviewService.SubmitAnswer"

	if answer == "" {
		return models.Evaluation{}, utils.E(utils.CodeInvalidArgument, op, "answer is required", nil)
	}

	sess, err := s.sessions.GetByID(ctx, resumeID, sessionID)
	if err != nil {
		if utils.IsNotFound(err) {
			return models.Evaluation{}, orchestrator.ErrSessionNotFound
		}
		return models.Evaluation{}, utils.E(utils.CodeInternal, op, "failed to load interview session", err)
	}
	if sess.Status.Terminal() {
		return models.Evaluation{}, orchestrator.ErrSessionCompleted
	}
	if questionIndex >= len(sess.Questions) {
		return models.Evaluation{}, utils.E(utils.CodeInvalidArgument, op, "question index out of range", nil)
	}

	// Exactly-once: a replay of the last accepted submission is answered
	// from the stored record.
	if n := len(sess.Answers); questionIndex == n-1 && sess.Answers[n-1].Answer == answer {
		return sess.Answers[n-1].Evaluation, nil
	}
	if questionIndex != len(sess.Answers) {
		return models.Evaluation{}, utils.E(utils.CodeConflict, op, "answers must be submitted in question order", nil)
	}

	resume, err := s.resumes.GetByID(ctx, resumeID)
	if err != nil {
		return models.Evaluation{}, utils.E(utils.CodeInternal, op, "failed to load resume", err)
	}

	eval, err := s.llm.EvaluateAnswer(ctx, sess.Questions[questionIndex].Question, answer, json.RawMessage(resume.Content))
	if err != nil {
		return models.Evaluation{}, utils.E(utils.CodeUnavailable, op, "failed to evaluate answer", err)
	}

	answers := append(sess.Answers, models.AnswerRecord{
		Answer:        answer,
		Evaluation:    eval,
		QuestionIndex: questionIndex,
	})
	if err := s.sessions.SaveAnswers(ctx, sessionID, answers); err != nil {
		return models.Evaluation{}, utils.E(utils.CodeInternal, op, "failed to persist answer", err)
	}

	s.invalidate(ctx, resumeID, sessionID)
	return eval, nil
}

func (s *interviewService) ListByOwner(ctx context.Context, ownerID uint) ([]models.InterviewSession, error) {
	const op = "InterviewService.ListByOwner"

	rows, err := s.sessions.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list interview sessions", err)
	}
	return rows, nil
}

func (s *interviewService) Stats(ctx context.Context, ownerID uint) (InterviewStats, error) {
	const op = "InterviewService.Stats"

	var stats InterviewStats
	if s.cache != nil {
		if hit, err := s.cache.GetJSON(ctx, cache.StatsKey(ownerID), &stats); err == nil && hit {
			return stats, nil
		}
	}

	counts, err := s.sessions.StatsByOwner(ctx, ownerID)
	if err != nil {
		return stats, utils.E(utils.CodeInternal, op, "failed to count interview sessions", err)
	}
	stats.SessionStats = counts
	if counts.Total > 0 {
		stats.CompletionRate = float64(counts.Completed) / float64(counts.Total) * 100
	}

	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, cache.StatsKey(ownerID), stats, statsTTL)
	}
	return stats, nil
}

// CalculateMissingScores backfills overall scores for completed sessions
// that ended while the scorer was unavailable.
func (s *interviewService) CalculateMissingScores(ctx context.Context, resumeID uint) (int, error) {
	const op = "InterviewService.CalculateMissingScores"

	rows, err := s.sessions.ListCompletedWithoutScore(ctx, resumeID)
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to list unscored sessions", err)
	}

	updated := 0
	for i := range rows {
		sess := &rows[i]
		if len(sess.Answers) == 0 {
			continue
		}
		score, err := s.llm.OverallScore(ctx, sess.Questions, sess.Answers)
		if err != nil {
			s.log.WithError(err).WithField("session_id", sess.ID).Warn("score backfill failed")
			continue
		}
		if score <= 0 {
			continue
		}
		if err := s.sessions.SetOverallScore(ctx, sess.ID, score); err != nil {
			s.log.WithError(err).WithField("session_id", sess.ID).Warn("score backfill persist failed")
			continue
		}
		updated++
	}
	return updated, nil
}

// CleanupDuplicates deletes empty duplicate active sessions, keeping the
// newest. Sessions that already collected answers are never deleted here;
// the resolving pass finalizes them instead.
func (s *interviewService) CleanupDuplicates(ctx context.Context, resumeID uint) (int, error) {
	const op = "InterviewService.CleanupDuplicates"

	rows, err := s.sessions.ListByResume(ctx, resumeID)
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to list interview sessions", err)
	}

	cleaned := 0
	for _, dup := range orchestrator.Reconcile(rows).Duplicates {
		if len(dup.Answers) > 0 {
			continue
		}
		if err := s.sessions.Delete(ctx, resumeID, dup.ID); err != nil {
			s.log.WithError(err).WithField("session_id", dup.ID).Warn("duplicate cleanup failed")
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		s.invalidate(ctx, resumeID, 0)
	}
	return cleaned, nil
}

// invalidate drops the caches that depend on a session's content.
func (s *interviewService) invalidate(ctx context.Context, resumeID, sessionID uint) {
	if s.cache == nil {
		return
	}
	keys := []string{cache.SessionListKey(resumeID)}
	if sessionID != 0 {
		keys = append(keys, cache.ReportKey(sessionID))
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.WithError(err).Warn("cache invalidation failed")
	}
}
