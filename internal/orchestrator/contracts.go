package orchestrator

import (
	"context"
	"time"

	"github.com/adminlove520/EasyJob/internal/models"
)

// StartConfig is the immutable configuration captured when a session is
// created. SessionID, when non-zero, asks the orchestrator to resume that
// specific session instead of resolving one.
type StartConfig struct {
	SessionID     uint   `json:"session_id,omitempty"`
	JobPosition   string `json:"job_position,omitempty"`
	InterviewMode string `json:"interview_mode,omitempty"` // comprehensive|technical|behavioral
	JDContent     string `json:"jd_content,omitempty"`
	QuestionCount int    `json:"question_count,omitempty"`
}

// SessionStore is the durable source of truth the orchestrator synchronizes
// against on every resolving pass.
type SessionStore interface {
	ListSessions(ctx context.Context, resumeID uint) ([]models.InterviewSession, error)
	CreateSession(ctx context.Context, resumeID uint, cfg StartConfig) (*models.InterviewSession, error)
	// EndSession is idempotent: ending an already-completed session is a
	// no-op success.
	EndSession(ctx context.Context, resumeID, sessionID uint) error
	DeleteSession(ctx context.Context, resumeID, sessionID uint) error
}

// QuestionSupplier returns the next interview question for a session, or
// ErrNoMoreQuestions once the preset list is exhausted.
type QuestionSupplier interface {
	NextQuestion(ctx context.Context, resumeID, sessionID uint) (models.QuestionRecord, error)
}

// AnswerEvaluator scores one answer against one question. The returned
// feedback text doubles as the prompt for the following question.
type AnswerEvaluator interface {
	SubmitAnswer(ctx context.Context, resumeID, sessionID uint, answer string, questionIndex int) (models.Evaluation, error)
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one transcript event. Append-only: one event per user answer
// and per assistant (question/feedback/summary) turn.
type Message struct {
	ID        string    `json:"id"`
	ResumeID  uint      `json:"resume_id"`
	SessionID uint      `json:"session_id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink consumes transcript events. Implementations must not block the
// orchestrator; delivery failures are theirs to log.
type Sink interface {
	Publish(ctx context.Context, msg Message)
}

// StartResult is the outcome of Start or Decide. When DecisionToken is set
// the operation is suspended: an active session already exists and the
// caller must answer continue-vs-discard via Decide.
type StartResult struct {
	Session  *models.InterviewSession `json:"session,omitempty"`
	Question *models.QuestionRecord   `json:"question,omitempty"`
	Resumed  bool                     `json:"resumed,omitempty"`

	DecisionToken string                   `json:"decision_token,omitempty"`
	Existing      *models.InterviewSession `json:"existing,omitempty"`
}

// NeedsDecision reports whether the start is suspended on a
// continue-vs-discard prompt.
func (r *StartResult) NeedsDecision() bool { return r != nil && r.DecisionToken != "" }

// SubmitResult is the outcome of one accepted answer. AllAnswered means the
// preset questions were already exhausted: the evaluator was not called and
// nothing was mutated.
type SubmitResult struct {
	QuestionIndex int                    `json:"question_index"`
	Evaluation    models.Evaluation      `json:"evaluation"`
	AllAnswered   bool                   `json:"all_answered,omitempty"`
	NextQuestion  *models.QuestionRecord `json:"next_question,omitempty"`
}

// Summary is emitted when a session is finalized.
type Summary struct {
	SessionID uint          `json:"session_id"`
	Answered  int           `json:"answered"`
	Elapsed   time.Duration `json:"elapsed"`
}
