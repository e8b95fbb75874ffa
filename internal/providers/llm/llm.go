package llm

import (
	"context"
	"encoding/json"

	"github.com/adminlove520/EasyJob/internal/models"
)

// Exchange is one answered question, used as conversation history when
// generating follow-up questions.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Provider is the opaque question generator / answer evaluator backing the
// interview flow.
type Provider interface {
	// GenerateQuestions produces the preset question list for a new session.
	GenerateQuestions(ctx context.Context, resumeContent json.RawMessage, jdContent string, mode string, count int) ([]models.QuestionRecord, error)

	// NextQuestion generates one follow-up question from the conversation
	// so far, once the preset list is exhausted.
	NextQuestion(ctx context.Context, history []Exchange, resumeContent json.RawMessage) (models.QuestionRecord, error)

	// EvaluateAnswer scores a single answer and returns feedback text that
	// doubles as the prompt for the following question.
	EvaluateAnswer(ctx context.Context, question, answer string, resumeContent json.RawMessage) (models.Evaluation, error)

	// OverallScore rates a finished interview 0-100.
	OverallScore(ctx context.Context, questions []models.QuestionRecord, answers []models.AnswerRecord) (int, error)

	// StreamAnswer returns a stream of text chunks (incremental).
	StreamAnswer(ctx context.Context, prompt string) (chunks <-chan string, errs <-chan error)

	Close() error
}
