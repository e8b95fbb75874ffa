package models

import (
	"time"

	"gorm.io/datatypes"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionPaused    SessionStatus = "paused"
)

// Terminal reports whether the status permits no further mutation.
func (s SessionStatus) Terminal() bool { return s == SessionCompleted }

// Running treats "paused" as active; the orchestration flow never
// distinguishes the two.
func (s SessionStatus) Running() bool { return s == SessionActive || s == SessionPaused }

type QuestionRecord struct {
	Question string `json:"question"`
	Type     string `json:"type"` // general|technical|behavioral|follow_up
	Index    int    `json:"index"`
}

type Evaluation struct {
	Score       int      `json:"score"`
	Feedback    string   `json:"feedback"`
	Suggestions []string `json:"suggestions"`
}

type AnswerRecord struct {
	Answer        string     `json:"answer"`
	Evaluation    Evaluation `json:"evaluation"`
	QuestionIndex int        `json:"question_index"`
}

// InterviewSession is one interview attempt against one resume.
// Questions is append-only after generation; Answers is appended exactly
// once per answered question, in increasing question_index order.
type InterviewSession struct {
	ID       uint `gorm:"column:id;primaryKey" json:"id"`
	ResumeID uint `gorm:"column:resume_id;index" json:"resume_id"`

	JobPosition   string `gorm:"column:job_position;type:text" json:"job_position,omitempty"`
	InterviewMode string `gorm:"column:interview_mode;type:text" json:"interview_mode,omitempty"` // comprehensive|technical|behavioral
	JDContent     string `gorm:"column:jd_content;type:text" json:"jd_content,omitempty"`

	Questions datatypes.JSONSlice[QuestionRecord] `gorm:"column:questions;type:jsonb" json:"questions"`
	Answers   datatypes.JSONSlice[AnswerRecord]   `gorm:"column:answers;type:jsonb" json:"answers"`

	Feedback   datatypes.JSON `gorm:"column:feedback;type:jsonb" json:"feedback,omitempty"`
	ReportData datatypes.JSON `gorm:"column:report_data;type:jsonb" json:"report_data,omitempty"`

	Status       SessionStatus `gorm:"column:status;type:text;default:active" json:"status"`
	OverallScore *int          `gorm:"column:overall_score" json:"overall_score,omitempty"`

	// Set by reconciliation when this is an active session that is not the
	// most recently created active one for its resume. Never persisted.
	PossibleDuplicate bool `gorm:"-" json:"possible_duplicate,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (InterviewSession) TableName() string { return "interview_sessions" }

// CurrentQuestionIndex is the index of the next question to ask.
// Invariant while the session runs: always equal to len(Answers).
func (s *InterviewSession) CurrentQuestionIndex() int { return len(s.Answers) }

// Exhausted reports whether every preset question already has an answer.
func (s *InterviewSession) Exhausted() bool {
	return len(s.Questions) > 0 && len(s.Answers) >= len(s.Questions)
}
