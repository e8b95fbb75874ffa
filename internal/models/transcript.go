package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// TranscriptMessage is one turn of an interview transcript: a user answer
// or an assistant question/feedback/summary. Append-only.
type TranscriptMessage struct {
	ID        string          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ResumeID  uint            `gorm:"column:resume_id;index" json:"resume_id"`
	SessionID uint            `gorm:"column:session_id;index" json:"session_id"`
	Role      string          `gorm:"column:role;type:text" json:"role"` // "user" | "assistant"
	Content   string          `gorm:"column:content;type:text" json:"content"`
	Embedding pgvector.Vector `gorm:"column:embedding;type:vector(768)" json:"embedding"`
	Timestamp time.Time       `gorm:"column:timestamp;type:timestamptz;index" json:"timestamp"`
	Metadata  datatypes.JSON  `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
}

func (TranscriptMessage) TableName() string { return "transcript_messages" }
