package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AnswerBuffer holds one chunk of spoken-answer audio while it moves
// through the speech-to-text and answer-submission pipeline.
type AnswerBuffer struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ResumeID      uint               `bson:"resume_id" json:"resume_id"`
	SessionID     uint               `bson:"session_id" json:"session_id"`
	ChunkIndex    int64              `bson:"chunk_index" json:"chunk_index"`
	QuestionIndex int                `bson:"question_index" json:"question_index"`

	AudioURL    *string `bson:"audio_url,omitempty" json:"audio_url,omitempty"`
	AudioBase64 *string `bson:"audio_base64,omitempty" json:"audio_base64,omitempty"`

	Transcript    string  `bson:"transcript,omitempty" json:"transcript,omitempty"`
	STTStatus     string  `bson:"stt_status" json:"stt_status"` // pending|processing|done|failed
	STTConfidence float64 `bson:"stt_confidence,omitempty" json:"stt_confidence,omitempty"`

	SubmitStatus string `bson:"submit_status" json:"submit_status"` // pending|processing|done|failed
	Feedback     string `bson:"feedback,omitempty" json:"feedback,omitempty"`

	ProcessingTimeMS int64     `bson:"processing_time_ms,omitempty" json:"processing_time_ms,omitempty"`
	Timestamp        time.Time `bson:"timestamp" json:"timestamp"`

	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}
