package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/adminlove520/EasyJob/internal/cache"
	"github.com/adminlove520/EasyJob/internal/models"
	"github.com/adminlove520/EasyJob/internal/orchestrator"
	pgrepo "github.com/adminlove520/EasyJob/internal/repositories/postgres"
	"github.com/adminlove520/EasyJob/internal/utils"
)

// TranscriptService persists and fans out interview transcript events. It is
// the orchestrator's Sink: persistence failures are logged, never surfaced.
type TranscriptService interface {
	orchestrator.Sink

	Append(ctx context.Context, resumeID, sessionID uint, role, content string, embedding []float32, metadataJSON []byte) (*models.TranscriptMessage, error)
	History(ctx context.Context, resumeID, sessionID uint, limit int) ([]models.TranscriptMessage, error)
	Recent(ctx context.Context, resumeID uint, n int) ([]models.TranscriptMessage, error)
}

type transcriptService struct {
	repo pgrepo.TranscriptRepository
	rdb  *redis.Client // optional; nil disables live fan-out
	log  *logrus.Logger
}

func NewTranscriptService(repo pgrepo.TranscriptRepository, rdb *redis.Client, log *logrus.Logger) TranscriptService {
	if log == nil {
		log = logrus.New()
	}
	return &transcriptService{repo: repo, rdb: rdb, log: log}
}

// Publish stores the event and republishes it on the session's response
// channel for websocket subscribers.
func (s *transcriptService) Publish(ctx context.Context, msg orchestrator.Message) {
	row := &models.TranscriptMessage{
		ID:        msg.ID,
		ResumeID:  msg.ResumeID,
		SessionID: msg.SessionID,
		Role:      msg.Role,
		Content:   msg.Text,
		Timestamp: msg.Timestamp,
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now().UTC()
	}

	if err := s.repo.Insert(ctx, row); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"session_id": msg.SessionID,
			"role":       msg.Role,
		}).Error("transcript append failed")
		return
	}

	if s.rdb == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"type":       "transcript",
		"id":         row.ID,
		"session_id": row.SessionID,
		"role":       row.Role,
		"content":    row.Content,
		"timestamp":  row.Timestamp,
	})
	if err := s.rdb.Publish(ctx, cache.ResponseChannel(msg.SessionID), payload).Err(); err != nil {
		s.log.WithError(err).WithField("session_id", msg.SessionID).Warn("transcript fan-out failed")
	}
}

func (s *transcriptService) Append(ctx context.Context, resumeID, sessionID uint, role, content string, embedding []float32, metadataJSON []byte) (*models.TranscriptMessage, error) {
	const op = "TranscriptService.Append"

	if role != orchestrator.RoleUser && role != orchestrator.RoleAssistant {
		return nil, utils.E(utils.CodeInvalidArgument, op, "role must be user or assistant", nil)
	}
	if content == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "content is required", nil)
	}

	row := &models.TranscriptMessage{
		ID:        uuid.NewString(),
		ResumeID:  resumeID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	if len(embedding) > 0 {
		row.Embedding = pgvector.NewVector(embedding)
	}
	if len(metadataJSON) > 0 {
		row.Metadata = metadataJSON
	}

	if err := s.repo.Insert(ctx, row); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to append transcript message", err)
	}
	return row, nil
}

func (s *transcriptService) History(ctx context.Context, resumeID, sessionID uint, limit int) ([]models.TranscriptMessage, error) {
	const op = "TranscriptService.History"

	rows, err := s.repo.ListBySession(ctx, resumeID, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load transcript", err)
	}
	return rows, nil
}

func (s *transcriptService) Recent(ctx context.Context, resumeID uint, n int) ([]models.TranscriptMessage, error) {
	const op = "TranscriptService.Recent"

	rows, err := s.repo.LatestN(ctx, resumeID, n)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load recent transcript", err)
	}
	return rows, nil
}
