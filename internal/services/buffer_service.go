package services

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/adminlove520/EasyJob/internal/cache"
	"github.com/adminlove520/EasyJob/internal/models"
	mongorepo "github.com/adminlove520/EasyJob/internal/repositories/mongo"
	"github.com/adminlove520/EasyJob/internal/utils"
)

// Buffered audio chunks expire after a day; transcripts and answers live in
// postgres long before then.
const bufferRetention = 24 * time.Hour

// BufferService tracks spoken-answer audio chunks through the STT and
// answer-submission pipeline.
type BufferService interface {
	// EnqueueChunk stores the chunk and hands it to the answer worker pool
	// via the audio stream.
	EnqueueChunk(ctx context.Context, b *models.AnswerBuffer, language string) error

	MarkSTT(ctx context.Context, sessionID uint, chunkIndex int64, transcript string, confidence float64, status string) error
	MarkSubmit(ctx context.Context, sessionID uint, chunkIndex int64, feedback, status string, processingMS int64) error
	ListBySession(ctx context.Context, sessionID uint, limit int64) ([]models.AnswerBuffer, error)
}

type bufferService struct {
	repo mongorepo.AnswerBufferRepository
	rdb  *redis.Client
	log  *logrus.Logger
}

func NewBufferService(repo mongorepo.AnswerBufferRepository, rdb *redis.Client, log *logrus.Logger) BufferService {
	if log == nil {
		log = logrus.New()
	}
	return &bufferService{repo: repo, rdb: rdb, log: log}
}

func (s *bufferService) EnqueueChunk(ctx context.Context, b *models.AnswerBuffer, language string) error {
	const op = "BufferService.EnqueueChunk"

	if b == nil || b.SessionID == 0 {
		return utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	if b.AudioURL == nil && b.AudioBase64 == nil {
		return utils.E(utils.CodeInvalidArgument, op, "audio_url or audio_base64 is required", nil)
	}

	if b.Timestamp.IsZero() {
		b.Timestamp = time.Now().UTC()
	}
	b.ExpiresAt = b.Timestamp.Add(bufferRetention)
	if b.STTStatus == "" {
		b.STTStatus = "pending"
	}
	if b.SubmitStatus == "" {
		b.SubmitStatus = "pending"
	}

	if err := s.repo.InsertChunk(ctx, b); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to store audio chunk", err)
	}

	values := map[string]any{
		"resume_id":      strconv.FormatUint(uint64(b.ResumeID), 10),
		"session_id":     strconv.FormatUint(uint64(b.SessionID), 10),
		"chunk_index":    strconv.FormatInt(b.ChunkIndex, 10),
		"question_index": strconv.Itoa(b.QuestionIndex),
		"language":       language,
	}
	if b.AudioURL != nil {
		values["audio_url"] = *b.AudioURL
	}
	if b.AudioBase64 != nil {
		values["audio_base64"] = *b.AudioBase64
	}
	if err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: cache.AnswerAudioStream,
		Values: values,
	}).Err(); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to enqueue audio chunk", err)
	}
	return nil
}

func (s *bufferService) MarkSTT(ctx context.Context, sessionID uint, chunkIndex int64, transcript string, confidence float64, status string) error {
	const op = "BufferService.MarkSTT"

	if err := s.repo.UpdateSTT(ctx, sessionID, chunkIndex, transcript, confidence, status); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to update stt status", err)
	}
	return nil
}

func (s *bufferService) MarkSubmit(ctx context.Context, sessionID uint, chunkIndex int64, feedback, status string, processingMS int64) error {
	const op = "BufferService.MarkSubmit"

	if err := s.repo.UpdateSubmit(ctx, sessionID, chunkIndex, feedback, status, processingMS); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to update submit status", err)
	}
	return nil
}

func (s *bufferService) ListBySession(ctx context.Context, sessionID uint, limit int64) ([]models.AnswerBuffer, error) {
	const op = "BufferService.ListBySession"

	rows, err := s.repo.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list audio chunks", err)
	}
	return rows, nil
}
