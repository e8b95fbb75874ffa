package mongo

import (
	"context"
	"time"

	"github.com/adminlove520/EasyJob/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AnswerBufferRepository interface {
	InsertChunk(ctx context.Context, b *models.AnswerBuffer) error
	UpdateSTT(ctx context.Context, sessionID uint, chunkIndex int64, transcript string, confidence float64, status string) error
	UpdateSubmit(ctx context.Context, sessionID uint, chunkIndex int64, feedback string, status string, processingMS int64) error
	ListBySession(ctx context.Context, sessionID uint, limit int64) ([]models.AnswerBuffer, error)
}

type answerBufferRepo struct {
	col *mongo.Collection
}

func NewAnswerBufferRepo(db *mongo.Database) AnswerBufferRepository {
	return &answerBufferRepo{col: db.Collection("answer_buffer")}
}

func (r *answerBufferRepo) InsertChunk(ctx context.Context, b *models.AnswerBuffer) error {
	if b.Timestamp.IsZero() {
		b.Timestamp = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, b)
	return err
}

func (r *answerBufferRepo) UpdateSTT(ctx context.Context, sessionID uint, chunkIndex int64, transcript string, confidence float64, status string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "chunk_index": chunkIndex},
		bson.M{"$set": bson.M{
			"transcript":     transcript,
			"stt_confidence": confidence,
			"stt_status":     status,
		}},
	)
	return err
}

func (r *answerBufferRepo) UpdateSubmit(ctx context.Context, sessionID uint, chunkIndex int64, feedback string, status string, processingMS int64) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "chunk_index": chunkIndex},
		bson.M{"$set": bson.M{
			"feedback":           feedback,
			"submit_status":      status,
			"processing_time_ms": processingMS,
		}},
	)
	return err
}

func (r *answerBufferRepo) ListBySession(ctx context.Context, sessionID uint, limit int64) ([]models.AnswerBuffer, error) {
	if limit <= 0 {
		limit = 200
	}

	cur, err := r.col.Find(ctx,
		bson.M{"session_id": sessionID},
		options.Find().
			SetSort(bson.D{{Key: "chunk_index", Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.AnswerBuffer
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
