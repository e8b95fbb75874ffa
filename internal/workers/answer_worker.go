package workers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/adminlove520/EasyJob/internal/cache"
	"github.com/adminlove520/EasyJob/internal/orchestrator"
	"github.com/adminlove520/EasyJob/internal/providers/stt"
	"github.com/adminlove520/EasyJob/internal/services"
	"github.com/adminlove520/EasyJob/internal/storage"
)

// AnswerWorkerPool consumes spoken-answer audio chunks from the audio
// stream, transcribes them, and submits the transcript as an interview
// answer through the session orchestrator.
type AnswerWorkerPool struct {
	Redis      *redis.Client
	Buffers    services.BufferService
	NumWorkers int

	STT      stt.Provider
	Sessions *orchestrator.Manager

	// Archive, when set, keeps a copy of each decoded chunk in object
	// storage. Best-effort: archive failures never block the pipeline.
	Archive storage.Uploader

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *AnswerWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Buffers == nil || p.STT == nil || p.Sessions == nil {
		return errors.New("AnswerWorkerPool missing dependency: Redis/Buffers/STT/Sessions must be set")
	}
	if p.Stream == "" {
		p.Stream = cache.AnswerAudioStream
	}
	if p.Group == "" {
		p.Group = "answer-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 5
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *AnswerWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func normalizeLanguage(v string) string {
	v = strings.TrimSpace(v)
	switch v {
	case "zh", "zh-CN":
		return "zh-CN"
	case "en", "en-US":
		return "en-US"
	default:
		if v == "" {
			return "zh-CN"
		}
		return v
	}
}

func (p *AnswerWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	getStr := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	resumeID, _ := strconv.ParseUint(getStr("resume_id"), 10, 64)
	sessionID, _ := strconv.ParseUint(getStr("session_id"), 10, 64)
	chunkIndexStr := getStr("chunk_index")
	if resumeID == 0 || sessionID == 0 || chunkIndexStr == "" {
		return
	}
	chunkIndex, _ := strconv.ParseInt(chunkIndexStr, 10, 64)

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":    msg.ID,
		"resume_id":   resumeID,
		"session_id":  sessionID,
		"chunk_index": chunkIndex,
	})

	respCh := cache.ResponseChannel(uint(sessionID))
	statusCh := cache.StatusChannel(uint(sessionID))
	status := func(state, message string) {
		_ = p.Redis.Publish(ctx, statusCh,
			`{"type":"status","status":"`+state+`","message":"`+message+`","chunk_index":`+strconv.FormatInt(chunkIndex, 10)+`}`).Err()
	}

	language := normalizeLanguage(getStr("language"))

	// Fetch audio
	var audioBytes []byte
	if b64 := getStr("audio_base64"); b64 != "" {
		raw := b64
		if i := strings.Index(raw, ","); i >= 0 {
			raw = raw[i+1:] // strip data:...;base64,
		}
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			log.WithError(err).Warn("base64 decode failed")
			status("failed", "invalid audio_base64")
			return
		}
		audioBytes = decoded
	} else if url := getStr("audio_url"); url != "" {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.WithError(err).Warn("audio_url fetch failed")
			status("failed", "failed to fetch audio_url")
			return
		}
		defer resp.Body.Close()

		const maxBytes = 10 << 20
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
		if len(body) == 0 {
			status("failed", "empty audio")
			return
		}
		audioBytes = body
	} else {
		return
	}

	if p.Archive != nil {
		object := "answers/" + strconv.FormatUint(sessionID, 10) + "/" + strconv.FormatInt(chunkIndex, 10) + ".audio"
		if _, aerr := p.Archive.Upload(ctx, object, "application/octet-stream", bytes.NewReader(audioBytes)); aerr != nil {
			log.WithError(aerr).Warn("audio archive failed")
		}
	}

	// STT
	_ = p.Buffers.MarkSTT(ctx, uint(sessionID), chunkIndex, "", 0, "processing")
	status("processing", "stt processing")

	text, conf, err := p.STT.Transcribe(ctx, audioBytes, language)
	if err != nil {
		log.WithError(err).Error("stt failed")
		_ = p.Buffers.MarkSTT(ctx, uint(sessionID), chunkIndex, "", 0, "failed")
		status("failed", "stt failed")
		return
	}

	_ = p.Buffers.MarkSTT(ctx, uint(sessionID), chunkIndex, text, conf, "done")
	sttPayload, _ := json.Marshal(map[string]any{
		"type":        "stt_result",
		"chunk_index": chunkIndex,
		"text":        text,
		"confidence":  conf,
		"is_final":    true,
	})
	_ = p.Redis.Publish(ctx, respCh, string(sttPayload)).Err()

	// Submit the transcript as the interview answer
	start := time.Now()
	_ = p.Buffers.MarkSubmit(ctx, uint(sessionID), chunkIndex, "", "processing", 0)
	status("processing", "evaluating answer")

	result, err := p.submitAnswer(ctx, uint(resumeID), text)
	procMS := time.Since(start).Milliseconds()
	if err != nil {
		log.WithError(err).Error("answer submit failed")
		_ = p.Buffers.MarkSubmit(ctx, uint(sessionID), chunkIndex, "", "failed", procMS)
		status("failed", "answer submit failed")
		return
	}

	_ = p.Buffers.MarkSubmit(ctx, uint(sessionID), chunkIndex, result.Evaluation.Feedback, "done", procMS)

	donePayload, _ := json.Marshal(map[string]any{
		"type":               "answer_result",
		"chunk_index":        chunkIndex,
		"question_index":     result.QuestionIndex,
		"evaluation":         result.Evaluation,
		"all_answered":       result.AllAnswered,
		"next_question":      result.NextQuestion,
		"processing_time_ms": procMS,
	})
	_ = p.Redis.Publish(ctx, respCh, string(donePayload)).Err()
	status("done", "chunk processed")
}

// submitAnswer routes the transcript through the session orchestrator,
// retrying briefly when another operation holds the busy slot.
func (p *AnswerWorkerPool) submitAnswer(ctx context.Context, resumeID uint, answer string) (*orchestrator.SubmitResult, error) {
	orch := p.Sessions.For(resumeID)

	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		res, err := orch.SubmitAnswer(ctx, answer)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !errors.Is(err, orchestrator.ErrSessionBusy) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return nil, lastErr
}
