package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/adminlove520/EasyJob/internal/cache"
	"github.com/adminlove520/EasyJob/internal/models"
	"github.com/adminlove520/EasyJob/internal/orchestrator"
	"github.com/adminlove520/EasyJob/internal/services"
	"github.com/adminlove520/EasyJob/internal/utils"
)

// WSHandler is the live interview socket: spoken-answer chunks in, transcript
// and evaluation events out.
type WSHandler struct {
	sessions *orchestrator.Manager
	svc      services.InterviewService
	resumes  services.ResumeService
	buffers  services.BufferService
	redis    *redis.Client
	upgrader websocket.Upgrader
}

func NewWSHandler(
	sessions *orchestrator.Manager,
	svc services.InterviewService,
	resumes services.ResumeService,
	buffers services.BufferService,
	rdb *redis.Client,
) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		svc:      svc,
		resumes:  resumes,
		buffers:  buffers,
		redis:    rdb,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

type wsClientMsg struct {
	Type string `json:"type"` // audio_chunk|answer|end_session

	// audio_chunk
	ChunkIndex  int64  `json:"chunk_index"`
	AudioBase64 string `json:"audio_base64"`
	AudioURL    string `json:"audio_url"`
	Language    string `json:"language"`

	// answer (typed instead of spoken)
	Answer string `json:"answer"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.writeText(b)
}

func (h *WSHandler) SessionWS(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	resumeID, ok := uintParam(c, "resume_id")
	if !ok {
		return
	}
	sessionID, ok := uintParam(c, "session_id")
	if !ok {
		return
	}

	// authorize: the resume must belong to the caller, the session to the
	// resume
	if _, err := h.resumes.Get(c.Request.Context(), userID, resumeID); err != nil {
		writeError(c, err)
		return
	}
	sess, err := h.svc.GetSession(c.Request.Context(), resumeID, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if sess.Status.Terminal() {
		writeError(c, utils.E(utils.CodeConflict, "WSHandler.SessionWS", "interview session already completed", nil))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Subscribe Redis -> WS
	pubsub := h.redis.Subscribe(ctx, cache.ResponseChannel(sessionID), cache.StatusChannel(sessionID))
	defer pubsub.Close()

	// reader: WS -> buffer service / orchestrator
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})

		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}

			var msg wsClientMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = wc.writeText([]byte(`{"type":"error","code":"INVALID_ARGUMENT","message":"invalid json"}`))
				continue
			}

			switch msg.Type {
			case "audio_chunk":
				if msg.ChunkIndex <= 0 {
					_ = wc.writeText([]byte(`{"type":"error","code":"INVALID_ARGUMENT","message":"chunk_index must be > 0"}`))
					continue
				}

				buf := &models.AnswerBuffer{
					ResumeID:   resumeID,
					SessionID:  sessionID,
					ChunkIndex: msg.ChunkIndex,
				}
				if msg.AudioBase64 != "" {
					buf.AudioBase64 = &msg.AudioBase64
				}
				if msg.AudioURL != "" {
					buf.AudioURL = &msg.AudioURL
				}

				if err := h.buffers.EnqueueChunk(ctx, buf, msg.Language); err != nil {
					_ = wc.writeJSON(gin.H{"type": "error", "code": utils.CodeUnavailable, "message": "failed to enqueue audio"})
					continue
				}

				_ = h.redis.Publish(ctx, cache.StatusChannel(sessionID),
					`{"type":"status","status":"processing","message":"audio chunk queued","chunk_index":`+strconv.FormatInt(msg.ChunkIndex, 10)+`}`).Err()

			case "answer":
				if msg.Answer == "" {
					_ = wc.writeText([]byte(`{"type":"error","code":"INVALID_ARGUMENT","message":"answer required"}`))
					continue
				}
				res, err := h.sessions.For(resumeID).SubmitAnswer(ctx, msg.Answer)
				if err != nil {
					_ = wc.writeJSON(gin.H{"type": "error", "code": utils.CodeConflict, "message": err.Error()})
					continue
				}
				_ = wc.writeJSON(gin.H{"type": "answer_result", "result": res})

			case "end_session":
				if sum, err := h.sessions.For(resumeID).End(ctx); err == nil {
					_ = wc.writeJSON(gin.H{"type": "ended", "summary": sum})
				}
				return

			default:
				_ = wc.writeText([]byte(`{"type":"error","code":"INVALID_ARGUMENT","message":"unknown message type"}`))
			}
		}
	}()

	// writer: Redis Pub/Sub -> WS
	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			return
		default:
			m, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				return
			}
			// forward as-is (payload expected JSON string)
			if werr := wc.writeText([]byte(m.Payload)); werr != nil {
				return
			}
		}
	}
}
