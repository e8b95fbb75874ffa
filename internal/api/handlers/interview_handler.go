package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adminlove520/EasyJob/internal/orchestrator"
	"github.com/adminlove520/EasyJob/internal/services"
	"github.com/adminlove520/EasyJob/internal/utils"
)

// InterviewHandler exposes the interview session lifecycle. Every route is
// scoped to a resume the caller owns; ownership is checked before any
// session operation runs.
type InterviewHandler struct {
	sessions    *orchestrator.Manager
	svc         services.InterviewService
	resumes     services.ResumeService
	reports     services.ReportService
	transcripts services.TranscriptService
}

func NewInterviewHandler(
	sessions *orchestrator.Manager,
	svc services.InterviewService,
	resumes services.ResumeService,
	reports services.ReportService,
	transcripts services.TranscriptService,
) *InterviewHandler {
	return &InterviewHandler{
		sessions:    sessions,
		svc:         svc,
		resumes:     resumes,
		reports:     reports,
		transcripts: transcripts,
	}
}

// ownedResume resolves the :resume_id parameter and enforces ownership.
func (h *InterviewHandler) ownedResume(c *gin.Context) (uint, bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return 0, false
	}
	resumeID, ok := uintParam(c, "resume_id")
	if !ok {
		return 0, false
	}
	if _, err := h.resumes.Get(c.Request.Context(), userID, resumeID); err != nil {
		writeError(c, err)
		return 0, false
	}
	return resumeID, true
}

type StartInterviewRequest struct {
	SessionID     uint   `json:"session_id"`
	JobPosition   string `json:"job_position"`
	InterviewMode string `json:"interview_mode"` // comprehensive|technical|behavioral
	JDContent     string `json:"jd_content"`
	QuestionCount int    `json:"question_count"`
}

func (h *InterviewHandler) Start(c *gin.Context) {
	resumeID, ok := h.ownedResume(c)
	if !ok {
		return
	}

	var req StartInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler.Start", "invalid request body", err))
		return
	}

	res, err := h.sessions.For(resumeID).Start(c.Request.Context(), orchestrator.StartConfig{
		SessionID:     req.SessionID,
		JobPosition:   req.JobPosition,
		InterviewMode: req.InterviewMode,
		JDContent:     req.JDContent,
		QuestionCount: req.QuestionCount,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if res.NeedsDecision() {
		c.JSON(http.StatusConflict, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

type DecisionRequest struct {
	Token    string `json:"token" binding:"required"`
	Continue bool   `json:"continue"`
}

func (h *InterviewHandler) Decide(c *gin.Context) {
	resumeID, ok := h.ownedResume(c)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler.Decide", "invalid request body", err))
		return
	}

	res, err := h.sessions.For(resumeID).Decide(c.Request.Context(), req.Token, req.Continue)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type AnswerRequest struct {
	Answer string `json:"answer" binding:"required"`
}

func (h *InterviewHandler) Answer(c *gin.Context) {
	resumeID, ok := h.ownedResume(c)
	if !ok {
		return
	}

	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler.Answer", "invalid request body", err))
		return
	}

	res, err := h.sessions.For(resumeID).SubmitAnswer(c.Request.Context(), req.Answer)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Question generates one supplementary question once the preset list is
// exhausted.
func (h *InterviewHandler) Question(c *gin.Context) {
	resumeID, ok := h.ownedResume(c)
	if !ok {
		return
	}
	sessionID, ok := uintParam(c, "session_id")
	if !ok {
		return
	}

	q, err := h.svc.FollowUpQuestion(c.Request.Context(), resumeID, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *InterviewHandler) End(c *gin.Context) {
	resumeID, ok := h.ownedResume(c)
	if !ok {
		return
	}

	sum, err := h.sessions.For(resumeID).End(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *InterviewHandler) ListSessions(c *gin.Context) {
	resumeID, ok := h.ownedResume(c)
	if !ok {
		return
	}

	rows, err := h.svc.ListSessions(c.Request.Context(), resumeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": rows})
}

func (h *InterviewHandler) GetSession(c *gin.Context) {
	resumeID, ok := h.ownedResume(c)
	if !ok {
		return
	}
	sessionID, ok := uintParam(c, "session_id")
	if !ok {
		return
	}

	sess, err := h.svc.GetSession(c.Request.Context(), resumeID, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *InterviewHandler) DeleteSession(c *gin.Context) {
	resumeID, ok := h.ownedResume(c)
	if !ok {
		return
	}
	sessionID, ok := uintParam(c, "session_id")
	if !ok {
		return
	}

	if err := h.svc.DeleteSession(c.Request.Context(), resumeID, sessionID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": sessionID})
}

func (h *InterviewHandler) CleanupDuplicates(c *gin.Context) {
	resumeID, ok := h.ownedResume(c)
	if !ok {
		return
	}

	n, err := h.svc.CleanupDuplicates(c.Request.Context(), resumeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleaned": n})
}

func (h *InterviewHandler) CalculateScores(c *gin.Context) {
	resumeID, ok := h.ownedResume(c)
	if !ok {
		return
	}

	n, err := h.svc.CalculateMissingScores(c.Request.Context(), resumeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *InterviewHandler) Report(c *gin.Context) {
	resumeID, ok := h.ownedResume(c)
	if !ok {
		return
	}
	sessionID, ok := uintParam(c, "session_id")
	if !ok {
		return
	}

	report, err := h.reports.GetReport(c.Request.Context(), resumeID, sessionID, c.Query("regenerate") == "true")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *InterviewHandler) Transcript(c *gin.Context) {
	resumeID, ok := h.ownedResume(c)
	if !ok {
		return
	}
	sessionID, ok := uintParam(c, "session_id")
	if !ok {
		return
	}

	rows, err := h.transcripts.History(c.Request.Context(), resumeID, sessionID, 0)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": rows})
}
