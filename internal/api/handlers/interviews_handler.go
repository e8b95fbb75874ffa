package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adminlove520/EasyJob/internal/services"
)

// InterviewsHandler serves the cross-resume dashboard views.
type InterviewsHandler struct {
	svc services.InterviewService
}

func NewInterviewsHandler(svc services.InterviewService) *InterviewsHandler {
	return &InterviewsHandler{svc: svc}
}

func (h *InterviewsHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rows, err := h.svc.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"interviews": rows})
}

func (h *InterviewsHandler) Stats(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	stats, err := h.svc.Stats(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
