package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/adminlove520/EasyJob/internal/orchestrator"
	"github.com/adminlove520/EasyJob/internal/utils"
)

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

func writeError(c *gin.Context, err error) {
	// Orchestrator sentinels map to HTTP before the generic taxonomy.
	switch {
	case errors.Is(err, orchestrator.ErrSessionBusy):
		c.JSON(http.StatusConflict, APIError{Code: utils.CodeConflict, Message: "another operation is in progress"})
		return
	case errors.Is(err, orchestrator.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, APIError{Code: utils.CodeNotFound, Message: "interview session not found"})
		return
	case errors.Is(err, orchestrator.ErrSessionCompleted):
		c.JSON(http.StatusConflict, APIError{Code: utils.CodeConflict, Message: "interview session already completed"})
		return
	case errors.Is(err, orchestrator.ErrNoPendingDecision):
		c.JSON(http.StatusConflict, APIError{Code: utils.CodeConflict, Message: "no pending decision"})
		return
	case errors.Is(err, orchestrator.ErrNotActive):
		c.JSON(http.StatusConflict, APIError{Code: utils.CodeConflict, Message: "no interview in progress"})
		return
	case errors.Is(err, orchestrator.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, APIError{Code: utils.CodeUnavailable, Message: "store unavailable, retry"})
		return
	case errors.Is(err, orchestrator.ErrEvaluator):
		c.JSON(http.StatusBadGateway, APIError{Code: utils.CodeUnavailable, Message: "answer evaluation failed"})
		return
	}

	status := utils.HTTPStatus(err)

	var ae *utils.AppError
	if errors.As(err, &ae) {
		c.JSON(status, APIError{
			Code:    ae.Code,
			Message: ae.Message,
		})
		return
	}

	c.JSON(status, APIError{
		Code:    utils.CodeInternal,
		Message: http.StatusText(status),
	})
}

func requireUserID(c *gin.Context) (uint, bool) {
	if v, ok := c.Get("user_id"); ok {
		if id, ok := v.(uint); ok && id != 0 {
			return id, true
		}
	}

	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return 0, false
}

// uintParam parses a numeric path parameter, writing the 400 itself on
// failure.
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		writeError(c, utils.E(utils.CodeInvalidArgument, "Params", name+" must be a positive integer", err))
		return 0, false
	}
	return uint(v), true
}
