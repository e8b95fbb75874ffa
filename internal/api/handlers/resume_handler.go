package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/adminlove520/EasyJob/internal/services"
	"github.com/adminlove520/EasyJob/internal/utils"
)

const maxResumeFileBytes = 10 << 20

type ResumeHandler struct {
	svc services.ResumeService
}

func NewResumeHandler(svc services.ResumeService) *ResumeHandler {
	return &ResumeHandler{svc: svc}
}

type CreateResumeRequest struct {
	Title   string         `json:"title" binding:"required"`
	Content datatypes.JSON `json:"content"`
	Skills  []string       `json:"skills"`
}

func (h *ResumeHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req CreateResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ResumeHandler.Create", "invalid request body", err))
		return
	}

	row, err := h.svc.Create(c.Request.Context(), userID, req.Title, req.Content, req.Skills)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, row)
}

func (h *ResumeHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	resumeID, ok := uintParam(c, "resume_id")
	if !ok {
		return
	}

	row, err := h.svc.Get(c.Request.Context(), userID, resumeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *ResumeHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rows, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resumes": rows})
}

func (h *ResumeHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	resumeID, ok := uintParam(c, "resume_id")
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), userID, resumeID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": resumeID})
}

// UploadFile stores the original resume document (multipart field "file").
func (h *ResumeHandler) UploadFile(c *gin.Context) {
	const op = "ResumeHandler.UploadFile"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	resumeID, ok := uintParam(c, "resume_id")
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "multipart field 'file' is required", err))
		return
	}
	if fh.Size > maxResumeFileBytes {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "file too large", nil))
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to open upload", err))
		return
	}
	defer f.Close()

	row, err := h.svc.AttachFile(c.Request.Context(), userID, resumeID, fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *ResumeHandler) FileURL(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	resumeID, ok := uintParam(c, "resume_id")
	if !ok {
		return
	}

	url, err := h.svc.FileURL(c.Request.Context(), userID, resumeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
