package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/adminlove520/EasyJob/internal/api/handlers"
	"github.com/adminlove520/EasyJob/internal/api/middleware"
)

type Deps struct {
	Auth       *handlers.AuthHandler
	Resume     *handlers.ResumeHandler
	Interview  *handlers.InterviewHandler
	Interviews *handlers.InterviewsHandler
	WS         *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	r.POST("/auth/register", d.Auth.Register)
	r.POST("/auth/login", d.Auth.Login)

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth())

	auth.GET("/auth/me", d.Auth.Me)

	auth.POST("/resumes", d.Resume.Create)
	auth.GET("/resumes", d.Resume.List)
	auth.GET("/resumes/:resume_id", d.Resume.Get)
	auth.DELETE("/resumes/:resume_id", d.Resume.Delete)
	auth.POST("/resumes/:resume_id/file", d.Resume.UploadFile)
	auth.GET("/resumes/:resume_id/file-url", d.Resume.FileURL)

	iv := auth.Group("/resumes/:resume_id/interview")
	iv.POST("/start", d.Interview.Start)
	iv.POST("/decision", d.Interview.Decide)
	iv.POST("/answer", d.Interview.Answer)
	iv.POST("/end", d.Interview.End)
	iv.GET("/sessions", d.Interview.ListSessions)
	iv.GET("/sessions/:session_id", d.Interview.GetSession)
	iv.GET("/sessions/:session_id/question", d.Interview.Question)
	iv.GET("/sessions/:session_id/report", d.Interview.Report)
	iv.GET("/sessions/:session_id/transcript", d.Interview.Transcript)
	iv.POST("/calculate-scores", d.Interview.CalculateScores)

	// administrative
	iv.DELETE("/sessions/:session_id", middleware.RequireAdmin(), d.Interview.DeleteSession)
	iv.POST("/cleanup-duplicate", middleware.RequireAdmin(), d.Interview.CleanupDuplicates)

	auth.GET("/interviews", d.Interviews.List)
	auth.GET("/interviews/stats", d.Interviews.Stats)

	// WebSocket
	auth.GET("/ws/resumes/:resume_id/sessions/:session_id", d.WS.SessionWS)
}
