package main

import (
	"context"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/adminlove520/EasyJob/config"
	"github.com/adminlove520/EasyJob/internal/api/handlers"
	"github.com/adminlove520/EasyJob/internal/api/middleware"
	"github.com/adminlove520/EasyJob/internal/api/routes"
	"github.com/adminlove520/EasyJob/internal/cache"
	"github.com/adminlove520/EasyJob/internal/logger"
	"github.com/adminlove520/EasyJob/internal/orchestrator"
	"github.com/adminlove520/EasyJob/internal/providers/llm"
	"github.com/adminlove520/EasyJob/internal/providers/stt"
	mongorepo "github.com/adminlove520/EasyJob/internal/repositories/mongo"
	pgrepo "github.com/adminlove520/EasyJob/internal/repositories/postgres"
	"github.com/adminlove520/EasyJob/internal/services"
	"github.com/adminlove520/EasyJob/internal/storage"
	"github.com/adminlove520/EasyJob/internal/workers"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()
	ctx := context.Background()

	if err := config.InitPostgres(); err != nil {
		log.WithError(err).Fatal("postgres init failed")
	}
	log.Info("postgres connected")

	if err := config.InitMongo(); err != nil {
		log.WithError(err).Fatal("mongo init failed")
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.WithError(err).Fatal("mongo index bootstrap failed")
	}
	log.Info("mongo connected")

	if err := config.InitRedis(); err != nil {
		log.WithError(err).Fatal("redis init failed")
	}
	log.Info("redis connected")

	// providers
	provider, err := llm.NewVertexGemini(ctx,
		os.Getenv("GCP_PROJECT_ID"),
		os.Getenv("GCP_LOCATION"),
		os.Getenv("GEMINI_MODEL"))
	if err != nil {
		log.WithError(err).Fatal("vertex gemini init failed")
	}
	defer provider.Close()

	speech, err := stt.NewGoogleSpeech(ctx)
	if err != nil {
		log.WithError(err).Fatal("google speech init failed")
	}

	var uploader *storage.GCSUploader
	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		uploader, err = storage.NewGCSUploader(ctx, bucket)
		if err != nil {
			log.WithError(err).Fatal("gcs init failed")
		}
		defer uploader.Close()
	} else {
		log.Warn("GCS_BUCKET not set; resume file storage disabled")
	}

	// repositories
	mongoDB := config.MongoClient.Database(config.MongoDBName())
	sessionRepo := pgrepo.NewSessionRepo(config.PostgresDB)
	resumeRepo := pgrepo.NewResumeRepo(config.PostgresDB)
	userRepo := pgrepo.NewUserRepo(config.PostgresDB)
	transcriptRepo := pgrepo.NewTranscriptRepo(config.PostgresDB)
	bufferRepo := mongorepo.NewAnswerBufferRepo(mongoDB)

	// services
	redisCache := cache.NewRedisCache(config.RedisClient)
	interviewSvc := services.NewInterviewService(sessionRepo, resumeRepo, provider, redisCache, log)
	transcriptSvc := services.NewTranscriptService(transcriptRepo, config.RedisClient, log)
	reportSvc := services.NewReportService(sessionRepo, redisCache, log)
	bufferSvc := services.NewBufferService(bufferRepo, config.RedisClient, log)
	userSvc := services.NewUserService(userRepo, os.Getenv("JWT_SECRET"))

	var resumeSvc services.ResumeService
	if uploader != nil {
		resumeSvc = services.NewResumeService(resumeRepo, uploader, uploader)
	} else {
		resumeSvc = services.NewResumeService(resumeRepo, nil, nil)
	}

	// session orchestration
	manager := orchestrator.NewManager(orchestrator.Deps{
		Store:     interviewSvc,
		Supplier:  interviewSvc,
		Evaluator: interviewSvc,
		Sink:      transcriptSvc,
		Logger:    log,
	})

	// spoken-answer pipeline
	numWorkers, _ := strconv.Atoi(os.Getenv("ANSWER_WORKERS"))
	pool := &workers.AnswerWorkerPool{
		Redis:      config.RedisClient,
		Buffers:    bufferSvc,
		STT:        speech,
		Sessions:   manager,
		Logger:     log,
		NumWorkers: numWorkers,
	}
	if uploader != nil {
		pool.Archive = uploader
	}
	if err := pool.Start(ctx); err != nil {
		log.WithError(err).Fatal("answer worker pool start failed")
	}

	// http
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Auth:       handlers.NewAuthHandler(userSvc),
		Resume:     handlers.NewResumeHandler(resumeSvc),
		Interview:  handlers.NewInterviewHandler(manager, interviewSvc, resumeSvc, reportSvc, transcriptSvc),
		Interviews: handlers.NewInterviewsHandler(interviewSvc),
		WS:         handlers.NewWSHandler(manager, interviewSvc, resumeSvc, bufferSvc, config.RedisClient),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}
