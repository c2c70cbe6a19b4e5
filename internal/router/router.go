package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/config"
	"github.com/toanlab/lms-backend/internal/handler"
	"github.com/toanlab/lms-backend/internal/logger"
	"github.com/toanlab/lms-backend/internal/middleware"
	"github.com/toanlab/lms-backend/internal/response"
	"github.com/toanlab/lms-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Question *handler.QuestionHandler
	Composer *handler.ComposerHandler
	Exam     *handler.ExamHandler
	Quiz     *handler.QuizHandler
	Progress *handler.ProgressHandler
	Session  *handler.SessionHandler
	WS       *handler.WSHandler
	Health   *handler.HealthHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	sessionService *service.SessionService,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(logger.RequestLogger(log))

	router.GET("/health", handlers.Health.Health)

	requireAuth := middleware.RequireAuth(authService)
	singleDevice := middleware.CheckSingleDeviceSession(sessionService, logger.Component(log, "session_guard"))

	// Answer traffic is bursty but bounded: 120 actions per minute per user.
	attemptLimiter := middleware.NewRateLimiter(120, time.Minute)

	// ─── 1. Session Group (JWT) ────────────────────────────────────────
	session := router.Group("/api/v1/session")
	session.Use(requireAuth)
	{
		session.GET("/heartbeat", handlers.Session.Heartbeat)
		session.POST("/logout", handlers.Session.Logout)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	// Teachers may take quizzes too; their attempts skip anti-cheat.
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(requireAuth, singleDevice, middleware.NoStore())
	{
		studentAPI.GET("/topics", handlers.Question.ListTopics)
		studentAPI.GET("/progress", handlers.Progress.GetProgress)
		studentAPI.POST("/quizzes", handlers.Quiz.StartPractice)
		studentAPI.POST("/exams/:exam_id/attempts", handlers.Quiz.StartExam)

		attempts := studentAPI.Group("/attempts/:id")
		attempts.Use(attemptLimiter.Middleware())
		{
			attempts.GET("", handlers.Quiz.GetAttempt)
			attempts.PUT("/answers/:index", handlers.Quiz.SelectAnswer)
			attempts.PUT("/answers/:index/parts/:part", handlers.Quiz.UpdatePart)
			attempts.POST("/next", handlers.Quiz.Next)
			attempts.POST("/previous", handlers.Quiz.Previous)
			attempts.POST("/visibility", handlers.Quiz.Visibility)
			attempts.POST("/finish", handlers.Quiz.Finish)
		}
	}

	// ─── 3. WebSocket Group (query token) ──────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService), singleDevice)
	{
		ws.GET("/student/attempts/:id/stream", handlers.WS.AttemptStream)
	}

	// ─── 4. Teacher Group (JWT + role) ─────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(requireAuth, middleware.RequireTeacher(), middleware.Compress(middleware.DefaultCompressOptions))
	{
		teacherAPI.GET("/questions", handlers.Question.ListQuestions)
		teacherAPI.POST("/questions", handlers.Question.CreateQuestion)
		teacherAPI.PUT("/questions/:id", handlers.Question.UpdateQuestion)
		teacherAPI.DELETE("/questions/:id", handlers.Question.DeleteQuestion)

		teacherAPI.GET("/composer", handlers.Composer.GetDraft)
		teacherAPI.DELETE("/composer", handlers.Composer.ResetDraft)
		teacherAPI.POST("/composer/requirements", handlers.Composer.AddRequirement)
		teacherAPI.DELETE("/composer/requirements/:id", handlers.Composer.RemoveRequirement)
		teacherAPI.POST("/composer/generate", handlers.Composer.Generate)
	}

	// ─── 5. Shared Group (any authenticated role) ──────────────────────
	shared := router.Group("/api/v1")
	shared.Use(requireAuth, middleware.NoStore(), middleware.Compress(middleware.DefaultCompressOptions))
	{
		shared.GET("/exams/:exam_id", handlers.Exam.GetExam)
		shared.GET("/leaderboard", handlers.Progress.GetLeaderboard)
	}

	return router
}
