package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prepware/examhall-backend/internal/config"
	"github.com/prepware/examhall-backend/internal/handler"
	"github.com/prepware/examhall-backend/internal/middleware"
	"github.com/prepware/examhall-backend/internal/response"
	"github.com/prepware/examhall-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Lifecycle  *handler.LifecycleHandler
	Submission *handler.SubmissionHandler
	ExamWS     *handler.ExamWSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/student/login", handlers.Auth.StudentLogin)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)

		// Authenticated profile routes
		auth.POST("/student/logout", middleware.RequireStudentJWT(authService), handlers.Auth.StudentLogout)
		auth.GET("/student/me", middleware.RequireStudentJWT(authService), handlers.Auth.GetStudentProfile)
	}

	// ─── 2. Exam Status Group (Any Authenticated User) ─────────────────
	examAPI := router.Group("/api/v1/exam")
	{
		examAPI.GET("/time", handlers.Lifecycle.GetServerTime)
		examAPI.GET("/status", handlers.Lifecycle.GetStatus)
	}

	// ─── 3. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.GET("/results", handlers.Submission.MyResults)
	}

	// ─── 4. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/exams/:code/stream", handlers.ExamWS.AttachExam)
	}

	// ─── 5. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		// Session lifecycle
		adminAPI.POST("/sessions/generate-code", handlers.Lifecycle.GenerateCode)
		adminAPI.POST("/sessions", handlers.Lifecycle.CreateSession)
		adminAPI.GET("/sessions", handlers.Lifecycle.ListSessions)
		adminAPI.GET("/sessions/:code", handlers.Lifecycle.GetSession)
		adminAPI.DELETE("/sessions/:code", handlers.Lifecycle.DeleteSession)
		adminAPI.POST("/sessions/:code/start", handlers.Lifecycle.StartExam)
		adminAPI.POST("/sessions/:code/stop", handlers.Lifecycle.StopExam)

		// Results
		adminAPI.GET("/sessions/:code/submissions", handlers.Submission.ListByExam)
		adminAPI.POST("/sessions/:code/publish", handlers.Submission.PublishResults)
		adminAPI.PATCH("/submissions/:id/mark", handlers.Submission.UpdateMark)
		adminAPI.GET("/folders/:track_id/:code", handlers.Submission.GetFolder)

		// Student session administration
		adminAPI.POST("/students/:id/reset-session", handlers.Auth.ResetStudentSession)
	}

	return router
}
