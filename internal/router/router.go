package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentPortal *handler.StudentPortalHandler
	WS            *handler.WSHandler
	Quiz          *handler.QuizHandler
	Monitor       *handler.MonitorHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware(log))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Start and submit are cheap to retry, so cap them per student.
	attemptLimiter := middleware.NewRateLimiter(cfg.SubmitRateLimit, time.Minute, middleware.ByUser)

	// ─── 1. Student Group (JWT) ────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(authService))
	{
		limited := attemptLimiter.Middleware()
		studentAPI.POST("/quizzes/:quiz_id/attempts", limited, handlers.StudentPortal.StartAttempt)
		studentAPI.POST("/attempts/:attempt_id/submit", limited, handlers.StudentPortal.SubmitAttempt)
		// Autosave follows every answer edit, so it is not capped.
		studentAPI.PUT("/attempts/:attempt_id/answers", handlers.StudentPortal.AutosaveAttempt)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/stream", handlers.WS.AttemptStream)
	}

	// ─── 3. Proctor Group (JWT + RBAC) ─────────────────────────────────
	proctorAPI := router.Group("/api/v1/proctor")
	proctorAPI.Use(middleware.RequireProctorJWT(authService))
	{
		proctorAPI.POST("/quizzes",
			middleware.RequirePermission(model.PermissionQuizzesWrite),
			handlers.Quiz.CreateQuiz,
		)
		proctorAPI.GET("/quizzes/:id",
			middleware.RequireAnyPermission(model.PermissionQuizzesRead, model.PermissionQuizzesWrite),
			handlers.Quiz.GetQuiz,
		)
		proctorAPI.GET("/quizzes/:id/results",
			middleware.RequirePermission(model.PermissionQuizzesRead),
			handlers.Quiz.GetQuizResults,
		)
		proctorAPI.GET("/quizzes/:id/monitor",
			middleware.RequirePermission(model.PermissionMonitorRead),
			handlers.Monitor.MonitorQuizSSE,
		)
		proctorAPI.GET("/system/metrics",
			middleware.RequirePermission(model.PermissionMonitorRead),
			handlers.System.SystemMetricsSSE,
		)
	}

	return router
}
