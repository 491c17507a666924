package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/ensemble-api/api/swagger"
	"github.com/noah-isme/ensemble-api/internal/handler"
	"github.com/noah-isme/ensemble-api/internal/middleware"
	"github.com/noah-isme/ensemble-api/internal/models"
	"github.com/noah-isme/ensemble-api/internal/repository"
	"github.com/noah-isme/ensemble-api/internal/service"
	"github.com/noah-isme/ensemble-api/pkg/cache"
	"github.com/noah-isme/ensemble-api/pkg/config"
	"github.com/noah-isme/ensemble-api/pkg/database"
	"github.com/noah-isme/ensemble-api/pkg/export"
	"github.com/noah-isme/ensemble-api/pkg/jobs"
	"github.com/noah-isme/ensemble-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/ensemble-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/ensemble-api/pkg/middleware/requestid"
	"github.com/noah-isme/ensemble-api/pkg/storage"
)

// @title Ensemble API
// @version 0.1.0
// @description Music classroom management: rosters, assignments, submissions
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The listing cache degrades to direct queries when redis is down.
		logr.Sugar().Warnw("redis unavailable, assignment listing cache disabled", "error", err)
		redisClient = nil
	}

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	pieceRepo := repository.NewPieceRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	csvExporter := export.NewCSVExporter()
	pdfExporter := export.NewPDFExporter()

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
	})
	courseSvc := service.NewCourseService(courseRepo, enrollmentRepo, csvExporter, nil, logr)
	rosterSvc := service.NewRosterService(userRepo, rosterRepo, courseRepo, logr, cfg.Roster.MaxRows)
	assignmentSvc := service.NewAssignmentService(
		assignmentRepo,
		activityRepo,
		pieceRepo,
		courseRepo,
		enrollmentRepo,
		cacheRepo,
		nil,
		logr,
		cfg.Assignments.OrderFallback,
		cfg.Assignments.ListingCacheTTL,
	)
	submissionSvc := service.NewSubmissionService(submissionRepo, gradeRepo, assignmentRepo, courseRepo, enrollmentRepo, pdfExporter, nil, logr)
	metricsSvc := service.NewMetricsService()

	reportStore, err := storage.NewLocalStorage(cfg.Reports.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare report storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.JWT.Secret, cfg.Reports.ResultTTL)
	reportSvc := service.NewReportService(reportRepo, courseRepo, enrollmentRepo, submissionRepo, reportStore, signer, csvExporter, pdfExporter, logr, service.ReportConfig{
		ResultTTL: cfg.Reports.ResultTTL,
	})
	reportQueue := jobs.NewQueue("reports", reportSvc.Process, jobs.QueueConfig{
		Workers: cfg.Reports.Workers,
		Logger:  logr,
	})
	reportQueue.Start(context.Background())
	defer reportQueue.Stop()
	reportSvc.SetQueue(reportQueue)

	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	reportSvc.StartCleanup(cleanupCtx, cfg.Reports.CleanupInterval)

	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseSvc, rosterSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	submissionHandler := handler.NewSubmissionHandler(submissionSvc)
	reportHandler := handler.NewReportHandler(reportSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.GET("/auth/me", authHandler.Me)

	authed.POST("/courses", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), courseHandler.Create)
	authed.GET("/courses/:slug", courseHandler.Get)
	authed.GET("/courses/:slug/roster", courseHandler.Roster)
	authed.POST("/courses/:slug/roster", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), courseHandler.UploadRoster)
	authed.GET("/courses/:slug/roster/export", courseHandler.ExportRoster)
	authed.PATCH("/courses/:slug/enrollments/:enrollmentId/instrument", courseHandler.UpdateInstrument)

	authed.POST("/courses/:slug/assign", assignmentHandler.BulkAssign)
	authed.GET("/courses/:slug/assignments", assignmentHandler.ListGrouped)
	authed.GET("/courses/:slug/assignments/:id", assignmentHandler.Get)
	authed.PATCH("/courses/:slug/assignments/:id", assignmentHandler.Update)
	authed.GET("/courses/:slug/activities", assignmentHandler.Activities)

	authed.GET("/courses/:slug/submissions/recent", submissionHandler.Recent)
	authed.GET("/courses/:slug/submissions/recent/export", submissionHandler.RecentReport)
	authed.GET("/courses/:slug/grades", submissionHandler.ListGrades)

	authed.POST("/assignments/:id/submissions", submissionHandler.Create)
	authed.GET("/assignments/:id/submissions", submissionHandler.List)
	authed.POST("/submissions/:id/grades", submissionHandler.CreateGrade)

	authed.POST("/courses/:slug/reports", reportHandler.Create)
	authed.GET("/reports/:id", reportHandler.Get)

	// Token-authenticated, so reachable without a bearer header.
	api.GET("/reports/download", reportHandler.Download)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
