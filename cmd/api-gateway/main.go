package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-classroom-api/api/swagger"
	"github.com/noah-isme/sma-classroom-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-classroom-api/internal/middleware"
	"github.com/noah-isme/sma-classroom-api/internal/repository"
	"github.com/noah-isme/sma-classroom-api/internal/service"
	"github.com/noah-isme/sma-classroom-api/pkg/cache"
	"github.com/noah-isme/sma-classroom-api/pkg/config"
	"github.com/noah-isme/sma-classroom-api/pkg/database"
	"github.com/noah-isme/sma-classroom-api/pkg/jobs"
	"github.com/noah-isme/sma-classroom-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-classroom-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-classroom-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-classroom-api/pkg/storage"
)

// @title SMA Classroom API
// @version 1.0.0
// @description Marks, attendance, class rankings and class chat for a secondary school
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, ranking cache disabled", "error", err)
			redisClient = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Ranking.CacheTTL, logr, cfg.Ranking.CacheEnabled && redisClient != nil)

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	markRepo := repository.NewMarkRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	settingRepo := repository.NewChatSettingRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	rankEngine := service.NewRankEngine(logr, metricsSvc)
	academicSvc := service.NewAcademicService(studentRepo, markRepo, rankEngine, cacheSvc, metricsSvc, logr)
	exportSvc := service.NewExportService(academicSvc, logr)
	markSvc := service.NewMarkService(markRepo, studentRepo, cacheSvc, metricsSvc, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, metricsSvc, validate, logr)
	chatSvc := service.NewChatService(messageRepo, settingRepo, studentRepo, metricsSvc, validate, logr, service.ChatConfig{
		PageSize:    cfg.Chat.PageSize,
		MaxPageSize: cfg.Chat.MaxPageSize,
	})

	objectStore, err := storage.NewLocalStorage(cfg.Storage.BaseDir)
	if err != nil {
		logr.Sugar().Fatalw("attachment storage unavailable", "error", err)
	}
	attachmentSvc := service.NewAttachmentService(
		objectStore,
		storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL),
		metricsSvc,
		logr,
		service.AttachmentConfig{
			Bucket:       cfg.Storage.Bucket,
			MaxFileSize:  cfg.Storage.MaxFileSizeBytes,
			AllowedMIMEs: cfg.Storage.AllowedMIMEs,
			PreviewSize:  cfg.Storage.PreviewSize,
			FilesPath:    cfg.APIPrefix + "/files",
		},
	)
	previewQueue := jobs.NewQueue("attachment-previews", attachmentSvc.PreviewJobHandler(), jobs.QueueConfig{
		Workers:    cfg.Storage.PreviewWorkers,
		MaxRetries: 2,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	previewQueue.Start(ctx)
	defer previewQueue.Stop()
	attachmentSvc.UsePreviewQueue(previewQueue)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.WithResponseMeta())

	ops := handler.NewMetricsHandler(metricsSvc, map[string]handler.Pinger{
		"database": db,
		"redis":    handler.PingFunc(cacheRepo.Ping),
	})
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	routes := handler.Routes{
		Auth:        handler.NewAuthHandler(authSvc),
		Users:       handler.NewUserHandler(userSvc),
		Students:    handler.NewStudentHandler(studentSvc),
		Classes:     handler.NewClassHandler(),
		Academic:    handler.NewAcademicHandler(academicSvc, exportSvc),
		Marks:       handler.NewMarkHandler(markSvc),
		Attendance:  handler.NewAttendanceHandler(attendanceSvc),
		Chat:        handler.NewChatHandler(chatSvc),
		Attachments: handler.NewAttachmentHandler(attachmentSvc),
		Ops:         ops,
	}
	routes.Register(r.Group(cfg.APIPrefix), internalmiddleware.JWT(authSvc))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
