package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"omr_grading_backend/internal/config"
	"omr_grading_backend/internal/controller"
	"omr_grading_backend/internal/repository"
	"omr_grading_backend/internal/service"
	"omr_grading_backend/pkg/configwatcher"
	"omr_grading_backend/pkg/database"
	"omr_grading_backend/pkg/logger"
	"omr_grading_backend/pkg/monitoring"
	"omr_grading_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	tracerProvider *trace.TracerProvider
	visionService  *service.VisionService

	authController       *controller.AuthController
	submissionController *controller.SubmissionController
	exportController     *controller.ExportController
	healthController     *controller.HealthController
}

func NewApp(cfg *config.Config) (*App, error) {
	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, DB: db}

	if cfg.Redis.Enabled {
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Warn("redis unavailable, status notifications disabled", zap.Error(err))
		} else {
			app.Redis = rdb
		}
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("omr-grading-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Warn("tracing unavailable", zap.Error(err))
		} else {
			app.tracerProvider = tp
		}
	}

	monitoring.Init()

	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubmissionRepository(db)

	storageService := service.NewStorageService(cfg)
	visionService := service.NewVisionService(cfg.Vision)
	app.visionService = visionService
	notifyService := service.NewNotifyService(app.Redis)
	gradingService := service.NewGradingService(subRepo, storageService, visionService, notifyService)
	submissionService := service.NewSubmissionService(subRepo, storageService, gradingService)
	authService := service.NewAuthService(userRepo, cfg)

	app.authController = controller.NewAuthController(authService)
	app.submissionController = controller.NewSubmissionController(submissionService)
	app.exportController = controller.NewExportController(submissionService)
	app.healthController = controller.NewHealthController(db)

	app.Router = app.setupRouter()
	return app, nil
}

// Run serves HTTP until SIGINT/SIGTERM, then shuts down gracefully. In-flight
// grading goroutines are not waited on; an interrupted run leaves its
// submission in processing and the trigger endpoint re-drives it.
func (a *App) Run() error {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// Hot-reload the vision endpoint settings so API keys and models can
	// rotate without a restart.
	go configwatcher.WatchConfig("configs/config.yaml", a.Config, func(newCfg interface{}) {
		cfg, ok := newCfg.(*config.Config)
		if !ok {
			return
		}
		a.visionService.UpdateConfig(cfg.Vision)
		logger.Log.Info("config reloaded, vision settings applied",
			zap.String("model", cfg.Vision.Model))
	})

	go func() {
		logger.Log.Info("server started", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			logger.Log.Warn("tracer shutdown", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	return srv.Shutdown(ctx)
}
