package app

import (
	"time"

	"omr_grading_backend/internal/middleware"
	"omr_grading_backend/internal/model"
	"omr_grading_backend/pkg/monitoring"
	"omr_grading_backend/pkg/security"
	"omr_grading_backend/pkg/tracing"

	"omr_grading_backend/docs"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) setupRouter() *gin.Engine {
	gin.SetMode(a.Config.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(security.CORS(a.Config.CORS.AllowedOrigins))
	r.Use(security.Secure())
	r.Use(monitoring.MetricsMiddleware())
	if a.tracerProvider != nil {
		r.Use(tracing.GinMiddleware())
	}
	if a.Config.RateLimit.MaxRequests > 0 {
		r.Use(security.RateLimiter(
			a.Config.RateLimit.MaxRequests,
			time.Duration(a.Config.RateLimit.WindowMinutes)*time.Minute,
		))
	}

	docs.SwaggerInfo.BasePath = "/"
	r.GET("/health", a.healthController.Health)
	r.GET("/metrics", monitoring.PrometheusHandler())
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", a.authController.Register)
			auth.POST("/login", a.authController.Login)
		}

		authed := api.Group("")
		authed.Use(middleware.AuthMiddleware(a.Config))
		{
			authed.GET("/auth/me", a.authController.Me)

			authed.POST("/submissions", a.submissionController.Create)
			authed.GET("/submissions", a.submissionController.List)
			authed.GET("/submissions/stats", a.submissionController.Stats)
			authed.GET("/submissions/:id", a.submissionController.Detail)
			authed.POST("/submissions/:id/process", a.submissionController.Trigger)
			authed.GET("/submissions/:id/export/csv", a.exportController.ExportCSV)
			authed.GET("/submissions/:id/export/report", a.exportController.Report)

			authed.GET("/answer-key/template", a.submissionController.KeyTemplate)

			admin := authed.Group("/admin")
			admin.Use(middleware.RoleMiddleware(model.Admin))
			{
				admin.GET("/submissions", a.submissionController.AdminList)
			}
		}
	}

	return r
}
