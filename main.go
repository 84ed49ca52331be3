package main

import (
	"log"

	"omr_grading_backend/internal/app"
	"omr_grading_backend/internal/config"
	"omr_grading_backend/pkg/logger"

	"go.uber.org/zap"
)

// @title OMR Grading API
// @version 1.0
// @description Backend for uploading bubble-sheet images and grading them against an answer key.

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// @BasePath /
func main() {
	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	application, err := app.NewApp(cfg)
	if err != nil {
		logger.Log.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := application.Run(); err != nil {
		logger.Log.Fatal("server stopped", zap.Error(err))
	}
}
