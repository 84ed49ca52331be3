// Re-drives submissions stranded in processing.
//
// A crash between submission creation and the pipeline run leaves the row in
// processing forever. The trigger endpoint re-drives one submission at a
// time; this script sweeps all of them, for example after a deploy rollback.
//
// Usage: go run scripts/regrade_stuck.go
package main

import (
	"context"
	"log"
	"time"

	"omr_grading_backend/internal/config"
	"omr_grading_backend/internal/model"
	"omr_grading_backend/internal/repository"
	"omr_grading_backend/internal/service"
	"omr_grading_backend/pkg/database"
	"omr_grading_backend/pkg/logger"
)

// Leave fresh submissions alone; their pipeline run may still be in flight.
const stuckAfter = 10 * time.Minute

func main() {
	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.InitLogger(cfg)

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	subRepo := repository.NewSubmissionRepository(db)
	storage := service.NewStorageService(cfg)
	vision := service.NewVisionService(cfg.Vision)
	grading := service.NewGradingService(subRepo, storage, vision, nil)

	var stuck []model.Submission
	cutoff := time.Now().Add(-stuckAfter)
	if err := db.Where("status = ? AND created_at < ?", model.StatusProcessing, cutoff).
		Order("created_at asc").
		Find(&stuck).Error; err != nil {
		log.Fatalf("failed to query stuck submissions: %v", err)
	}

	if len(stuck) == 0 {
		log.Println("no stuck submissions found")
		return
	}
	log.Printf("re-driving %d stuck submissions", len(stuck))

	ctx := context.Background()
	var failed int
	for _, sub := range stuck {
		if err := grading.Process(ctx, sub.ID); err != nil {
			failed++
			log.Printf("submission %s: %v", sub.ID, err)
		}
	}
	log.Printf("done: %d graded, %d failed", len(stuck)-failed, failed)
}
