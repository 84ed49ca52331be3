package service

import (
	"context"
	"encoding/json"

	"omr_grading_backend/internal/model"
	"omr_grading_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StatusChannel carries terminal status transitions for subscribers
// (dashboards poll the DB; anything that wants a push listens here).
const StatusChannel = "omr:submission_status"

type statusEvent struct {
	SubmissionID  string                 `json:"submissionId"`
	Status        model.SubmissionStatus `json:"status"`
	FailureReason string                 `json:"failureReason,omitempty"`
}

// NotifyService publishes submission status changes over redis pub/sub.
// Best effort: a publish failure is logged, never propagated, and a nil
// service (redis disabled) is a no-op.
type NotifyService struct {
	rdb *redis.Client
}

func NewNotifyService(rdb *redis.Client) *NotifyService {
	if rdb == nil {
		return nil
	}
	return &NotifyService{rdb: rdb}
}

func (s *NotifyService) PublishStatus(ctx context.Context, submissionID string, status model.SubmissionStatus, failureReason string) {
	if s == nil || s.rdb == nil {
		return
	}

	payload, err := json.Marshal(statusEvent{
		SubmissionID:  submissionID,
		Status:        status,
		FailureReason: failureReason,
	})
	if err != nil {
		return
	}

	if err := s.rdb.Publish(ctx, StatusChannel, payload).Err(); err != nil {
		logger.Log.Warn("failed to publish status event",
			zap.String("submission_id", submissionID),
			zap.Error(err))
	}
}
