package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"omr_grading_backend/internal/model"
	"omr_grading_backend/internal/omr"
	"omr_grading_backend/internal/repository"
	"omr_grading_backend/internal/util"
	"omr_grading_backend/pkg/logger"
	"omr_grading_backend/pkg/monitoring"
	"omr_grading_backend/pkg/tracing"

	"go.uber.org/zap"
)

// submissionStore is the slice of the submission repository the pipeline
// needs: read one job, commit exactly one terminal transition.
type submissionStore interface {
	FindByID(id string) (*model.Submission, error)
	CompleteWithResults(sub *model.Submission, rows []model.QuestionResult) error
	MarkFailed(id, reason string) error
}

type sheetStore interface {
	Download(ctx context.Context, filename string) (io.ReadCloser, error)
}

type statusNotifier interface {
	PublishStatus(ctx context.Context, submissionID string, status model.SubmissionStatus, failureReason string)
}

// GradingService drives one submission through the pipeline:
// download → extract → score → commit. One run per submission, no internal
// retries, no cancellation once started; any failure is terminal.
type GradingService struct {
	subs      submissionStore
	storage   sheetStore
	extractor MarkExtractor
	notifier  statusNotifier
}

func NewGradingService(subs *repository.SubmissionRepository, storage *StorageService, extractor MarkExtractor, notifier *NotifyService) *GradingService {
	return &GradingService{
		subs:      subs,
		storage:   storage,
		extractor: extractor,
		notifier:  notifier,
	}
}

// ProcessAsync spawns the one-shot pipeline task for a submission. Runs are
// independent; concurrent submissions share no mutable state.
func (s *GradingService) ProcessAsync(submissionID string) {
	go func() {
		if err := s.Process(context.Background(), submissionID); err != nil {
			logger.Log.Error("grading pipeline failed",
				zap.String("submission_id", submissionID),
				zap.Error(err))
		}
	}()
}

// Process runs the pipeline to a terminal state. The submission must exist
// in processing; a submission already terminal is left untouched.
func (s *GradingService) Process(ctx context.Context, submissionID string) error {
	ctx, span := tracing.Tracer.Start(ctx, "omr.process_submission")
	defer span.End()

	sub, err := s.subs.FindByID(submissionID)
	if err != nil {
		return fmt.Errorf("load submission %s: %w", submissionID, err)
	}
	if sub.Status != model.StatusProcessing {
		return util.ErrAlreadyTerminal
	}

	if err := s.run(ctx, sub); err != nil {
		// Another run won the commit race; its result set stands.
		if errors.Is(err, util.ErrAlreadyTerminal) {
			return err
		}
		reason := omr.FailureReason(err)
		if merr := s.subs.MarkFailed(sub.ID, reason); merr != nil {
			logger.Log.Error("failed to record failure state",
				zap.String("submission_id", sub.ID),
				zap.Error(merr))
		}
		monitoring.SubmissionsProcessed.WithLabelValues(string(model.StatusFailed)).Inc()
		if s.notifier != nil {
			s.notifier.PublishStatus(ctx, sub.ID, model.StatusFailed, reason)
		}
		return err
	}

	monitoring.SubmissionsProcessed.WithLabelValues(string(model.StatusCompleted)).Inc()
	if s.notifier != nil {
		s.notifier.PublishStatus(ctx, sub.ID, model.StatusCompleted, "")
	}
	logger.Log.Info("submission graded",
		zap.String("submission_id", sub.ID),
		zap.Intp("score", sub.Score))
	return nil
}

func (s *GradingService) run(ctx context.Context, sub *model.Submission) error {
	key, err := s.resolveKey(sub)
	if err != nil {
		return err
	}

	rc, err := s.storage.Download(ctx, sub.FileRef)
	if err != nil {
		return fmt.Errorf("download sheet %s: %w", sub.FileRef, err)
	}
	image, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("read sheet %s: %w", sub.FileRef, err)
	}

	marks, err := s.extractor.Extract(ctx, image, sub.TotalQuestions)
	if err != nil {
		return err
	}

	scored := omr.Score(marks, key, sub.TotalQuestions)

	rows := make([]model.QuestionResult, 0, len(scored.Questions))
	for _, q := range scored.Questions {
		rows = append(rows, model.QuestionResult{
			SubmissionID:   sub.ID,
			QuestionNumber: q.Number,
			MarkedAnswer:   q.Marked,
			CorrectAnswer:  q.Correct,
			IsCorrect:      q.IsCorrect,
		})
	}

	sub.Score = &scored.Score
	sub.CorrectCount = &scored.CorrectCount
	sub.IncorrectCount = &scored.IncorrectCount
	sub.UnansweredCount = &scored.UnansweredCount

	if err := s.subs.CompleteWithResults(sub, rows); err != nil {
		if errors.Is(err, util.ErrAlreadyTerminal) {
			return err
		}
		return fmt.Errorf("%w: %v", omr.ErrPersistence, err)
	}
	return nil
}

// resolveKey freezes the effective answer key for this run. A stored key is
// validated; with no key stored, a deterministic placeholder is synthesized
// from the submission id and the submission is flagged so nobody mistakes
// the resulting score for a real grade.
func (s *GradingService) resolveKey(sub *model.Submission) (omr.AnswerKey, error) {
	if sub.AnswerKey != "" {
		var entries []omr.KeyEntry
		if err := json.Unmarshal([]byte(sub.AnswerKey), &entries); err != nil {
			return nil, &omr.ValidationError{Msg: "stored answer key is not valid JSON: " + err.Error()}
		}
		key, err := omr.ResolveKey(entries, sub.TotalQuestions)
		if err != nil {
			return nil, err
		}
		sub.AnswerKeySource = model.KeySourceProvided
		return key, nil
	}

	// Placeholder until a real admin-managed key store exists; the score is
	// meaningless on this path and the flag makes that visible.
	logger.Log.Warn("no answer key configured; synthesizing placeholder key",
		zap.String("submission_id", sub.ID))
	key := omr.SynthesizeKey(sub.ID, sub.TotalQuestions)
	sub.AnswerKeySource = model.KeySourceSynthesized
	sub.AnswerKey = encodeKey(key)
	return key, nil
}

func encodeKey(key omr.AnswerKey) string {
	entries := make([]omr.KeyEntry, 0, len(key))
	for q, opt := range key {
		entries = append(entries, omr.KeyEntry{Question: q, Correct: opt})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Question < entries[j].Question })
	data, _ := json.Marshal(entries)
	return string(data)
}
