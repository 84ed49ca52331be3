package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"omr_grading_backend/internal/model"
	"omr_grading_backend/internal/omr"
	"omr_grading_backend/internal/repository"
	"omr_grading_backend/internal/util"
	"omr_grading_backend/pkg/logger"

	"go.uber.org/zap"
)

type SubmissionService struct {
	subRepo *repository.SubmissionRepository
	storage *StorageService
	grading *GradingService
}

func NewSubmissionService(subRepo *repository.SubmissionRepository, storage *StorageService, grading *GradingService) *SubmissionService {
	return &SubmissionService{
		subRepo: subRepo,
		storage: storage,
		grading: grading,
	}
}

type CreateSubmissionInput struct {
	UserID         uint
	ExamName       string
	TotalQuestions int
	Sheet          *multipart.FileHeader
	AnswerKey      *multipart.FileHeader
}

// SubmissionDetail bundles one submission with its per-question rows and the
// student's most recent completed submissions for side-by-side comparison.
type SubmissionDetail struct {
	Submission *model.Submission      `json:"submission"`
	Results    []model.QuestionResult `json:"results"`
	Previous   []model.Submission     `json:"previousSubmissions"`
}

const previousSubmissionsLimit = 5

// Create validates the upload, stores the sheet, persists the submission in
// processing and kicks off grading in the background. Validation failures
// happen before anything is written, so a rejected upload leaves no row.
func (s *SubmissionService) Create(ctx context.Context, in CreateSubmissionInput) (*model.Submission, error) {
	if strings.TrimSpace(in.ExamName) == "" {
		return nil, &omr.ValidationError{Msg: "exam name is required"}
	}
	if in.TotalQuestions < 1 || in.TotalQuestions > 200 {
		return nil, &omr.ValidationError{Msg: "total questions must be between 1 and 200"}
	}
	if in.Sheet == nil {
		return nil, &omr.ValidationError{Msg: "answer sheet image is required"}
	}

	ext := strings.ToLower(filepath.Ext(in.Sheet.Filename))
	if !extensionAllowed(ext, util.AllowedSheetExtensions) {
		return nil, &omr.ValidationError{Msg: fmt.Sprintf("unsupported sheet format %q, expected one of %s", ext, strings.Join(util.AllowedSheetExtensions, ", "))}
	}

	keyJSON, err := s.readAnswerKey(in.AnswerKey, in.TotalQuestions)
	if err != nil {
		return nil, err
	}

	sheet, err := in.Sheet.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded sheet: %w", err)
	}
	defer sheet.Close()

	fileRef := fmt.Sprintf("%d/%d%s", in.UserID, time.Now().UnixNano(), ext)
	if _, err := s.storage.Upload(ctx, fileRef, sheet, in.Sheet.Size, sheetContentType(ext)); err != nil {
		return nil, fmt.Errorf("store sheet: %w", err)
	}

	sub := &model.Submission{
		UserID:         in.UserID,
		ExamName:       strings.TrimSpace(in.ExamName),
		FileRef:        fileRef,
		TotalQuestions: in.TotalQuestions,
		AnswerKey:      keyJSON,
		Status:         model.StatusProcessing,
	}
	if err := s.subRepo.Create(sub); err != nil {
		// the stored sheet has no owning row, remove it
		if derr := s.storage.Delete(ctx, fileRef); derr != nil {
			logger.Log.Warn("failed to remove orphaned sheet",
				zap.String("file_ref", fileRef),
				zap.Error(derr))
		}
		return nil, fmt.Errorf("create submission: %w", err)
	}

	logger.Log.Info("submission created",
		zap.String("submission_id", sub.ID),
		zap.Uint("user_id", in.UserID),
		zap.Int("total_questions", in.TotalQuestions),
		zap.Bool("key_provided", keyJSON != ""))

	s.grading.ProcessAsync(sub.ID)
	return sub, nil
}

// readAnswerKey parses and validates an optional uploaded key file and
// returns it re-encoded as canonical JSON, or "" when no key was uploaded.
func (s *SubmissionService) readAnswerKey(fh *multipart.FileHeader, totalQuestions int) (string, error) {
	if fh == nil {
		return "", nil
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !extensionAllowed(ext, util.AllowedKeyExtensions) {
		return "", &omr.ValidationError{Msg: fmt.Sprintf("unsupported answer key format %q, expected .csv or .json", ext)}
	}

	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open uploaded answer key: %w", err)
	}
	defer f.Close()

	var entries []omr.KeyEntry
	if ext == ".csv" {
		entries, err = omr.ParseKeyCSV(f)
	} else {
		var data []byte
		data, err = io.ReadAll(f)
		if err == nil {
			entries, err = omr.ParseKeyJSON(data)
		}
	}
	if err != nil {
		return "", err
	}

	if _, err := omr.ResolveKey(entries, totalQuestions); err != nil {
		return "", err
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode answer key: %w", err)
	}
	return string(data), nil
}

func (s *SubmissionService) List(userID uint) ([]model.Submission, error) {
	return s.subRepo.ListByUser(userID)
}

// ListRecent is the admin view over all users' submissions.
func (s *SubmissionService) ListRecent(limit int) ([]model.Submission, error) {
	return s.subRepo.ListRecent(limit)
}

func (s *SubmissionService) Stats(userID uint) (*repository.SubmissionStats, error) {
	return s.subRepo.StatsByUser(userID)
}

// Detail returns a submission the caller owns, its result rows and the
// caller's previous completed submissions.
func (s *SubmissionService) Detail(userID uint, submissionID string) (*SubmissionDetail, error) {
	sub, err := s.findOwned(userID, submissionID)
	if err != nil {
		return nil, err
	}

	results, err := s.subRepo.ResultsBySubmission(sub.ID)
	if err != nil {
		return nil, err
	}
	previous, err := s.subRepo.ListPreviousCompleted(userID, sub.ID, previousSubmissionsLimit)
	if err != nil {
		return nil, err
	}

	return &SubmissionDetail{Submission: sub, Results: results, Previous: previous}, nil
}

// Trigger re-drives grading for a submission stuck in processing, for
// example after a crash between creation and the pipeline run. Terminal
// submissions are not reprocessed.
func (s *SubmissionService) Trigger(userID uint, submissionID string) error {
	sub, err := s.findOwned(userID, submissionID)
	if err != nil {
		return err
	}
	if sub.Status != model.StatusProcessing {
		return util.ErrAlreadyTerminal
	}
	s.grading.ProcessAsync(sub.ID)
	return nil
}

// ExportCSV renders the results of a completed submission as CSV and returns
// the content with its download filename.
func (s *SubmissionService) ExportCSV(userID uint, submissionID string) ([]byte, string, error) {
	sub, results, err := s.exportable(userID, submissionID)
	if err != nil {
		return nil, "", err
	}
	data, err := omr.ExportCSV(sub, results)
	if err != nil {
		return nil, "", err
	}
	return data, omr.ExportFilename(sub, "csv"), nil
}

// ExportHTML renders the printable report for a completed submission.
func (s *SubmissionService) ExportHTML(userID uint, submissionID string) ([]byte, string, error) {
	sub, results, err := s.exportable(userID, submissionID)
	if err != nil {
		return nil, "", err
	}
	data, err := omr.ExportHTML(sub, results)
	if err != nil {
		return nil, "", err
	}
	return data, omr.ExportFilename(sub, "html"), nil
}

func (s *SubmissionService) exportable(userID uint, submissionID string) (*model.Submission, []model.QuestionResult, error) {
	sub, err := s.findOwned(userID, submissionID)
	if err != nil {
		return nil, nil, err
	}
	results, err := s.subRepo.ResultsBySubmission(sub.ID)
	if err != nil {
		return nil, nil, err
	}
	return sub, results, nil
}

func (s *SubmissionService) findOwned(userID uint, submissionID string) (*model.Submission, error) {
	sub, err := s.subRepo.FindByID(submissionID)
	if err != nil {
		return nil, util.ErrSubmissionNotFound
	}
	if sub.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	return sub, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

func sheetContentType(ext string) string {
	switch ext {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
