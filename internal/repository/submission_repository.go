package repository

import (
	"time"

	"omr_grading_backend/internal/model"
	"omr_grading_backend/internal/util"

	"gorm.io/gorm"
)

type SubmissionRepository struct {
	DB *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: db}
}

func (r *SubmissionRepository) Create(sub *model.Submission) error {
	return r.DB.Create(sub).Error
}

func (r *SubmissionRepository) FindByID(id string) (*model.Submission, error) {
	var sub model.Submission
	err := r.DB.First(&sub, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubmissionRepository) ListByUser(userID uint) ([]model.Submission, error) {
	var subs []model.Submission
	err := r.DB.Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&subs).Error
	return subs, err
}

// ListRecent returns the newest submissions across all users.
func (r *SubmissionRepository) ListRecent(limit int) ([]model.Submission, error) {
	var subs []model.Submission
	err := r.DB.Order("created_at desc").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

// ListPreviousCompleted returns up to limit completed submissions of the same
// user, newest first, excluding the one being viewed.
func (r *SubmissionRepository) ListPreviousCompleted(userID uint, excludeID string, limit int) ([]model.Submission, error) {
	var subs []model.Submission
	err := r.DB.Where("user_id = ? AND status = ? AND id <> ?", userID, model.StatusCompleted, excludeID).
		Order("created_at desc").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *SubmissionRepository) ResultsBySubmission(submissionID string) ([]model.QuestionResult, error) {
	var results []model.QuestionResult
	err := r.DB.Where("submission_id = ?", submissionID).
		Order("question_number asc").
		Find(&results).Error
	return results, err
}

// CompleteWithResults commits the success transition: status, the score
// fields and every result row change together in one transaction, so readers
// never observe a completed submission without its rows. The status guard
// admits only processing, which keeps both terminal states absorbing: a
// second run racing the first (trigger endpoint, regrade sweep) matches zero
// rows and gets ErrAlreadyTerminal instead of replacing frozen results with
// a different extraction outcome.
func (r *SubmissionRepository) CompleteWithResults(sub *model.Submission, rows []model.QuestionResult) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Submission{}).
			Where("id = ? AND status = ?", sub.ID, model.StatusProcessing).
			Updates(map[string]interface{}{
				"status":            model.StatusCompleted,
				"failure_reason":    "",
				"score":             sub.Score,
				"correct_answers":   sub.CorrectCount,
				"incorrect_answers": sub.IncorrectCount,
				"unanswered":        sub.UnansweredCount,
				"answer_key":        sub.AnswerKey,
				"answer_key_source": sub.AnswerKeySource,
				"updated_at":        time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return util.ErrAlreadyTerminal
		}

		if err := tx.Where("submission_id = ?", sub.ID).Delete(&model.QuestionResult{}).Error; err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkFailed commits the failure transition with its reason. Only a
// processing submission can fail; a submission that already reached a
// terminal state is left untouched.
func (r *SubmissionRepository) MarkFailed(id, reason string) error {
	res := r.DB.Model(&model.Submission{}).
		Where("id = ? AND status = ?", id, model.StatusProcessing).
		Updates(map[string]interface{}{
			"status":         model.StatusFailed,
			"failure_reason": reason,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrAlreadyTerminal
	}
	return nil
}

type SubmissionStats struct {
	TotalSubmissions int64 `json:"totalSubmissions"`
	AverageScore     int   `json:"averageScore"`
	CompletedCount   int64 `json:"completedCount"`
	ProcessingCount  int64 `json:"processingCount"`
}

func (r *SubmissionRepository) StatsByUser(userID uint) (*SubmissionStats, error) {
	stats := &SubmissionStats{}

	if err := r.DB.Model(&model.Submission{}).
		Where("user_id = ?", userID).
		Count(&stats.TotalSubmissions).Error; err != nil {
		return nil, err
	}

	if err := r.DB.Model(&model.Submission{}).
		Where("user_id = ? AND status = ?", userID, model.StatusCompleted).
		Count(&stats.CompletedCount).Error; err != nil {
		return nil, err
	}

	if err := r.DB.Model(&model.Submission{}).
		Where("user_id = ? AND status = ?", userID, model.StatusProcessing).
		Count(&stats.ProcessingCount).Error; err != nil {
		return nil, err
	}

	if stats.CompletedCount > 0 {
		var avg float64
		if err := r.DB.Model(&model.Submission{}).
			Where("user_id = ? AND status = ?", userID, model.StatusCompleted).
			Select("COALESCE(AVG(score), 0)").
			Scan(&avg).Error; err != nil {
			return nil, err
		}
		stats.AverageScore = int(avg + 0.5)
	}

	return stats, nil
}
