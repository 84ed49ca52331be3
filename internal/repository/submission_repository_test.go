package repository

import (
	"testing"

	"omr_grading_backend/internal/model"
	"omr_grading_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// The models carry MySQL column types, so the sqlite test schema is declared
// by hand with the same column names.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// every pooled connection to :memory: is a separate database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Exec(`CREATE TABLE submissions (
		id TEXT PRIMARY KEY,
		created_at DATETIME,
		updated_at DATETIME,
		user_id INTEGER,
		exam_name TEXT,
		file_ref TEXT,
		total_questions INTEGER,
		answer_key TEXT,
		answer_key_source TEXT,
		status TEXT,
		failure_reason TEXT,
		score INTEGER,
		correct_answers INTEGER,
		incorrect_answers INTEGER,
		unanswered INTEGER
	)`).Error)

	require.NoError(t, db.Exec(`CREATE TABLE question_results (
		id TEXT PRIMARY KEY,
		created_at DATETIME,
		updated_at DATETIME,
		submission_id TEXT,
		question_number INTEGER,
		marked_answer TEXT,
		correct_answer TEXT,
		is_correct BOOLEAN,
		UNIQUE (submission_id, question_number)
	)`).Error)

	return db
}

func seedProcessing(t *testing.T, repo *SubmissionRepository) *model.Submission {
	t.Helper()
	sub := &model.Submission{
		UserID:         7,
		ExamName:       "Midterm",
		FileRef:        "7/123.jpg",
		TotalQuestions: 2,
		Status:         model.StatusProcessing,
	}
	require.NoError(t, repo.Create(sub))
	return sub
}

func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }
func boolp(v bool) *bool    { return &v }

func gradedRows(subID string, marked string, correct bool) []model.QuestionResult {
	return []model.QuestionResult{
		{SubmissionID: subID, QuestionNumber: 1, MarkedAnswer: strp(marked), CorrectAnswer: "A", IsCorrect: boolp(correct)},
		{SubmissionID: subID, QuestionNumber: 2, MarkedAnswer: nil, CorrectAnswer: "B", IsCorrect: nil},
	}
}

func TestCompleteWithResultsCommitsAtomically(t *testing.T) {
	repo := NewSubmissionRepository(testDB(t))
	sub := seedProcessing(t, repo)

	sub.Score = intp(50)
	sub.CorrectCount = intp(1)
	sub.IncorrectCount = intp(0)
	sub.UnansweredCount = intp(1)
	require.NoError(t, repo.CompleteWithResults(sub, gradedRows(sub.ID, "A", true)))

	got, err := repo.FindByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.Score)
	assert.Equal(t, 50, *got.Score)

	rows, err := repo.ResultsBySubmission(sub.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].QuestionNumber)
	require.NotNil(t, rows[0].MarkedAnswer)
	assert.Equal(t, "A", *rows[0].MarkedAnswer)
	assert.Nil(t, rows[1].MarkedAnswer)
}

func TestCompleteWithResultsDoesNotOverwriteCompleted(t *testing.T) {
	repo := NewSubmissionRepository(testDB(t))
	sub := seedProcessing(t, repo)

	sub.Score = intp(100)
	sub.CorrectCount = intp(2)
	sub.IncorrectCount = intp(0)
	sub.UnansweredCount = intp(0)
	require.NoError(t, repo.CompleteWithResults(sub, gradedRows(sub.ID, "A", true)))

	// A second run that raced the first and extracted something else must
	// not replace the committed result set.
	second := *sub
	second.Score = intp(0)
	second.CorrectCount = intp(0)
	second.IncorrectCount = intp(2)
	second.UnansweredCount = intp(0)
	err := repo.CompleteWithResults(&second, gradedRows(sub.ID, "B", false))
	require.ErrorIs(t, err, util.ErrAlreadyTerminal)

	got, err := repo.FindByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.Score)
	assert.Equal(t, 100, *got.Score)

	rows, err := repo.ResultsBySubmission(sub.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].MarkedAnswer)
	assert.Equal(t, "A", *rows[0].MarkedAnswer)
}

func TestCompleteWithResultsDoesNotResurrectFailed(t *testing.T) {
	repo := NewSubmissionRepository(testDB(t))
	sub := seedProcessing(t, repo)

	require.NoError(t, repo.MarkFailed(sub.ID, "low_image_quality"))

	sub.Score = intp(50)
	sub.CorrectCount = intp(1)
	sub.IncorrectCount = intp(0)
	sub.UnansweredCount = intp(1)
	err := repo.CompleteWithResults(sub, gradedRows(sub.ID, "A", true))
	require.ErrorIs(t, err, util.ErrAlreadyTerminal)

	got, err := repo.FindByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "low_image_quality", got.FailureReason)

	rows, err := repo.ResultsBySubmission(sub.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMarkFailedOnlyFromProcessing(t *testing.T) {
	repo := NewSubmissionRepository(testDB(t))
	sub := seedProcessing(t, repo)

	sub.Score = intp(100)
	sub.CorrectCount = intp(2)
	sub.IncorrectCount = intp(0)
	sub.UnansweredCount = intp(0)
	require.NoError(t, repo.CompleteWithResults(sub, gradedRows(sub.ID, "A", true)))

	err := repo.MarkFailed(sub.ID, "internal_error")
	require.ErrorIs(t, err, util.ErrAlreadyTerminal)

	got, err := repo.FindByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Empty(t, got.FailureReason)
}
