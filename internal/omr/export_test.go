package omr

import (
	"testing"
	"time"

	"omr_grading_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedSubmission() (*model.Submission, []model.QuestionResult) {
	score, correct, incorrect, unanswered := 50, 1, 0, 1
	sub := &model.Submission{
		ExamName:        "Midterm Physics",
		TotalQuestions:  2,
		Status:          model.StatusCompleted,
		Score:           &score,
		CorrectCount:    &correct,
		IncorrectCount:  &incorrect,
		UnansweredCount: &unanswered,
	}
	sub.ID = "sub-1"
	sub.CreatedAt = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	markedA := "A"
	isCorrect := true
	results := []model.QuestionResult{
		{SubmissionID: "sub-1", QuestionNumber: 2, CorrectAnswer: "B"}, // unanswered, out of order on purpose
		{SubmissionID: "sub-1", QuestionNumber: 1, MarkedAnswer: &markedA, CorrectAnswer: "A", IsCorrect: &isCorrect},
	}
	return sub, results
}

func TestExportCSV(t *testing.T) {
	sub, results := completedSubmission()

	out, err := ExportCSV(sub, results)
	require.NoError(t, err)

	want := "Question Number,Marked Answer,Correct Answer,Result,Status\n" +
		"1,A,A,Correct,✓\n" +
		"2,N/A,B,Unanswered,-\n" +
		"\nSUMMARY\n" +
		"Exam Name,Midterm Physics\n" +
		"Total Questions,2\n" +
		"Score,50%\n" +
		"Correct Answers,1\n" +
		"Incorrect Answers,0\n" +
		"Unanswered,1\n" +
		"Date,2026-03-14 09:30:00"
	assert.Equal(t, want, string(out))
}

func TestExportCSV_NotReady(t *testing.T) {
	sub, results := completedSubmission()

	processing := *sub
	processing.Status = model.StatusProcessing
	_, err := ExportCSV(&processing, nil)
	assert.ErrorIs(t, err, ErrNotReady)

	failed := *sub
	failed.Status = model.StatusFailed
	_, err = ExportCSV(&failed, nil)
	assert.ErrorIs(t, err, ErrNotReady)

	// completed but missing a row
	_, err = ExportCSV(sub, results[:1])
	assert.ErrorIs(t, err, ErrNotReady)

	// completed but score fields absent
	noScore := *sub
	noScore.Score = nil
	_, err = ExportCSV(&noScore, results)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestExportHTML(t *testing.T) {
	sub, results := completedSubmission()

	out, err := ExportHTML(sub, results)
	require.NoError(t, err)

	html := string(out)
	assert.Contains(t, html, "<title>Midterm Physics - Results</title>")
	assert.Contains(t, html, "50%")
	assert.Contains(t, html, `<td class="correct">✓ Correct</td>`)
	assert.Contains(t, html, `<td class="unanswered">Unanswered</td>`)
	assert.Contains(t, html, "N/A")
}

func TestExportHTML_NotReady(t *testing.T) {
	sub, _ := completedSubmission()
	sub.Status = model.StatusFailed

	_, err := ExportHTML(sub, nil)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestExportFilename(t *testing.T) {
	sub := &model.Submission{ExamName: "Midterm  Physics 2026"}
	assert.Equal(t, "Midterm_Physics_2026_results.csv", ExportFilename(sub, "csv"))

	empty := &model.Submission{}
	assert.Equal(t, "submission_results.html", ExportFilename(empty, "html"))
}
