package model

// SubmissionStatus is the lifecycle of one grading job. A submission starts
// in processing and reaches exactly one terminal state; terminal states are
// never left again — retries create a new submission.
type SubmissionStatus string

const (
	StatusProcessing SubmissionStatus = "processing"
	StatusCompleted  SubmissionStatus = "completed"
	StatusFailed     SubmissionStatus = "failed"
)

// Answer key provenance, surfaced to operators so a synthesized key is
// never mistaken for a real one.
const (
	KeySourceProvided    = "provided"
	KeySourceSynthesized = "synthesized"
)

// swagger:model Submission
type Submission struct {
	UUIDBase
	UserID          uint             `gorm:"index;type:bigint unsigned;not null" json:"userId"`
	ExamName        string           `gorm:"size:255;not null" json:"examName"`
	FileRef         string           `gorm:"size:512;not null" json:"fileRef"`
	TotalQuestions  int              `gorm:"not null" json:"totalQuestions"`
	AnswerKey       string           `gorm:"type:text" json:"-"` // JSON-encoded key, empty when none supplied
	AnswerKeySource string           `gorm:"size:20" json:"answerKeySource,omitempty"`
	Status          SubmissionStatus `gorm:"type:enum('processing','completed','failed');default:'processing';index" json:"status"`
	FailureReason   string           `gorm:"size:40" json:"failureReason,omitempty"`
	Score           *int             `json:"score,omitempty"`
	CorrectCount    *int             `gorm:"column:correct_answers" json:"correctAnswers,omitempty"`
	IncorrectCount  *int             `gorm:"column:incorrect_answers" json:"incorrectAnswers,omitempty"`
	UnansweredCount *int             `gorm:"column:unanswered" json:"unanswered,omitempty"`
}

func (Submission) TableName() string {
	return "submissions"
}

// QuestionResult is one graded question of a completed submission. A
// submission owns either zero rows (processing/failed) or exactly
// TotalQuestions of them.
//
// swagger:model QuestionResult
type QuestionResult struct {
	UUIDBase
	SubmissionID   string  `gorm:"index:idx_submission_question,unique;type:varchar(36);not null" json:"submissionId"`
	QuestionNumber int     `gorm:"index:idx_submission_question,unique;not null" json:"questionNumber"`
	MarkedAnswer   *string `gorm:"size:1" json:"markedAnswer"` // nil when unanswered
	CorrectAnswer  string  `gorm:"size:1;not null" json:"correctAnswer"`
	IsCorrect      *bool   `json:"isCorrect"` // nil when unanswered: neither correct nor incorrect
}

func (QuestionResult) TableName() string {
	return "question_results"
}
