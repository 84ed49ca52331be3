package omr

import "math"

// QuestionScore is one graded question. Marked and IsCorrect are nil for an
// unanswered question: unanswered is neither correct nor incorrect.
type QuestionScore struct {
	Number    int
	Marked    *string
	Correct   string
	IsCorrect *bool
}

// ScoredResult aggregates one submission's grading. The three counts sum to
// the total question count by construction.
type ScoredResult struct {
	Score           int
	CorrectCount    int
	IncorrectCount  int
	UnansweredCount int
	Questions       []QuestionScore
}

// Score joins the extracted marks with the resolved key. Questions missing
// from marks, or carrying the NotAnswered sentinel, are classified
// unanswered. Deterministic and pure: any key synthesis happens before this
// stage, never inside it.
func Score(marks MarkSet, key AnswerKey, totalQuestions int) ScoredResult {
	result := ScoredResult{
		Questions: make([]QuestionScore, 0, totalQuestions),
	}

	for q := 1; q <= totalQuestions; q++ {
		qs := QuestionScore{Number: q, Correct: key[q]}

		marked, ok := marks[q]
		if !ok || marked == "" || marked == NotAnswered {
			result.UnansweredCount++
		} else {
			m := marked
			correct := m == key[q]
			qs.Marked = &m
			qs.IsCorrect = &correct
			if correct {
				result.CorrectCount++
			} else {
				result.IncorrectCount++
			}
		}

		result.Questions = append(result.Questions, qs)
	}

	// integer percentage, round half up
	result.Score = int(math.Floor(float64(result.CorrectCount)/float64(totalQuestions)*100 + 0.5))
	return result
}
