package omr

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"omr_grading_backend/internal/model"
)

// CSVHeader is part of the external contract; field order matters to
// downstream consumers.
const CSVHeader = "Question Number,Marked Answer,Correct Answer,Result,Status"

const exportTimeFormat = "2006-01-02 15:04:05"

// resultLabel returns the per-question status label and symbol.
func resultLabel(isCorrect *bool) (string, string) {
	switch {
	case isCorrect == nil:
		return "Unanswered", "-"
	case *isCorrect:
		return "Correct", "✓"
	default:
		return "Wrong", "✗"
	}
}

// checkExportable enforces the exporter precondition: only a completed
// submission with its full result set can be rendered. Returns the rows
// ordered by question number.
func checkExportable(sub *model.Submission, results []model.QuestionResult) ([]model.QuestionResult, error) {
	if sub.Status != model.StatusCompleted {
		return nil, ErrNotReady
	}
	if len(results) != sub.TotalQuestions {
		return nil, ErrNotReady
	}
	if sub.Score == nil || sub.CorrectCount == nil || sub.IncorrectCount == nil || sub.UnansweredCount == nil {
		return nil, ErrNotReady
	}

	ordered := make([]model.QuestionResult, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].QuestionNumber < ordered[j].QuestionNumber
	})
	return ordered, nil
}

// ExportCSV renders a completed submission as CSV: header row, one row per
// question, then a SUMMARY block. Read-only.
func ExportCSV(sub *model.Submission, results []model.QuestionResult) ([]byte, error) {
	ordered, err := checkExportable(sub, results)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(CSVHeader)
	b.WriteString("\n")

	for i, r := range ordered {
		marked := "N/A"
		if r.MarkedAnswer != nil {
			marked = *r.MarkedAnswer
		}
		label, symbol := resultLabel(r.IsCorrect)
		fmt.Fprintf(&b, "%d,%s,%s,%s,%s", r.QuestionNumber, marked, r.CorrectAnswer, label, symbol)
		if i < len(ordered)-1 {
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\n\nSUMMARY\nExam Name,%s\nTotal Questions,%d\nScore,%d%%\nCorrect Answers,%d\nIncorrect Answers,%d\nUnanswered,%d\nDate,%s",
		sub.ExamName,
		sub.TotalQuestions,
		*sub.Score,
		*sub.CorrectCount,
		*sub.IncorrectCount,
		*sub.UnansweredCount,
		sub.CreatedAt.Format(exportTimeFormat),
	)

	return []byte(b.String()), nil
}

// ExportFilename derives the download filename from the exam name.
func ExportFilename(sub *model.Submission, ext string) string {
	name := strings.Join(strings.Fields(sub.ExamName), "_")
	if name == "" {
		name = "submission"
	}
	return name + "_results." + ext
}

type reportRow struct {
	Number      int
	Marked      string
	Correct     string
	StatusLabel string
	StatusClass string
}

type reportData struct {
	ExamName    string
	GeneratedAt string
	Score       int
	Correct     int
	Incorrect   int
	Unanswered  int
	Rows        []reportRow
}

// ExportHTML renders a completed submission as a self-contained, print-ready
// HTML document with the same summary and per-question table as the CSV.
// Read-only.
func ExportHTML(sub *model.Submission, results []model.QuestionResult) ([]byte, error) {
	ordered, err := checkExportable(sub, results)
	if err != nil {
		return nil, err
	}

	data := reportData{
		ExamName:    sub.ExamName,
		GeneratedAt: time.Now().Format(exportTimeFormat),
		Score:       *sub.Score,
		Correct:     *sub.CorrectCount,
		Incorrect:   *sub.IncorrectCount,
		Unanswered:  *sub.UnansweredCount,
	}

	for _, r := range ordered {
		marked := "N/A"
		if r.MarkedAnswer != nil {
			marked = *r.MarkedAnswer
		}
		label, symbol := resultLabel(r.IsCorrect)
		class := "unanswered"
		if r.IsCorrect != nil {
			if *r.IsCorrect {
				class = "correct"
			} else {
				class = "wrong"
			}
		}
		statusLabel := label
		if r.IsCorrect != nil {
			statusLabel = symbol + " " + label
		}
		data.Rows = append(data.Rows, reportRow{
			Number:      r.QuestionNumber,
			Marked:      marked,
			Correct:     r.CorrectAnswer,
			StatusLabel: statusLabel,
			StatusClass: class,
		})
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.ExamName}} - Results</title>
  <style>
    body { font-family: Arial, sans-serif; padding: 40px; }
    h1 { color: #1e40af; margin-bottom: 10px; }
    .meta { color: #666; margin-bottom: 30px; }
    .summary { background: #f3f4f6; padding: 20px; border-radius: 8px; margin-bottom: 30px; }
    .summary-grid { display: grid; grid-template-columns: repeat(4, 1fr); gap: 20px; }
    .summary-item { text-align: center; }
    .summary-label { font-size: 12px; color: #666; }
    .summary-value { font-size: 24px; font-weight: bold; margin-top: 5px; }
    table { width: 100%; border-collapse: collapse; margin-top: 20px; }
    th { background: #1e40af; color: white; padding: 12px; text-align: left; }
    td { padding: 12px; border-bottom: 1px solid #e5e7eb; }
    .correct { color: #16a34a; font-weight: bold; }
    .wrong { color: #dc2626; font-weight: bold; }
    .unanswered { color: #f59e0b; font-weight: bold; }
  </style>
</head>
<body>
  <h1>{{.ExamName}}</h1>
  <div class="meta">Generated on {{.GeneratedAt}}</div>

  <div class="summary">
    <h2>Summary</h2>
    <div class="summary-grid">
      <div class="summary-item">
        <div class="summary-label">Score</div>
        <div class="summary-value">{{.Score}}%</div>
      </div>
      <div class="summary-item">
        <div class="summary-label">Correct</div>
        <div class="summary-value correct">{{.Correct}}</div>
      </div>
      <div class="summary-item">
        <div class="summary-label">Wrong</div>
        <div class="summary-value wrong">{{.Incorrect}}</div>
      </div>
      <div class="summary-item">
        <div class="summary-label">Unanswered</div>
        <div class="summary-value unanswered">{{.Unanswered}}</div>
      </div>
    </div>
  </div>

  <h2>Detailed Results</h2>
  <table>
    <thead>
      <tr>
        <th>Question</th>
        <th>Your Answer</th>
        <th>Correct Answer</th>
        <th>Result</th>
      </tr>
    </thead>
    <tbody>
      {{range .Rows}}<tr>
        <td>{{.Number}}</td>
        <td>{{.Marked}}</td>
        <td>{{.Correct}}</td>
        <td class="{{.StatusClass}}">{{.StatusLabel}}</td>
      </tr>
      {{end}}
    </tbody>
  </table>
</body>
</html>
`))
