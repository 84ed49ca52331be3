package omr

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"strconv"
	"strings"
)

// Options a bubble sheet can carry, and the sentinel the extraction
// capability returns for an unmarked question.
const (
	NotAnswered = "NOT_ANSWERED"
)

var optionAlphabet = []string{"A", "B", "C", "D"}

// KeyEntry is one line of a caller-supplied answer key.
type KeyEntry struct {
	Question int    `json:"question"`
	Correct  string `json:"correct"`
}

// AnswerKey maps question number to the expected option.
type AnswerKey map[int]string

// MarkSet maps question number to the detected option or NotAnswered.
// Questions missing from the set are treated as unanswered by the scorer.
type MarkSet map[int]string

// ValidOption reports whether s is one of the fixed options A-D.
func ValidOption(s string) bool {
	for _, o := range optionAlphabet {
		if s == o {
			return true
		}
	}
	return false
}

// ResolveKey canonicalizes a caller-supplied key. The entries must cover
// 1..totalQuestions exactly, with no duplicates and options drawn from A-D.
// Option letters are upper-cased before validation. Pure.
func ResolveKey(entries []KeyEntry, totalQuestions int) (AnswerKey, error) {
	if totalQuestions <= 0 {
		return nil, &ValidationError{Msg: "total questions must be positive"}
	}
	if len(entries) != totalQuestions {
		return nil, &ValidationError{Msg: fmt.Sprintf("key has %d answers but expected %d", len(entries), totalQuestions)}
	}

	key := make(AnswerKey, totalQuestions)
	for i, e := range entries {
		if e.Question < 1 || e.Question > totalQuestions {
			return nil, &ValidationError{Line: i + 1, Msg: fmt.Sprintf("question %d is out of range 1..%d", e.Question, totalQuestions)}
		}
		if _, dup := key[e.Question]; dup {
			return nil, &ValidationError{Line: i + 1, Msg: fmt.Sprintf("question %d appears more than once", e.Question)}
		}
		opt := strings.ToUpper(strings.TrimSpace(e.Correct))
		if !ValidOption(opt) {
			return nil, &ValidationError{Line: i + 1, Msg: fmt.Sprintf("option %q is not one of A, B, C, D", e.Correct)}
		}
		key[e.Question] = opt
	}
	return key, nil
}

// SynthesizeKey derives a placeholder key when no real key is stored.
// It is deterministic in the seed (the submission id) so repeated reads of
// the same submission agree, but the resulting score is meaningless; callers
// must flag the submission as synthesized. A real admin-managed key store is
// the intended replacement.
func SynthesizeKey(seed string, totalQuestions int) AnswerKey {
	key := make(AnswerKey, totalQuestions)
	for q := 1; q <= totalQuestions; q++ {
		h := fnv.New32a()
		h.Write([]byte(seed))
		h.Write([]byte(strconv.Itoa(q)))
		key[q] = optionAlphabet[h.Sum32()%uint32(len(optionAlphabet))]
	}
	return key
}

// ParseKeyCSV reads an uploaded answer key in the template format: a header
// line followed by "question,correct_answer" rows. Validation of the parsed
// entries is left to ResolveKey.
func ParseKeyCSV(r io.Reader) ([]KeyEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, &ValidationError{Msg: "malformed CSV: " + err.Error()}
	}
	if len(records) < 2 {
		return nil, &ValidationError{Msg: "CSV must contain a header and at least one answer row"}
	}

	entries := make([]KeyEntry, 0, len(records)-1)
	for i, rec := range records[1:] {
		q, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, &ValidationError{Line: i + 1, Msg: fmt.Sprintf("question number %q is not an integer", rec[0])}
		}
		entries = append(entries, KeyEntry{Question: q, Correct: strings.TrimSpace(rec[1])})
	}
	return entries, nil
}

// ParseKeyJSON reads an uploaded answer key as a JSON array of
// {"question": n, "correct": "A"} objects.
func ParseKeyJSON(data []byte) ([]KeyEntry, error) {
	var entries []KeyEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &ValidationError{Msg: "malformed JSON: " + err.Error()}
	}
	return entries, nil
}

// KeyTemplateCSV renders the downloadable answer key template for N
// questions, pre-filled with option A.
func KeyTemplateCSV(totalQuestions int) []byte {
	var b strings.Builder
	b.WriteString("question,correct_answer\n")
	for q := 1; q <= totalQuestions; q++ {
		b.WriteString(strconv.Itoa(q))
		b.WriteString(",A\n")
	}
	return []byte(b.String())
}
