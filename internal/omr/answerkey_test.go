package omr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveKey_Valid(t *testing.T) {
	entries := []KeyEntry{
		{Question: 1, Correct: "A"},
		{Question: 2, Correct: "b"}, // lower case is accepted
		{Question: 3, Correct: "C"},
		{Question: 4, Correct: "D"},
	}

	key, err := ResolveKey(entries, 4)
	require.NoError(t, err)
	assert.Equal(t, AnswerKey{1: "A", 2: "B", 3: "C", 4: "D"}, key)
}

func TestResolveKey_CountMismatch(t *testing.T) {
	// covers 1..N-1 when totalQuestions = N
	entries := []KeyEntry{
		{Question: 1, Correct: "A"},
		{Question: 2, Correct: "B"},
	}

	key, err := ResolveKey(entries, 3)
	assert.Nil(t, key)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestResolveKey_DuplicateQuestion(t *testing.T) {
	entries := []KeyEntry{
		{Question: 1, Correct: "A"},
		{Question: 1, Correct: "B"},
	}

	_, err := ResolveKey(entries, 2)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 2, ve.Line)
}

func TestResolveKey_OutOfRange(t *testing.T) {
	entries := []KeyEntry{
		{Question: 1, Correct: "A"},
		{Question: 5, Correct: "B"},
	}

	_, err := ResolveKey(entries, 2)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 2, ve.Line)
}

func TestResolveKey_BadOption(t *testing.T) {
	entries := []KeyEntry{
		{Question: 1, Correct: "E"},
	}

	_, err := ResolveKey(entries, 1)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 1, ve.Line)
	assert.Contains(t, ve.Error(), "E")
}

func TestSynthesizeKey(t *testing.T) {
	key := SynthesizeKey("sub-123", 50)
	require.Len(t, key, 50)
	for q := 1; q <= 50; q++ {
		assert.True(t, ValidOption(key[q]), "question %d got %q", q, key[q])
	}

	// deterministic in the seed
	assert.Equal(t, key, SynthesizeKey("sub-123", 50))
	assert.NotEqual(t, key, SynthesizeKey("sub-456", 50))
}

func TestParseKeyCSV(t *testing.T) {
	csv := "question,correct_answer\n1,A\n2,B\n3,C\n"

	entries, err := ParseKeyCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, KeyEntry{Question: 2, Correct: "B"}, entries[1])
}

func TestParseKeyCSV_BadQuestionNumber(t *testing.T) {
	csv := "question,correct_answer\nx,A\n"

	_, err := ParseKeyCSV(strings.NewReader(csv))

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 1, ve.Line)
}

func TestParseKeyCSV_HeaderOnly(t *testing.T) {
	_, err := ParseKeyCSV(strings.NewReader("question,correct_answer\n"))

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestParseKeyJSON(t *testing.T) {
	data := []byte(`[{"question":1,"correct":"A"},{"question":2,"correct":"D"}]`)

	entries, err := ParseKeyJSON(data)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, KeyEntry{Question: 2, Correct: "D"}, entries[1])
}

func TestParseKeyJSON_Malformed(t *testing.T) {
	_, err := ParseKeyJSON([]byte(`{"not":"an array"}`))

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestKeyTemplateCSV(t *testing.T) {
	tmpl := string(KeyTemplateCSV(3))
	assert.Equal(t, "question,correct_answer\n1,A\n2,A\n3,A\n", tmpl)

	// the template round-trips through the parser and resolver
	entries, err := ParseKeyCSV(strings.NewReader(tmpl))
	require.NoError(t, err)
	_, err = ResolveKey(entries, 3)
	require.NoError(t, err)
}
