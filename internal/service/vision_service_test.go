package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"omr_grading_backend/internal/config"
	"omr_grading_backend/internal/omr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func visionServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *VisionService) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc := NewVisionService(config.VisionConfig{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		Model:          "test-vision-model",
		TimeoutSeconds: 5,
	})
	return srv, svc
}

func chatReply(content string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return body
}

func TestExtract_ParsesCleanReply(t *testing.T) {
	_, svc := visionServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		var req map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "test-vision-model", req["model"])
		assert.Contains(t, string(body), "data:image/jpeg;base64,")
		assert.Contains(t, string(body), "3 multiple-choice questions")

		w.Write(chatReply(`{"answers":[{"question":1,"marked":"A"},{"question":2,"marked":"b"},{"question":3,"marked":"NOT_ANSWERED"}]}`))
	})

	marks, err := svc.Extract(context.Background(), []byte("fake-image"), 3)
	require.NoError(t, err)
	assert.Equal(t, omr.MarkSet{1: "A", 2: "B", 3: omr.NotAnswered}, marks)
}

func TestExtract_ToleratesSurroundingProse(t *testing.T) {
	_, svc := visionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply(`Sure! {"answers":[{"question":1,"marked":"A"}]} Thanks.`))
	})

	marks, err := svc.Extract(context.Background(), []byte("img"), 1)
	require.NoError(t, err)
	assert.Equal(t, omr.MarkSet{1: "A"}, marks)
}

func TestExtract_DropsOutOfRangeQuestions(t *testing.T) {
	_, svc := visionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply(`{"answers":[{"question":1,"marked":"A"},{"question":7,"marked":"B"},{"question":0,"marked":"C"}]}`))
	})

	marks, err := svc.Extract(context.Background(), []byte("img"), 2)
	require.NoError(t, err)
	assert.Equal(t, omr.MarkSet{1: "A"}, marks)
}

func TestExtract_CapabilityUnavailable(t *testing.T) {
	_, svc := visionServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	_, err := svc.Extract(context.Background(), []byte("img"), 1)
	assert.ErrorIs(t, err, omr.ErrCapabilityUnavailable)
}

func TestExtract_TruncatedBody(t *testing.T) {
	// connection drops mid-body: Content-Length promises more than arrives
	_, svc := visionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices":[{"mess`))
	})

	_, err := svc.Extract(context.Background(), []byte("img"), 1)
	require.ErrorIs(t, err, omr.ErrCapabilityUnavailable)
	assert.Contains(t, err.Error(), "reading reply")
}

func TestExtract_NoChoices(t *testing.T) {
	_, svc := visionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	_, err := svc.Extract(context.Background(), []byte("img"), 1)
	assert.ErrorIs(t, err, omr.ErrCapabilityUnavailable)
}

func TestExtract_LowImageQuality(t *testing.T) {
	_, svc := visionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply("The sheet is too blurry to read, please provide a better scan."))
	})

	_, err := svc.Extract(context.Background(), []byte("img"), 1)
	assert.ErrorIs(t, err, omr.ErrLowImageQuality)
}

func TestExtract_OverriddenPhraseRules(t *testing.T) {
	_, svc := visionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply("unreadable scan"))
	})
	svc.IllegibilityPhrases = []string{"unreadable"}

	_, err := svc.Extract(context.Background(), []byte("img"), 1)
	assert.ErrorIs(t, err, omr.ErrLowImageQuality)
}

func TestExtract_MalformedResponse(t *testing.T) {
	cases := map[string]string{
		"no JSON at all":   "I could not find any answers, sorry.",
		"wrong shape":      `{"result":"fine"}`,
		"truncated object": `{"answers":[{"question":1,`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, svc := visionServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write(chatReply(content))
			})

			_, err := svc.Extract(context.Background(), []byte("img"), 1)
			assert.ErrorIs(t, err, omr.ErrMalformedResponse)
		})
	}
}

func TestFirstJSONObject_BalancesNestedBraces(t *testing.T) {
	raw, ok := firstJSONObject(`prefix {"a":{"b":1}} suffix {"c":2}`)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":{"b":1}}`, string(raw))

	_, ok = firstJSONObject("no object here")
	assert.False(t, ok)
}

func TestEncodeImage_MatchesStdlibAcrossChunkBoundaries(t *testing.T) {
	sizes := []int{0, 1, encodeChunkSize - 1, encodeChunkSize, encodeChunkSize + 1, 3*encodeChunkSize + 17}
	for _, n := range sizes {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i % 251)
		}
		assert.Equal(t, base64.StdEncoding.EncodeToString(data), encodeImage(data), "size %d", n)
	}
}

func TestExtractionPrompt_NamesContract(t *testing.T) {
	prompt := extractionPrompt(25)
	assert.Contains(t, prompt, "25 multiple-choice questions")
	assert.Contains(t, prompt, "NOT_ANSWERED")
	assert.Contains(t, prompt, `"answers"`)
	assert.True(t, strings.Contains(prompt, "A, B, C, and D"))
}
