package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"omr_grading_backend/internal/config"
	"omr_grading_backend/internal/omr"
	"omr_grading_backend/pkg/monitoring"

	"go.uber.org/zap"

	"omr_grading_backend/pkg/logger"
)

// MarkExtractor is the capability boundary to the remote vision model. It is
// the only non-deterministic component of the pipeline; everything behind it
// is an opaque provider with a fixed request/response contract.
type MarkExtractor interface {
	Extract(ctx context.Context, image []byte, totalQuestions int) (omr.MarkSet, error)
}

// DefaultIllegibilityPhrases are the reply fragments treated as "the sheet
// could not be read". Text sniffing is a stopgap until the remote contract
// grows a structured status field; the rule set is injected data so deployments
// can override it without a rebuild.
var DefaultIllegibilityPhrases = []string{
	"cannot process",
	"too blurry",
	"not discernible",
}

// VisionService calls an OpenAI-compatible chat-completions endpoint with the
// encoded sheet image and parses the structured reply. Stateless between
// calls; it performs no scoring.
type VisionService struct {
	mu                  sync.RWMutex
	config              config.VisionConfig
	client              *http.Client
	IllegibilityPhrases []string
}

func NewVisionService(cfg config.VisionConfig) *VisionService {
	return &VisionService{
		config: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		IllegibilityPhrases: DefaultIllegibilityPhrases,
	}
}

// UpdateConfig swaps the endpoint settings on config reload. Requests already
// in flight finish against the old endpoint.
func (s *VisionService) UpdateConfig(cfg config.VisionConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
	s.client = &http.Client{
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

type visionImageURL struct {
	URL string `json:"url"`
}

type visionContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *visionImageURL `json:"image_url,omitempty"`
}

type visionMessage struct {
	Role    string              `json:"role"`
	Content []visionContentPart `json:"content"`
}

type visionRequest struct {
	Model       string          `json:"model"`
	Messages    []visionMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type visionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type extractedAnswers struct {
	Answers []struct {
		Question int    `json:"question"`
		Marked   string `json:"marked"`
	} `json:"answers"`
}

const encodeChunkSize = 8 * 1024

// encodeImage base64-encodes the sheet by streaming fixed-size chunks through
// the encoder, so peak memory stays bounded by one chunk plus the output.
func encodeImage(data []byte) string {
	var b strings.Builder
	b.Grow(base64.StdEncoding.EncodedLen(len(data)))

	enc := base64.NewEncoder(base64.StdEncoding, &b)
	for off := 0; off < len(data); off += encodeChunkSize {
		end := off + encodeChunkSize
		if end > len(data) {
			end = len(data)
		}
		enc.Write(data[off:end])
	}
	enc.Close()

	return b.String()
}

func extractionPrompt(totalQuestions int) string {
	return fmt.Sprintf(`Analyze this OMR (Optical Mark Recognition) answer sheet. The sheet contains %d multiple-choice questions with options A, B, C, and D.

For each question, identify:
1. The question number
2. Which option (A, B, C, or D) is marked by the student
3. If no option is clearly marked, indicate as "NOT_ANSWERED"

Return ONLY a valid JSON object in this exact format with no additional text:
{
  "answers": [
    {"question": 1, "marked": "A"},
    {"question": 2, "marked": "B"},
    ...
  ]
}

Be precise in detecting which bubbles are filled. A marked bubble should be significantly darker than unmarked ones.`, totalQuestions)
}

// Extract issues one inference request for the sheet and returns the detected
// marks. Questions the reply does not mention are simply absent from the
// returned set; the scorer treats them as unanswered.
func (s *VisionService) Extract(ctx context.Context, image []byte, totalQuestions int) (omr.MarkSet, error) {
	s.mu.RLock()
	cfg := s.config
	client := s.client
	s.mu.RUnlock()

	reqBody := visionRequest{
		Model: cfg.Model,
		Messages: []visionMessage{
			{
				Role: "user",
				Content: []visionContentPart{
					{Type: "text", Text: extractionPrompt(totalQuestions)},
					{Type: "image_url", ImageURL: &visionImageURL{
						URL: "data:image/jpeg;base64," + encodeImage(image),
					}},
				},
			},
		},
		MaxTokens:   4000,
		Temperature: 0.1,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", cfg.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	start := time.Now()
	resp, err := client.Do(req)
	monitoring.InferenceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", omr.ErrCapabilityUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading reply: %v", omr.ErrCapabilityUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Log.Error("vision API returned non-success",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return nil, fmt.Errorf("%w: status %d", omr.ErrCapabilityUnavailable, resp.StatusCode)
	}

	var result visionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", omr.ErrCapabilityUnavailable, err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("%w: reply carried no choices", omr.ErrCapabilityUnavailable)
	}

	content := result.Choices[0].Message.Content
	if s.looksIllegible(content) {
		return nil, omr.ErrLowImageQuality
	}

	return s.parseMarks(content, totalQuestions)
}

// looksIllegible applies the phrase rule set to the reply's free text.
func (s *VisionService) looksIllegible(content string) bool {
	lower := strings.ToLower(content)
	for _, phrase := range s.IllegibilityPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// parseMarks pulls the first well-formed JSON object out of the reply,
// tolerating surrounding prose, and checks it against the answers schema.
func (s *VisionService) parseMarks(content string, totalQuestions int) (omr.MarkSet, error) {
	raw, ok := firstJSONObject(content)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in reply", omr.ErrMalformedResponse)
	}

	var parsed extractedAnswers
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.Answers == nil {
		return nil, fmt.Errorf("%w: reply object has no answers array", omr.ErrMalformedResponse)
	}

	marks := make(omr.MarkSet, len(parsed.Answers))
	for _, a := range parsed.Answers {
		if a.Question < 1 || a.Question > totalQuestions {
			// the model sometimes invents question numbers; drop them
			continue
		}
		marked := strings.ToUpper(strings.TrimSpace(a.Marked))
		if marked != omr.NotAnswered && !omr.ValidOption(marked) {
			continue
		}
		marks[a.Question] = marked
	}
	return marks, nil
}

// firstJSONObject finds the first position where a complete JSON object can
// be decoded. Unlike a first-to-last-brace regex, the decoder balances nested
// braces correctly.
func firstJSONObject(s string) (json.RawMessage, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == nil {
			return raw, true
		}
	}
	return nil, false
}
