package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"planai-api/domain"
)

const (
	// callTimeout bounds every provider round trip.
	callTimeout = 20 * time.Second

	maxAttempts  = 3
	initialDelay = time.Second
)

// classifySystemPrompt instructs the completion provider to return the
// structured classification contract.
const classifySystemPrompt = `You convert a voice-note transcription into a structured record.
Reply with a single JSON object and nothing else. Required fields:
"type" ("task" or "project"), "title" (non-empty), "description",
"priority" ("low", "medium" or "high"). Optional fields: "due_date"
(ISO date), "tasks" or "action_items" (array of strings, only when type is
"project"), "category", "tags" (array of strings).`

// Classifier turns free-form transcribed text into a classification.
type Classifier interface {
	Classify(ctx context.Context, transcription string) (domain.Classification, error)
}

// Transcriber turns an audio payload into plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Options configures a provider adapter.
type Options struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return callTimeout
}

// NewClassifier returns the adapter for the given provider. The provider
// set is closed; unknown values are an error, not a fallback.
func NewClassifier(provider domain.Provider, opts Options) (Classifier, error) {
	switch provider {
	case domain.ProviderOpenAI:
		return NewOpenAIClassifier(opts), nil
	case domain.ProviderAnthropic:
		return NewAnthropicClassifier(opts), nil
	case domain.ProviderLocal:
		return NewLocalClassifier(opts), nil
	case domain.ProviderCustom:
		return NewCustomClassifier(opts), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// rawClassification tolerates the two action-item spellings providers use.
type rawClassification struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	DueDate     string   `json:"due_date"`
	Tasks       []string `json:"tasks"`
	ActionItems []string `json:"action_items"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
}

// parseClassification enforces the output contract on a candidate JSON
// payload. It never returns a partially-filled classification: any
// violation yields a zero value and a *ParseError.
func parseClassification(data []byte) (domain.Classification, error) {
	var raw rawClassification
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return domain.Classification{}, &ParseError{Reason: "not a JSON object: " + err.Error()}
	}
	c := domain.Classification{
		Type:        domain.NoteKind(strings.ToLower(strings.TrimSpace(raw.Type))),
		Title:       strings.TrimSpace(raw.Title),
		Description: raw.Description,
		Priority:    domain.Priority(strings.ToLower(strings.TrimSpace(raw.Priority))),
		DueDate:     raw.DueDate,
		Category:    raw.Category,
		Tags:        raw.Tags,
	}
	if c.Priority == "" {
		c.Priority = domain.PriorityMedium
	}
	c.Tasks = append(c.Tasks, raw.Tasks...)
	c.Tasks = append(c.Tasks, raw.ActionItems...)
	if field := c.Validate(); field != "" {
		return domain.Classification{}, &ParseError{Field: field, Reason: "missing or invalid"}
	}
	return c, nil
}

// extractJSON pulls the first balanced JSON object out of a free-text
// reply. Providers often wrap the object in prose or a code fence.
func extractJSON(text string) ([]byte, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, &ParseError{Reason: "no JSON object in reply"}
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return []byte(text[start : i+1]), nil
			}
		}
	}
	return nil, &ParseError{Reason: "unterminated JSON object in reply"}
}

// withRetry runs call up to maxAttempts times with exponential backoff,
// honoring context cancellation between attempts. Non-retryable errors
// abort immediately.
func withRetry(ctx context.Context, call func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * initialDelay
			var rl *RateLimitError
			if errors.As(lastErr, &rl) && rl.RetryAfter > delay {
				delay = rl.RetryAfter
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
