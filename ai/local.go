package ai

import (
	"context"
	"net/http"

	"github.com/bytedance/sonic"

	"planai-api/domain"
)

const (
	localDefaultBaseURL = "http://localhost:11434/v1"
	localDefaultModel   = "llama3.1"
)

// LocalClassifier talks to an OpenAI-compatible local endpoint (ollama and
// friends). No credentials, no tool calling: the model is asked for a bare
// JSON reply.
type LocalClassifier struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewLocalClassifier(opts Options) *LocalClassifier {
	c := &LocalClassifier{
		baseURL: localDefaultBaseURL,
		model:   localDefaultModel,
		client:  &http.Client{Timeout: opts.timeout()},
	}
	if opts.BaseURL != "" {
		c.baseURL = opts.BaseURL
	}
	if opts.Model != "" {
		c.model = opts.Model
	}
	return c
}

// Classify implements Classifier.
func (c *LocalClassifier) Classify(ctx context.Context, transcription string) (domain.Classification, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: classifySystemPrompt},
			{Role: "user", Content: transcription},
		},
	}
	payload, err := sonic.Marshal(reqBody)
	if err != nil {
		return domain.Classification{}, err
	}

	var result domain.Classification
	err = withRetry(ctx, func() error {
		body, callErr := postJSON(ctx, c.client, c.baseURL+"/chat/completions", nil, payload)
		if callErr != nil {
			return callErr
		}
		parsed, parseErr := parseChatReply(body)
		if parseErr != nil {
			return parseErr
		}
		result = parsed
		return nil
	})
	if err != nil {
		return domain.Classification{}, err
	}
	return result, nil
}
