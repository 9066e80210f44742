package ai

import (
	"context"
	"net/http"

	"github.com/bytedance/sonic"

	"planai-api/domain"
)

const (
	anthropicBaseURL      = "https://api.anthropic.com/v1"
	anthropicDefaultModel = "claude-3-5-haiku-latest"
	anthropicVersion      = "2023-06-01"
)

// AnthropicClassifier calls the messages API. Tool-use blocks carry the
// structured payload; plain text blocks are scanned for an embedded JSON
// object.
type AnthropicClassifier struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewAnthropicClassifier(opts Options) *AnthropicClassifier {
	c := &AnthropicClassifier{
		apiKey:  opts.APIKey,
		baseURL: anthropicBaseURL,
		model:   anthropicDefaultModel,
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

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicResponse struct {
	Content []struct {
		Type  string                 `json:"type"`
		Text  string                 `json:"text,omitempty"`
		Name  string                 `json:"name,omitempty"`
		Input sonic.NoCopyRawMessage `json:"input,omitempty"`
	} `json:"content"`
}

// Classify implements Classifier.
func (c *AnthropicClassifier) Classify(ctx context.Context, transcription string) (domain.Classification, error) {
	if c.apiKey == "" {
		return domain.Classification{}, &AuthError{Status: http.StatusUnauthorized, Message: "Anthropic API key not configured"}
	}

	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: 1024,
		System:    classifySystemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: transcription}},
		Tools: []anthropicTool{{
			Name:        classifyToolName,
			Description: "Record the structured classification of a voice note",
			InputSchema: classificationSchema(),
		}},
	}
	payload, err := sonic.Marshal(reqBody)
	if err != nil {
		return domain.Classification{}, err
	}

	var result domain.Classification
	err = withRetry(ctx, func() error {
		body, callErr := postJSON(ctx, c.client, c.baseURL+"/messages", map[string]string{
			"x-api-key":         c.apiKey,
			"anthropic-version": anthropicVersion,
		}, payload)
		if callErr != nil {
			return callErr
		}
		parsed, parseErr := parseAnthropicReply(body)
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

func parseAnthropicReply(body []byte) (domain.Classification, error) {
	var resp anthropicResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return domain.Classification{}, &ParseError{Reason: "undecodable messages reply"}
	}
	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == classifyToolName {
			return parseClassification(block.Input)
		}
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			obj, err := extractJSON(block.Text)
			if err != nil {
				return domain.Classification{}, err
			}
			return parseClassification(obj)
		}
	}
	return domain.Classification{}, &ParseError{Reason: "reply carries neither tool use nor text"}
}
