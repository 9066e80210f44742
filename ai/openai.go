package ai

import (
	"context"
	"net/http"

	"github.com/bytedance/sonic"

	"planai-api/domain"
)

const (
	openaiBaseURL      = "https://api.openai.com/v1"
	openaiDefaultModel = "gpt-4o-mini"
	classifyToolName   = "record_classification"
)

// OpenAIClassifier calls the chat-completions API in tool-calling mode.
// Replies may arrive as a tool call or as plain text with an embedded JSON
// object; both are accepted.
type OpenAIClassifier struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewOpenAIClassifier(opts Options) *OpenAIClassifier {
	c := &OpenAIClassifier{
		apiKey:  opts.APIKey,
		baseURL: openaiBaseURL,
		model:   openaiDefaultModel,
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

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []chatTool    `json:"tools,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

func classificationSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type":         map[string]any{"type": "string", "enum": []string{"task", "project"}},
			"title":        map[string]any{"type": "string"},
			"description":  map[string]any{"type": "string"},
			"priority":     map[string]any{"type": "string", "enum": []string{"low", "medium", "high"}},
			"due_date":     map[string]any{"type": "string"},
			"tasks":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"action_items": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"category":     map[string]any{"type": "string"},
			"tags":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"type", "title"},
	}
}

// Classify implements Classifier.
func (c *OpenAIClassifier) Classify(ctx context.Context, transcription string) (domain.Classification, error) {
	if c.apiKey == "" {
		return domain.Classification{}, &AuthError{Status: http.StatusUnauthorized, Message: "OpenAI API key not configured"}
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: classifySystemPrompt},
			{Role: "user", Content: transcription},
		},
		Tools: []chatTool{{
			Type: "function",
			Function: chatFunction{
				Name:        classifyToolName,
				Description: "Record the structured classification of a voice note",
				Parameters:  classificationSchema(),
			},
		}},
	}
	payload, err := sonic.Marshal(reqBody)
	if err != nil {
		return domain.Classification{}, err
	}

	var result domain.Classification
	err = withRetry(ctx, func() error {
		body, callErr := postJSON(ctx, c.client, c.baseURL+"/chat/completions", map[string]string{
			"Authorization": "Bearer " + c.apiKey,
		}, payload)
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

// parseChatReply prefers the tool-call payload and falls back to embedded
// JSON in the text content.
func parseChatReply(body []byte) (domain.Classification, error) {
	var resp chatResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return domain.Classification{}, &ParseError{Reason: "undecodable completion reply"}
	}
	if len(resp.Choices) == 0 {
		return domain.Classification{}, &ParseError{Reason: "completion reply has no choices"}
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		return parseClassification([]byte(msg.ToolCalls[0].Function.Arguments))
	}
	obj, err := extractJSON(msg.Content)
	if err != nil {
		return domain.Classification{}, err
	}
	return parseClassification(obj)
}
