package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/bytedance/sonic"
)

const (
	transcribeDefaultModel = "whisper-1"
	transcribePath         = "/audio/transcriptions"
)

// OpenAITranscriber uploads an audio payload to the transcription API and
// returns the plain-text result. Timeouts and non-2xx replies surface as
// distinct failures.
type OpenAITranscriber struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewOpenAITranscriber(opts Options) *OpenAITranscriber {
	t := &OpenAITranscriber{
		apiKey:  opts.APIKey,
		baseURL: openaiBaseURL,
		model:   transcribeDefaultModel,
		client:  &http.Client{Timeout: opts.timeout()},
	}
	if opts.BaseURL != "" {
		t.baseURL = opts.BaseURL
	}
	if opts.Model != "" {
		t.model = opts.Model
	}
	return t
}

// Transcribe implements Transcriber.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if t.apiKey == "" {
		return "", &AuthError{Status: http.StatusUnauthorized, Message: "transcription API key not configured"}
	}
	if len(audio) == 0 {
		return "", errors.New("empty audio payload")
	}
	if filename == "" {
		filename = "note.webm"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	if err := mw.WriteField("model", t.model); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+transcribePath, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError(resp.StatusCode, body, resp.Header)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := sonic.Unmarshal(body, &out); err != nil {
		return "", &ParseError{Reason: "undecodable transcription reply"}
	}
	if out.Text == "" {
		return "", &ParseError{Field: "text", Reason: "missing"}
	}
	return out.Text, nil
}
