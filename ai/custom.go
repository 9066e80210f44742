package ai

import (
	"context"
	"net/http"

	"github.com/bytedance/sonic"

	"planai-api/domain"
)

// CustomClassifier posts the transcription to a user-configured endpoint
// that speaks the classification contract directly.
type CustomClassifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewCustomClassifier(opts Options) *CustomClassifier {
	return &CustomClassifier{
		endpoint: opts.BaseURL,
		apiKey:   opts.APIKey,
		client:   &http.Client{Timeout: opts.timeout()},
	}
}

type customClassifyRequest struct {
	Instruction string `json:"instruction"`
	Text        string `json:"text"`
}

// Classify implements Classifier.
func (c *CustomClassifier) Classify(ctx context.Context, transcription string) (domain.Classification, error) {
	if c.endpoint == "" {
		return domain.Classification{}, &AuthError{Status: http.StatusUnauthorized, Message: "custom endpoint not configured"}
	}
	payload, err := sonic.Marshal(customClassifyRequest{
		Instruction: classifySystemPrompt,
		Text:        transcription,
	})
	if err != nil {
		return domain.Classification{}, err
	}
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var result domain.Classification
	err = withRetry(ctx, func() error {
		body, callErr := postJSON(ctx, c.client, c.endpoint, headers, payload)
		if callErr != nil {
			return callErr
		}
		parsed, parseErr := parseClassification(body)
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

// Analyzer calls the settings-driven analysis collaborator.
type Analyzer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewAnalyzer creates an Analyzer for the given custom endpoint.
func NewAnalyzer(endpoint, apiKey string, opts Options) *Analyzer {
	return &Analyzer{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: opts.timeout()},
	}
}

// Analyze posts the request and validates that the reply carries all three
// mandatory sections. A missing section is a hard validation failure.
func (a *Analyzer) Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisReport, error) {
	if a.endpoint == "" {
		return domain.AnalysisReport{}, &AuthError{Status: http.StatusUnauthorized, Message: "analysis endpoint not configured"}
	}
	payload, err := sonic.Marshal(req)
	if err != nil {
		return domain.AnalysisReport{}, err
	}
	headers := map[string]string{}
	if a.apiKey != "" {
		headers["Authorization"] = "Bearer " + a.apiKey
	}

	body, err := postJSON(ctx, a.client, a.endpoint, headers, payload)
	if err != nil {
		return domain.AnalysisReport{}, err
	}

	var raw map[string]sonic.NoCopyRawMessage
	if err := sonic.Unmarshal(body, &raw); err != nil {
		return domain.AnalysisReport{}, &ParseError{Reason: "undecodable analysis reply"}
	}
	var rep domain.AnalysisReport
	for _, key := range []string{"projectOptimization", "codeQualityInsights", "learningInsights"} {
		if _, ok := raw[key]; !ok {
			return domain.AnalysisReport{}, &ParseError{Field: key, Reason: "missing"}
		}
	}
	if err := sonic.Unmarshal(body, &rep); err != nil {
		return domain.AnalysisReport{}, &ParseError{Reason: "undecodable analysis reply"}
	}
	return rep, nil
}
