package domain

// Provider enumerates the supported AI completion backends. The set is
// closed: adding a backend means adding an adapter, not branching existing
// code.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderLocal     Provider = "local"
	ProviderCustom    Provider = "custom"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderLocal, ProviderCustom:
		return true
	}
	return false
}

// Settings represents user configurable AI options.
type Settings struct {
	Provider Provider `json:"provider"`
	Model    string   `json:"model,omitempty"`
	// Endpoint is only honored for the local and custom providers.
	Endpoint string `json:"endpoint,omitempty"`
	// Features toggles the sections requested from the analysis endpoint.
	Features []string `json:"features,omitempty"`
}

// AnalysisRequest is the payload sent to the custom-endpoint analysis
// collaborator.
type AnalysisRequest struct {
	Provider Provider       `json:"provider"`
	Model    string         `json:"model,omitempty"`
	Features []string       `json:"features,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// AnalysisReport is the validated reply. All three sections are mandatory;
// the adapter rejects replies missing any of them.
type AnalysisReport struct {
	ProjectOptimization any `json:"projectOptimization"`
	CodeQualityInsights any `json:"codeQualityInsights"`
	LearningInsights    any `json:"learningInsights"`
}
