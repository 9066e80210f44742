package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"planai-api/domain"
)

// AI holds the provider settings for classification, transcription and the
// analysis endpoint. Keys are named by env var, never stored in the file.
type AI struct {
	Provider domain.Provider `yaml:"provider" json:"provider"`
	Model    string          `yaml:"model" json:"model,omitempty"`
	// Endpoint is honored for the local and custom providers.
	Endpoint string `yaml:"endpoint" json:"endpoint,omitempty"`
	// APIKeyEnv names the environment variable holding the provider key.
	APIKeyEnv string `yaml:"api_key_env" json:"-"`
	// TranscriptionModel overrides the default speech-to-text model.
	TranscriptionModel string `yaml:"transcription_model" json:"transcriptionModel,omitempty"`
	// AnalysisEndpoint is the custom analysis collaborator URL.
	AnalysisEndpoint string `yaml:"analysis_endpoint" json:"analysisEndpoint,omitempty"`
	// Features selects the analysis sections requested.
	Features []string `yaml:"features" json:"features,omitempty"`
	// CallTimeout bounds each provider round trip.
	CallTimeout time.Duration `yaml:"call_timeout" json:"callTimeout,omitempty"`
}

// Config is the settings file layout.
type Config struct {
	AI AI `yaml:"ai"`
}

func defaults() Config {
	return Config{AI: AI{
		Provider:    domain.ProviderOpenAI,
		APIKeyEnv:   "OPENAI_API_KEY",
		CallTimeout: 20 * time.Second,
	}}
}

// Load reads the YAML settings file. A missing path yields defaults; an
// unreadable or invalid file is an error. AI_PROVIDER, AI_MODEL and
// AI_ENDPOINT env vars override the file.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if v := os.Getenv("AI_PROVIDER"); v != "" {
		cfg.AI.Provider = domain.Provider(v)
	}
	if v := os.Getenv("AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("AI_ENDPOINT"); v != "" {
		cfg.AI.Endpoint = v
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = domain.ProviderOpenAI
	}
	if !cfg.AI.Provider.Valid() {
		return Config{}, fmt.Errorf("unknown provider %q", cfg.AI.Provider)
	}
	if cfg.AI.APIKeyEnv == "" {
		cfg.AI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.AI.CallTimeout <= 0 {
		cfg.AI.CallTimeout = 20 * time.Second
	}
	return cfg, nil
}

// APIKey resolves the provider key from the configured env var.
func (a AI) APIKey() string {
	return os.Getenv(a.APIKeyEnv)
}
