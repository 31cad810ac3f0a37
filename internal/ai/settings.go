package ai

import "strings"

const (
	DefaultModel               = "gpt-4o-mini"
	DefaultSystemPrompt        = "You are a polite assistant. Answer briefly and to the point."
	DefaultTemperature         = 0.7
	DefaultMaxTokens           = 500
	DefaultResponseDelay       = 2
	DefaultContextMessages     = 10
	maxTemperature             = 2.0
	maxTokensLimit             = 4096
	maxResponseDelaySeconds    = 30
	maxContextMessages         = 50
	bedrockCredentialSeparator = ":"
)

// Settings is an organization's AI reply configuration.
type Settings struct {
	OrgID                string       `json:"org_id"`
	Enabled              bool         `json:"enabled"`
	Provider             ProviderName `json:"provider"`
	APIKey               string       `json:"api_key,omitempty"`
	Model                string       `json:"model"`
	SystemPrompt         string       `json:"system_prompt"`
	Temperature          float64      `json:"temperature"`
	MaxTokens            int          `json:"max_tokens"`
	ResponseDelaySeconds int          `json:"response_delay_seconds"`
	ContextMessagesCount int          `json:"context_messages_count"`
}

// DefaultSettings returns disabled settings with every default applied.
func DefaultSettings(orgID string) Settings {
	return Settings{
		OrgID:                orgID,
		Provider:             ProviderOpenAI,
		Model:                DefaultModel,
		SystemPrompt:         DefaultSystemPrompt,
		Temperature:          DefaultTemperature,
		MaxTokens:            DefaultMaxTokens,
		ResponseDelaySeconds: DefaultResponseDelay,
		ContextMessagesCount: DefaultContextMessages,
	}
}

// HasCredential reports whether an API credential is configured.
func (s Settings) HasCredential() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

// Normalized clamps every numeric setting into its allowed range and fills
// blank strings with defaults.
func (s Settings) Normalized() Settings {
	out := s
	out.Provider = ProviderName(strings.ToLower(strings.TrimSpace(string(s.Provider))))
	if out.Provider == "" {
		out.Provider = ProviderOpenAI
	}
	if strings.TrimSpace(out.Model) == "" {
		out.Model = defaultModelFor(out.Provider)
	}
	if strings.TrimSpace(out.SystemPrompt) == "" {
		out.SystemPrompt = DefaultSystemPrompt
	}
	out.Temperature = clampFloat(out.Temperature, 0, maxTemperature)
	out.MaxTokens = clampInt(out.MaxTokens, 1, maxTokensLimit)
	out.ResponseDelaySeconds = clampInt(out.ResponseDelaySeconds, 0, maxResponseDelaySeconds)
	out.ContextMessagesCount = clampInt(out.ContextMessagesCount, 1, maxContextMessages)
	return out
}

func defaultModelFor(provider ProviderName) string {
	switch provider {
	case ProviderGemini:
		return defaultGeminiModel
	case ProviderBedrock:
		return ""
	default:
		return DefaultModel
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
