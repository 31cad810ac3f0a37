// Package ai generates automatic replies to inbound messages with the
// organization's own LLM credential.
package ai

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ProviderName identifies an LLM vendor.
type ProviderName string

const (
	ProviderOpenAI  ProviderName = "openai"
	ProviderGemini  ProviderName = "gemini"
	ProviderBedrock ProviderName = "bedrock"
)

// ChatMessage is one turn of the prompt history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

type LLMRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float32
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// LLMClient completes a chat prompt. Errors are classified as *ProviderError.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
