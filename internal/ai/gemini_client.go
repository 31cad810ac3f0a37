package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.5-flash"

// geminiTurn is one chat turn sent to a Gemini model.
type geminiTurn struct {
	Model       string
	System      string
	Temperature float32
	MaxTokens   int32
	History     []*genai.Content
	Message     string
}

type geminiSender interface {
	Send(ctx context.Context, turn geminiTurn) (*genai.GenerateContentResponse, error)
}

// genaiSender replays a turn into a genai chat session.
type genaiSender struct {
	client *genai.Client
}

func (s genaiSender) Send(ctx context.Context, turn geminiTurn) (*genai.GenerateContentResponse, error) {
	model := s.client.GenerativeModel(turn.Model)
	model.SetTemperature(turn.Temperature)
	if turn.MaxTokens > 0 {
		model.SetMaxOutputTokens(turn.MaxTokens)
	}
	if turn.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(turn.System))
	}
	cs := model.StartChat()
	cs.History = turn.History
	return cs.SendMessage(ctx, genai.Text(turn.Message))
}

// GeminiLLMClient implements LLMClient using Google's Gemini API.
type GeminiLLMClient struct {
	sender  geminiSender
	closeFn func() error
	modelID string
}

// NewGeminiLLMClient creates a new Gemini LLM client.
func NewGeminiLLMClient(ctx context.Context, apiKey, modelID string) (*GeminiLLMClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("ai: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("ai: failed to create gemini client: %w", err)
	}
	return newGeminiLLMClient(genaiSender{client: client}, client.Close, modelID), nil
}

func newGeminiLLMClient(sender geminiSender, closeFn func() error, modelID string) *GeminiLLMClient {
	if strings.TrimSpace(modelID) == "" {
		modelID = defaultGeminiModel
	}
	return &GeminiLLMClient{sender: sender, closeFn: closeFn, modelID: modelID}
}

// Complete replays the history into a chat session and sends the last turn.
func (c *GeminiLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if len(req.Messages) == 0 {
		return LLMResponse{}, &ProviderError{Provider: ProviderGemini, Kind: ErrProviderBadRequest, Err: errors.New("at least one message is required")}
	}
	turn := geminiTurn{
		Model:       c.modelID,
		System:      strings.TrimSpace(req.System),
		Temperature: req.Temperature,
		Message:     req.Messages[len(req.Messages)-1].Content,
	}
	if strings.TrimSpace(req.Model) != "" {
		turn.Model = req.Model
	}
	if req.MaxTokens > 0 {
		turn.MaxTokens = int32(req.MaxTokens)
	}
	for _, msg := range req.Messages[:len(req.Messages)-1] {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := "user"
		if msg.Role == ChatRoleAssistant {
			role = "model"
		}
		turn.History = append(turn.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(content)}})
	}

	resp, err := c.sender.Send(ctx, turn)
	if err != nil {
		return LLMResponse{}, classify(ProviderGemini, geminiStatus(err), err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return LLMResponse{}, ErrEmptyCompletion
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	result := LLMResponse{
		Text:       strings.TrimSpace(text.String()),
		StopReason: candidate.FinishReason.String(),
	}
	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return result, nil
}

// Close releases resources held by the Gemini client.
func (c *GeminiLLMClient) Close() error {
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

func geminiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
