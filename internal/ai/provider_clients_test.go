package ai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

// mockBedrockClient implements bedrockConverseAPI for testing.
type mockBedrockClient struct {
	input    *bedrockruntime.ConverseInput
	response string
	err      error
}

func (m *mockBedrockClient) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.input = in
	if m.err != nil {
		return nil, m.err
	}
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.response}},
			},
		},
		StopReason: brtypes.StopReasonEndTurn,
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(20),
			OutputTokens: aws.Int32(4),
			TotalTokens:  aws.Int32(24),
		},
	}, nil
}

func transcriptRequest() LLMRequest {
	return LLMRequest{
		System: "Be brief.",
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: "Hi"},
			{Role: ChatRoleAssistant, Content: "Hello!"},
			{Role: ChatRoleUser, Content: "  "},
			{Role: ChatRoleUser, Content: "When do you open?"},
		},
		Temperature: 0.7,
		MaxTokens:   500,
	}
}

func awsStatusError(status int) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      errors.New("bedrock failure"),
		},
	}
}

func TestBedrockClientComplete(t *testing.T) {
	api := &mockBedrockClient{response: "  We open at 9.  "}
	client := NewBedrockLLMClient(api, "anthropic.claude-3-haiku")

	resp, err := client.Complete(context.Background(), transcriptRequest())
	require.NoError(t, err)
	assert.Equal(t, "We open at 9.", resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, TokenUsage{InputTokens: 20, OutputTokens: 4, TotalTokens: 24}, resp.Usage)

	in := api.input
	require.NotNil(t, in)
	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(in.ModelId))
	require.Len(t, in.System, 1)
	assert.Equal(t, "Be brief.", in.System[0].(*brtypes.SystemContentBlockMemberText).Value)
	require.Len(t, in.Messages, 3, "blank turns are dropped")
	assert.Equal(t, brtypes.ConversationRoleUser, in.Messages[0].Role)
	assert.Equal(t, brtypes.ConversationRoleAssistant, in.Messages[1].Role)
	assert.Equal(t, "When do you open?", in.Messages[2].Content[0].(*brtypes.ContentBlockMemberText).Value)
	assert.Equal(t, int32(500), aws.ToInt32(in.InferenceConfig.MaxTokens))
	assert.InDelta(t, 0.7, aws.ToFloat32(in.InferenceConfig.Temperature), 0.0001)
}

func TestBedrockClientRequestModelOverridesDefault(t *testing.T) {
	api := &mockBedrockClient{response: "ok"}
	req := transcriptRequest()
	req.Model = "amazon.nova-lite"

	_, err := NewBedrockLLMClient(api, "anthropic.claude-3-haiku").Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "amazon.nova-lite", aws.ToString(api.input.ModelId))
}

func TestBedrockClientRequiresModel(t *testing.T) {
	api := &mockBedrockClient{response: "ok"}
	_, err := NewBedrockLLMClient(api, "").Complete(context.Background(), transcriptRequest())
	assert.ErrorIs(t, err, ErrProviderBadRequest)
	assert.Nil(t, api.input)
}

func TestBedrockClientClassifiesErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "forbidden", err: awsStatusError(http.StatusForbidden), want: ErrProviderAuth},
		{name: "throttled", err: awsStatusError(http.StatusTooManyRequests), want: ErrProviderRateLimited},
		{name: "validation", err: awsStatusError(http.StatusBadRequest), want: ErrProviderBadRequest},
		{name: "unavailable", err: awsStatusError(http.StatusServiceUnavailable), want: ErrTransientNetwork},
		{name: "no response", err: context.DeadlineExceeded, want: ErrTransientNetwork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewBedrockLLMClient(&mockBedrockClient{err: tc.err}, "m").Complete(context.Background(), transcriptRequest())
			assert.ErrorIs(t, err, tc.want)
			var perr *ProviderError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, ProviderBedrock, perr.Provider)
		})
	}
}

type stubGeminiSender struct {
	turn geminiTurn
	resp *genai.GenerateContentResponse
	err  error
}

func (s *stubGeminiSender) Send(_ context.Context, turn geminiTurn) (*genai.GenerateContentResponse, error) {
	s.turn = turn
	return s.resp, s.err
}

func geminiReply(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: "model", Parts: parts},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 11, CandidatesTokenCount: 5, TotalTokenCount: 16},
	}
}

func TestGeminiClientComplete(t *testing.T) {
	sender := &stubGeminiSender{resp: geminiReply(genai.Text("We open "), genai.Text("at 9. "))}
	closed := false
	client := newGeminiLLMClient(sender, func() error { closed = true; return nil }, "")

	resp, err := client.Complete(context.Background(), transcriptRequest())
	require.NoError(t, err)
	assert.Equal(t, "We open at 9.", resp.Text)
	assert.Equal(t, "FinishReasonStop", resp.StopReason)
	assert.Equal(t, TokenUsage{InputTokens: 11, OutputTokens: 5, TotalTokens: 16}, resp.Usage)

	turn := sender.turn
	assert.Equal(t, defaultGeminiModel, turn.Model)
	assert.Equal(t, "Be brief.", turn.System)
	assert.Equal(t, int32(500), turn.MaxTokens)
	assert.Equal(t, "When do you open?", turn.Message)
	require.Len(t, turn.History, 2, "the last turn is sent, blank turns are dropped")
	assert.Equal(t, "user", turn.History[0].Role)
	assert.Equal(t, "model", turn.History[1].Role)
	assert.Equal(t, genai.Text("Hello!"), turn.History[1].Parts[0])

	require.NoError(t, client.Close())
	assert.True(t, closed)
}

func TestGeminiClientRequestModelOverridesDefault(t *testing.T) {
	sender := &stubGeminiSender{resp: geminiReply(genai.Text("ok"))}
	req := transcriptRequest()
	req.Model = "gemini-2.0-pro"

	_, err := newGeminiLLMClient(sender, nil, "gemini-2.5-flash").Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-pro", sender.turn.Model)
}

func TestGeminiClientEmptyCandidates(t *testing.T) {
	sender := &stubGeminiSender{resp: &genai.GenerateContentResponse{}}
	_, err := newGeminiLLMClient(sender, nil, "").Complete(context.Background(), transcriptRequest())
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestGeminiClientRequiresMessages(t *testing.T) {
	sender := &stubGeminiSender{resp: geminiReply(genai.Text("ok"))}
	_, err := newGeminiLLMClient(sender, nil, "").Complete(context.Background(), LLMRequest{System: "x"})
	assert.ErrorIs(t, err, ErrProviderBadRequest)
}

func TestGeminiClientClassifiesErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "bad key", err: &googleapi.Error{Code: http.StatusUnauthorized, Message: "API key not valid"}, want: ErrProviderAuth},
		{name: "quota", err: &googleapi.Error{Code: http.StatusTooManyRequests, Message: "resource exhausted"}, want: ErrProviderRateLimited},
		{name: "bad request", err: &googleapi.Error{Code: http.StatusBadRequest, Message: "invalid argument"}, want: ErrProviderBadRequest},
		{name: "server", err: &googleapi.Error{Code: http.StatusInternalServerError}, want: ErrTransientNetwork},
		{name: "network", err: errors.New("connection reset by peer"), want: ErrTransientNetwork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newGeminiLLMClient(&stubGeminiSender{err: tc.err}, nil, "").Complete(context.Background(), transcriptRequest())
			assert.ErrorIs(t, err, tc.want)
			var perr *ProviderError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, ProviderGemini, perr.Provider)
		})
	}
}

func TestNewGeminiLLMClientRequiresKey(t *testing.T) {
	_, err := NewGeminiLLMClient(context.Background(), " ", "")
	assert.Error(t, err)
}
