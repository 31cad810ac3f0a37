package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockLLMClient implements LLMClient with the Bedrock Converse API.
type BedrockLLMClient struct {
	api          bedrockConverseAPI
	defaultModel string
}

// NewBedrockLLMClient wraps api; defaultModel is used when a request has no model.
func NewBedrockLLMClient(api bedrockConverseAPI, defaultModel string) *BedrockLLMClient {
	if api == nil {
		panic("ai: bedrock converse client cannot be nil")
	}
	return &BedrockLLMClient{api: api, defaultModel: defaultModel}
}

func (c *BedrockLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if strings.TrimSpace(req.Model) == "" {
		req.Model = c.defaultModel
	}
	if strings.TrimSpace(req.Model) == "" {
		return LLMResponse{}, &ProviderError{Provider: ProviderBedrock, Kind: ErrProviderBadRequest, Err: errors.New("model id is required")}
	}

	var system []brtypes.SystemContentBlock
	if strings.TrimSpace(req.System) != "" {
		system = append(system, &brtypes.SystemContentBlockMemberText{Value: req.System})
	}

	messages := make([]brtypes.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := brtypes.ConversationRoleUser
		if msg.Role == ChatRoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		messages = append(messages, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: content}},
		})
	}

	inference := &brtypes.InferenceConfiguration{
		Temperature: aws.Float32(req.Temperature),
	}
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}

	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(req.Model),
		System:          system,
		Messages:        messages,
		InferenceConfig: inference,
	})
	if err != nil {
		return LLMResponse{}, classify(ProviderBedrock, bedrockStatus(err), err)
	}

	resp := LLMResponse{
		Text:       strings.TrimSpace(bedrockOutputText(out)),
		StopReason: string(out.StopReason),
	}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	return resp, nil
}

func bedrockOutputText(out *bedrockruntime.ConverseOutput) string {
	if out == nil {
		return ""
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	var builder strings.Builder
	for _, block := range msgOut.Value.Content {
		if textBlock, ok := block.(*brtypes.ContentBlockMemberText); ok {
			builder.WriteString(textBlock.Value)
		}
	}
	return builder.String()
}

func bedrockStatus(err error) int {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}
