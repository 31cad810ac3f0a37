package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// ClientFactory builds an LLM client bound to an org's settings. The
// returned release func frees per-client resources.
type ClientFactory interface {
	Client(ctx context.Context, settings Settings) (LLMClient, func(), error)
}

// ProviderFactory builds clients for the supported providers.
type ProviderFactory struct {
	HTTPClient     *http.Client
	OpenAIBaseURL  string
	AWSConfig      aws.Config
	BedrockModelID string
}

// Client returns a client for settings.Provider. Bedrock credentials are
// "ACCESS_KEY_ID:SECRET_ACCESS_KEY".
func (f *ProviderFactory) Client(ctx context.Context, settings Settings) (LLMClient, func(), error) {
	noop := func() {}
	switch settings.Provider {
	case ProviderOpenAI, "":
		return NewOpenAILLMClient(settings.APIKey, f.OpenAIBaseURL, f.HTTPClient), noop, nil
	case ProviderGemini:
		client, err := NewGeminiLLMClient(ctx, settings.APIKey, settings.Model)
		if err != nil {
			return nil, nil, err
		}
		return client, func() { _ = client.Close() }, nil
	case ProviderBedrock:
		keyID, secret, ok := strings.Cut(settings.APIKey, bedrockCredentialSeparator)
		if !ok || keyID == "" || secret == "" {
			return nil, nil, &ProviderError{Provider: ProviderBedrock, Kind: ErrProviderAuth, Err: fmt.Errorf("credential must be ACCESS_KEY_ID:SECRET_ACCESS_KEY")}
		}
		api := bedrockruntime.NewFromConfig(f.AWSConfig, func(o *bedrockruntime.Options) {
			o.Credentials = credentials.NewStaticCredentialsProvider(keyID, secret, "")
		})
		return NewBedrockLLMClient(api, f.BedrockModelID), noop, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, settings.Provider)
	}
}
