package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	cause := errors.New("boom")
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrProviderAuth},
		{http.StatusForbidden, ErrProviderAuth},
		{http.StatusTooManyRequests, ErrProviderRateLimited},
		{http.StatusBadRequest, ErrProviderBadRequest},
		{http.StatusUnprocessableEntity, ErrProviderBadRequest},
		{http.StatusNotFound, ErrProviderBadRequest},
		{http.StatusBadGateway, ErrTransientNetwork},
		{0, ErrTransientNetwork},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			err := classify(ProviderOpenAI, tc.status, cause)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, cause)
			var perr *ProviderError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.status, perr.StatusCode)
		})
	}
}

func TestClassifyKeepsExistingProviderError(t *testing.T) {
	orig := &ProviderError{Provider: ProviderGemini, StatusCode: 429, Kind: ErrProviderRateLimited, Err: errors.New("slow down")}
	wrapped := fmt.Errorf("call: %w", orig)
	assert.True(t, classify(ProviderGemini, 500, wrapped) == wrapped)
	assert.NoError(t, classify(ProviderGemini, 500, nil))
}

func TestOpenAIClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"  Hello there  "},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`))
	}))
	defer srv.Close()

	client := NewOpenAILLMClient("sk-test", srv.URL+"/v1", srv.Client())
	resp, err := client.Complete(context.Background(), LLMRequest{
		Model:    "gpt-4o-mini",
		System:   "be brief",
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", resp.Text)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "stop", resp.StopReason)
}

func TestOpenAIClientClassifiesErrors(t *testing.T) {
	cases := map[int]error{
		http.StatusUnauthorized:       ErrProviderAuth,
		http.StatusTooManyRequests:    ErrProviderRateLimited,
		http.StatusBadRequest:         ErrProviderBadRequest,
		http.StatusServiceUnavailable: ErrTransientNetwork,
	}
	for status, want := range cases {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			}))
			defer srv.Close()

			client := NewOpenAILLMClient("sk-test", srv.URL+"/v1", srv.Client())
			_, err := client.Complete(context.Background(), LLMRequest{Model: "gpt-4o-mini", Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}})
			assert.ErrorIs(t, err, want)
		})
	}
}

func TestProviderFactoryRejectsMalformedBedrockCredential(t *testing.T) {
	f := &ProviderFactory{}
	_, _, err := f.Client(context.Background(), Settings{Provider: ProviderBedrock, APIKey: "no-separator"})
	assert.ErrorIs(t, err, ErrProviderAuth)

	_, _, err = f.Client(context.Background(), Settings{Provider: "mistral", APIKey: "k"})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}
