package ai

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions API
// through the go-openai SDK.
type OpenAIProvider struct {
	Model       string
	Temperature float32
	MaxTokens   int

	client *openai.Client
}

func NewOpenAIProvider(baseURL, apiKey, model string, timeout time.Duration) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIProvider{
		Model:  model,
		client: openai.NewClientWithConfig(cfg),
	}
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	temp := p.Temperature
	if temp == 0 {
		// the SDK omits a zero temperature; this is how it asks for 0.
		temp = math.SmallestNonzeroFloat32
	}
	req := openai.ChatCompletionRequest{
		Model:       p.Model,
		Temperature: temp,
		MaxTokens:   p.MaxTokens,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &CompletionError{Provider: "openai", Err: ErrEmptyCompletion}
	}
	return resp.Choices[0].Message.Content, nil
}

// The SDK does not surface response headers, so RetryAfter stays nil here.
func classifyOpenAIError(err error) *CompletionError {
	ce := &CompletionError{Provider: "openai", Err: err}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		ce.StatusCode = apiErr.HTTPStatusCode
		code, _ := apiErr.Code.(string)
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || code == "rate_limit_exceeded" {
			ce.Transient = true
		}
		return ce
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		ce.StatusCode = reqErr.HTTPStatusCode
		ce.Transient = reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return ce
}
