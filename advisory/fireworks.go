package advisory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://api.fireworks.ai"
	DefaultTimeout = 60 * time.Second

	apiPath     = "/inference/v1"
	modelPrefix = "accounts/fireworks/models/"
)

// ErrNoAPIKey is returned when FIREWORKS_API_KEY was not configured.
var ErrNoAPIKey = errors.New("FIREWORKS_API_KEY is empty")

// Provider sends a rendered prompt to a hosted language model.
type Provider interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// FireworksProvider talks to the OpenAI compatible completions endpoint of
// Fireworks AI. A call is bounded by the client timeout and is never retried.
type FireworksProvider struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration

	client *openai.Client
}

func NewFireworksProvider(key, baseURL string, timeout time.Duration) *FireworksProvider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := openai.DefaultConfig(key)
	cfg.BaseURL = baseURL + apiPath
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &FireworksProvider{
		APIKey:  key,
		BaseURL: baseURL,
		Timeout: timeout,
		client:  openai.NewClientWithConfig(cfg),
	}
}

func (p *FireworksProvider) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if p.APIKey == "" {
		return "", ErrNoAPIKey
	}

	resp, err := p.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       modelPrefix + opts.Model,
		Prompt:      prompt,
		Temperature: temperature(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("fireworks completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("fireworks completion: empty response")
	}
	return resp.Choices[0].Text, nil
}

// temperature maps 0 to the smallest positive float32. The request field is
// omitempty, and an omitted temperature means the server default of 1.
func temperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}
