// Package llm is a minimal client for hosted text-completion APIs.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultMaxTokens = 4096

// Request holds the parameters for one completion call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
	// Model overrides the provider's configured model when non-empty.
	Model string
}

// Response holds the completion text and the model that produced it.
type Response struct {
	Content string
	Model   string
}

// Provider is a completion backend.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

type options struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// Option customizes a provider built by NewProvider.
type Option func(*options)

// WithAPIKey sets the key instead of reading it from the environment.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL points the provider at a different endpoint.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// NewProvider parses a "provider:model" string such as "anthropic:claude-sonnet-4-5" or
// "openai:gpt-4o". Without WithAPIKey the key comes from ANTHROPIC_API_KEY or OPENAI_API_KEY.
func NewProvider(providerModel string, opts ...Option) (Provider, error) {
	name, model, ok := strings.Cut(providerModel, ":")
	if !ok || name == "" || model == "" {
		return nil, fmt.Errorf("invalid model %q: expected provider:model", providerModel)
	}
	o := options{client: &http.Client{Timeout: 2 * time.Minute}}
	for _, opt := range opts {
		opt(&o)
	}
	switch name {
	case "anthropic":
		if o.apiKey == "" {
			o.apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if o.apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
		if o.baseURL == "" {
			o.baseURL = anthropicAPIURL
		}
		return &anthropicProvider{model: model, apiKey: o.apiKey, url: o.baseURL, client: o.client}, nil
	case "openai":
		if o.apiKey == "" {
			o.apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if o.apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		if o.baseURL == "" {
			o.baseURL = openaiAPIURL
		}
		return &openaiProvider{model: model, apiKey: o.apiKey, url: o.baseURL, client: o.client}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q: supported providers are anthropic, openai", name)
	}
}

// truncate limits s to maxLen runes.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
