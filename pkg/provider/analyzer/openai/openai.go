// Package openai provides an analyzer backend on the OpenAI API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/shinelabs/shine/pkg/event"
	"github.com/shinelabs/shine/pkg/provider/analyzer"
)

const (
	analyzeTemperature = 0.3
	reflectTemperature = 0.6
	maxReplyTokens     = 1024
)

// Provider implements analyzer.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// Compile-time interface check.
var _ analyzer.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL, for OpenAI-compatible
// gateways.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI analyzer Provider.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Analyze implements analyzer.Provider.
func (p *Provider) Analyze(ctx context.Context, req analyzer.AnalyzeRequest) ([]event.NudgePayload, error) {
	reply, err := p.complete(ctx, analyzer.AnalyzeSystemPrompt, analyzer.BuildAnalyzePrompt(req), analyzeTemperature)
	if err != nil {
		return nil, fmt.Errorf("openai: analyze: %w", err)
	}
	return analyzer.ExtractNudges(reply)
}

// Reflect implements analyzer.Provider.
func (p *Provider) Reflect(ctx context.Context, req analyzer.ReflectRequest) (*analyzer.Report, error) {
	reply, err := p.complete(ctx, analyzer.ReflectSystemPrompt, analyzer.BuildReflectPrompt(req), reflectTemperature)
	if err != nil {
		return nil, fmt.Errorf("openai: reflect: %w", err)
	}
	return analyzer.ExtractReport(reply)
}

// complete issues a single non-streaming chat completion.
func (p *Provider) complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: oai.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(system),
			oai.UserMessage(user),
		},
		Temperature:         oai.Float(temperature),
		MaxCompletionTokens: oai.Int(maxReplyTokens),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
