// Package anyllm provides a universal analyzer backend built on
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// more.
//
// Usage:
//
//	p, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-..."))
//	p, err := anyllm.NewOllama("llama3.2")
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/shinelabs/shine/pkg/event"
	"github.com/shinelabs/shine/pkg/provider/analyzer"
)

// analyzeTemperature keeps nudge output focused; reflection gets a little
// more room to phrase things warmly.
const (
	analyzeTemperature = 0.3
	reflectTemperature = 0.6
	maxReplyTokens     = 1024
)

// Provider implements analyzer.Provider by wrapping any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

// Compile-time interface check.
var _ analyzer.Provider = (*Provider)(nil)

// New creates a Provider backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq". model is the specific model to use. opts are
// any-llm-go options (e.g. anyllmlib.WithAPIKey); without an API key option
// the backend falls back to its environment variable.
func New(providerName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}
	return &Provider{backend: backend, model: model}, nil
}

// NewOpenAI creates a Provider backed by OpenAI.
// Without options, it reads the OPENAI_API_KEY environment variable.
func NewOpenAI(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("openai", model, opts...)
}

// NewAnthropic creates a Provider backed by Anthropic.
// Without options, it reads the ANTHROPIC_API_KEY environment variable.
func NewAnthropic(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("anthropic", model, opts...)
}

// NewOllama creates a Provider backed by Ollama (local inference).
// Without options, it connects to http://localhost:11434.
func NewOllama(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("ollama", model, opts...)
}

// createBackend creates the underlying any-llm-go provider.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq", providerName)
	}
}

// Analyze implements analyzer.Provider.
func (p *Provider) Analyze(ctx context.Context, req analyzer.AnalyzeRequest) ([]event.NudgePayload, error) {
	reply, err := p.complete(ctx, analyzer.AnalyzeSystemPrompt, analyzer.BuildAnalyzePrompt(req), analyzeTemperature)
	if err != nil {
		return nil, fmt.Errorf("anyllm: analyze: %w", err)
	}
	return analyzer.ExtractNudges(reply)
}

// Reflect implements analyzer.Provider.
func (p *Provider) Reflect(ctx context.Context, req analyzer.ReflectRequest) (*analyzer.Report, error) {
	reply, err := p.complete(ctx, analyzer.ReflectSystemPrompt, analyzer.BuildReflectPrompt(req), reflectTemperature)
	if err != nil {
		return nil, fmt.Errorf("anyllm: reflect: %w", err)
	}
	return analyzer.ExtractReport(reply)
}

// complete issues a single non-streaming completion.
func (p *Provider) complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	maxTokens := maxReplyTokens
	params := anyllmlib.CompletionParams{
		Model: p.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: system},
			{Role: anyllmlib.RoleUser, Content: user},
		},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}
