package resilience

import (
	"context"

	"github.com/shinelabs/shine/pkg/event"
	"github.com/shinelabs/shine/pkg/provider/analyzer"
)

// AnalyzerFallback implements [analyzer.Provider] with automatic failover
// across multiple analyzer backends. Each backend has its own circuit breaker;
// when the primary fails or its breaker is open, the next healthy fallback is
// tried.
type AnalyzerFallback struct {
	group *FallbackGroup[analyzer.Provider]
}

// Compile-time interface assertion.
var _ analyzer.Provider = (*AnalyzerFallback)(nil)

// NewAnalyzerFallback creates an [AnalyzerFallback] with primary as the
// preferred backend.
func NewAnalyzerFallback(primary analyzer.Provider, primaryName string, cfg FallbackConfig) *AnalyzerFallback {
	return &AnalyzerFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional analyzer provider as a fallback.
func (f *AnalyzerFallback) AddFallback(name string, provider analyzer.Provider) {
	f.group.AddFallback(name, provider)
}

// Analyze sends the request to the first healthy provider. An empty nudge
// list is a normal outcome, not a failure: it neither trips the breaker nor
// triggers failover.
func (f *AnalyzerFallback) Analyze(ctx context.Context, req analyzer.AnalyzeRequest) ([]event.NudgePayload, error) {
	return ExecuteWithResult(f.group, func(p analyzer.Provider) ([]event.NudgePayload, error) {
		return p.Analyze(ctx, req)
	})
}

// Reflect sends the request to the first healthy provider and returns its
// report. If the primary fails, subsequent fallbacks are tried.
func (f *AnalyzerFallback) Reflect(ctx context.Context, req analyzer.ReflectRequest) (*analyzer.Report, error) {
	return ExecuteWithResult(f.group, func(p analyzer.Provider) (*analyzer.Report, error) {
		return p.Reflect(ctx, req)
	})
}
