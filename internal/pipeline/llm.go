package pipeline

import (
	"context"
	"sync"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/oakfield-research/qex-cli/internal/resilience"
	"github.com/oakfield-research/qex-cli/pkg/anthropic"
)

// LLMRunner funnels all model calls through a shared rate limiter and retry
// policy, applying the configured sampling parameters and accumulating usage
// so a run can report its estimated cost.
type LLMRunner struct {
	client      anthropic.Client
	limiter     *rate.Limiter
	retry       resilience.RetryConfig
	temperature float64
	topP        float64

	mu   sync.Mutex
	cost float64
}

// NewLLMRunner builds a runner. limiter may be nil to disable pacing; topP
// zero leaves nucleus sampling unset.
func NewLLMRunner(client anthropic.Client, limiter *rate.Limiter, retry resilience.RetryConfig, temperature, topP float64) *LLMRunner {
	return &LLMRunner{client: client, limiter: limiter, retry: retry, temperature: temperature, topP: topP}
}

// NewRateLimiter converts a calls-per-minute setting to a limiter, or nil
// when pacing is disabled.
func NewRateLimiter(callsPerMinute int) *rate.Limiter {
	if callsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), 1)
}

// Call sends one message request, waiting for rate capacity first and
// retrying transient failures.
func (l *LLMRunner) Call(ctx context.Context, stage string, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "pipeline: rate limiter wait")
		}
	}

	if req.Temperature == nil {
		t := l.temperature
		req.Temperature = &t
	}
	if req.TopP == nil && l.topP > 0 {
		p := l.topP
		req.TopP = &p
	}

	cfg := l.retry
	cfg.OnRetry = resilience.RetryLogger(stage, "create_message")

	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return l.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	resp.Usage.LogCost(req.Model, stage)
	l.mu.Lock()
	l.cost += resp.Usage.EstimateCost(req.Model)
	l.mu.Unlock()

	return resp, nil
}

// EstimatedCost returns the accumulated estimated cost in USD.
func (l *LLMRunner) EstimatedCost() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cost
}

// anthropicRequest builds a single-turn request with a plain system prompt.
// Sampling parameters are filled in by the runner. Stages needing cached or
// multimodal content build their requests directly.
func anthropicRequest(modelName string, maxTokens int64, system, user string) anthropic.MessageRequest {
	return anthropic.MessageRequest{
		Model:     modelName,
		MaxTokens: maxTokens,
		System:    []anthropic.SystemBlock{{Text: system}},
		Messages:  []anthropic.Message{anthropic.TextMessage("user", user)},
	}
}

// truncateHead keeps the first max bytes of s, backing off to a rune
// boundary so a multi-byte character is never split. Tables cluster early in
// most papers, so head truncation loses less than tail or middle cuts would.
func truncateHead(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
