package pipeline

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/oakfield-research/qex-cli/internal/resilience"
	"github.com/oakfield-research/qex-cli/pkg/anthropic"
)

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// textResponse wraps raw model output text in a response envelope.
func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      anthropic.TokenUsage{InputTokens: 1000, OutputTokens: 200},
	}
}

// newTestRunner builds an LLMRunner with no rate limiting and a single
// attempt, so mock failures surface immediately.
func newTestRunner(client anthropic.Client) *LLMRunner {
	return NewLLMRunner(client, nil, resilience.APIRetryConfig(1, time.Millisecond), 0, 0)
}
