package mocks

import (
	"context"

	"github.com/dukex/conductor/pkg/llm"
	"github.com/stretchr/testify/mock"
)

// MockLLMClient is a mock implementation of llm.Client interface.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Message, error) {
	args := m.Called(ctx, messages, tools)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*llm.Message), args.Error(1)
}
