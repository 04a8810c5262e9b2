package services

import (
	"context"
	"sync"

	"github.com/talecraft/turnengine/pkg/chat"
	"github.com/talecraft/turnengine/pkg/contract"
)

// MockModelService is a scriptable ModelService for tests. Queue raw
// replies with EnqueueReply, or set InferFunc for full control.
type MockModelService struct {
	InitModelFunc func(ctx context.Context, modelName string) error
	InferFunc     func(ctx context.Context, messages []chat.Message) (*chat.Reply, error)

	// Track calls for assertions
	InitModelCalls []string
	InferCalls     [][]chat.Message

	queued []string
	mu     sync.Mutex
}

func NewMockModelService() *MockModelService {
	return &MockModelService{}
}

// EnqueueReply queues a raw reply string; successive Infer calls consume
// the queue in order. JSON extraction runs like a real transport.
func (m *MockModelService) EnqueueReply(raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, raw)
}

func (m *MockModelService) InitModel(ctx context.Context, modelName string) error {
	m.mu.Lock()
	m.InitModelCalls = append(m.InitModelCalls, modelName)
	m.mu.Unlock()

	if m.InitModelFunc != nil {
		return m.InitModelFunc(ctx, modelName)
	}
	return nil
}

func (m *MockModelService) Infer(ctx context.Context, messages []chat.Message) (*chat.Reply, error) {
	m.mu.Lock()
	m.InferCalls = append(m.InferCalls, messages)
	var raw string
	hasQueued := len(m.queued) > 0
	if hasQueued {
		raw = m.queued[0]
		m.queued = m.queued[1:]
	}
	m.mu.Unlock()

	if m.InferFunc != nil {
		return m.InferFunc(ctx, messages)
	}

	if !hasQueued {
		raw = `{"scn": "mock", "txt": "Nothing happens."}`
	}

	reply := &chat.Reply{Raw: raw}
	if obj, err := contract.ExtractObject(raw); err == nil {
		reply.JSON = obj
	}
	return reply, nil
}

// CallCount returns how many Infer calls have been made.
func (m *MockModelService) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.InferCalls)
}
