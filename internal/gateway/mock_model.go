package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// MockResponse 定义了 MockChatModel 的单次预期响应
type MockResponse struct {
	Content string
	Error   error
}

// MockChatModel 是用于测试的确定性 model.BaseChatModel 实现。
// 按顺序返回预设响应；Respond 非空时优先使用它根据提示词生成响应。
type MockChatModel struct {
	mu        sync.Mutex
	responses []MockResponse
	index     int
	prompts   []string

	// Respond 根据提示词动态生成响应
	Respond func(prompt string) (string, error)
}

// NewMockChatModel 创建按顺序返回响应的模拟模型
func NewMockChatModel(responses ...MockResponse) *MockChatModel {
	return &MockChatModel{responses: responses}
}

// NewMockChatModelFunc 创建按提示词动态响应的模拟模型
func NewMockChatModelFunc(respond func(prompt string) (string, error)) *MockChatModel {
	return &MockChatModel{Respond: respond}
}

// Generate 实现 model.BaseChatModel 接口
func (m *MockChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	prompt := joinMessages(input)

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	respond := m.Respond
	var resp MockResponse
	var exhausted bool
	if respond == nil {
		if m.index >= len(m.responses) {
			exhausted = true
		} else {
			resp = m.responses[m.index]
			m.index++
		}
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if respond != nil {
		text, err := respond(prompt)
		if err != nil {
			return nil, err
		}
		return schema.AssistantMessage(text, nil), nil
	}
	if exhausted {
		return nil, errors.New("mock chat model has run out of responses")
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return schema.AssistantMessage(resp.Content, nil), nil
}

// Stream 未实现
func (m *MockChatModel) Stream(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("streaming not implemented in MockChatModel")
}

// Prompts 返回所有调用收到的提示词
func (m *MockChatModel) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// Calls 返回调用次数
func (m *MockChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// StaticFactory 总是返回同一个模型实例的工厂
func StaticFactory(m model.BaseChatModel) ChatModelFactory {
	return func(context.Context, string) (model.BaseChatModel, error) {
		return m, nil
	}
}

// NewMockGateway 用一个模拟模型注册所有提供方，只尝试一次且不等待
func NewMockGateway(m model.BaseChatModel, opts ...Option) *Gateway {
	base := make([]Option, 0, len(Providers)+1)
	for _, p := range Providers {
		base = append(base, WithBackend(p, BackendConfig{Factory: StaticFactory(m), MaxAttempts: 1}))
	}
	base = append(base, WithSleep(func(context.Context, time.Duration) error { return nil }))
	return New(append(base, opts...)...)
}

var _ model.BaseChatModel = (*MockChatModel)(nil)
