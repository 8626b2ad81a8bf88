package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
)

// ClaudeChatModel 通过 langchaingo 的 anthropic 客户端调用 Claude
type ClaudeChatModel struct {
	llm       *anthropic.LLM
	maxTokens int
	timeout   time.Duration
}

// NewClaudeChatModel 创建 Claude 聊天模型
func NewClaudeChatModel(apiKey, modelName string, maxTokens int, timeout time.Duration) (*ClaudeChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}
	llm, err := anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel(modelName))
	if err != nil {
		return nil, fmt.Errorf("创建 Claude 客户端失败: %w", err)
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &ClaudeChatModel{llm: llm, maxTokens: maxTokens, timeout: timeout}, nil
}

// Generate 实现 model.BaseChatModel 接口
func (c *ClaudeChatModel) Generate(ctx context.Context, messages []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	text, err := llms.GenerateFromSinglePrompt(ctx, c.llm, joinMessages(messages), llms.WithMaxTokens(c.maxTokens))
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(strings.TrimSpace(text), nil), nil
}

// Stream 未实现
func (c *ClaudeChatModel) Stream(ctx context.Context, messages []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("ClaudeChatModel 的 Stream 方法未实现")
}

var _ model.BaseChatModel = (*ClaudeChatModel)(nil)
