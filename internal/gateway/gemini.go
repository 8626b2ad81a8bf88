package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// GeminiChatModel 基于 google.golang.org/genai 的 Gemini 聊天模型
type GeminiChatModel struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration
}

// NewGeminiChatModel 创建 Gemini 聊天模型
func NewGeminiChatModel(ctx context.Context, apiKey, modelName string, timeout time.Duration) (*GeminiChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 Gemini 客户端失败: %w", err)
	}
	return &GeminiChatModel{client: client, modelName: modelName, timeout: timeout}, nil
}

// Generate 实现 model.BaseChatModel 接口
func (g *GeminiChatModel) Generate(ctx context.Context, messages []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(joinMessages(messages)), nil)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("Gemini 未返回任何候选结果")
	}
	return schema.AssistantMessage(strings.TrimSpace(resp.Text()), nil), nil
}

// Stream 未实现
func (g *GeminiChatModel) Stream(ctx context.Context, messages []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("GeminiChatModel 的 Stream 方法未实现")
}

var _ model.BaseChatModel = (*GeminiChatModel)(nil)
