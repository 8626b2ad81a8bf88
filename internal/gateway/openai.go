package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIChatModel 通过 langchaingo 的 openai 客户端调用 OpenAI 兼容接口
type OpenAIChatModel struct {
	llm         *openai.LLM
	temperature float64
}

// NewOpenAIChatModel 创建 OpenAI 兼容聊天模型。baseURL 既可以是 .../v1，
// 也可以是完整的 .../v1/chat/completions
func NewOpenAIChatModel(apiKey, modelName, baseURL string, temperature float64, timeout time.Duration) (*OpenAIChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}
	if strings.TrimSpace(modelName) == "" {
		return nil, fmt.Errorf("模型名称不能为空")
	}
	llm, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(modelName),
		openai.WithBaseURL(normalizeOpenAIBaseURL(baseURL)),
		openai.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("创建 OpenAI 客户端失败: %w", err)
	}
	return &OpenAIChatModel{llm: llm, temperature: temperature}, nil
}

func normalizeOpenAIBaseURL(u string) string {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	u = strings.TrimSuffix(u, "/chat/completions")
	if u == "" {
		return defaultOpenAIBaseURL
	}
	return u
}

// Generate 实现 model.BaseChatModel 接口
func (c *OpenAIChatModel) Generate(ctx context.Context, messages []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		if m == nil {
			continue
		}
		content = append(content, llms.TextParts(chatMessageType(m.Role), m.Content))
	}

	resp, err := c.llm.GenerateContent(ctx, content, llms.WithTemperature(c.temperature))
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项")
	}
	return schema.AssistantMessage(strings.TrimSpace(resp.Choices[0].Content), nil), nil
}

func chatMessageType(role schema.RoleType) llms.ChatMessageType {
	switch role {
	case schema.System:
		return llms.ChatMessageTypeSystem
	case schema.Assistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// Stream 未实现
func (c *OpenAIChatModel) Stream(ctx context.Context, messages []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("OpenAIChatModel 的 Stream 方法未实现")
}

var _ model.BaseChatModel = (*OpenAIChatModel)(nil)
