package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const ollamaTagsTimeout = 3 * time.Second

// OllamaChatModel 通过 /api/generate 调用自托管的 Ollama 服务
type OllamaChatModel struct {
	baseURL    string
	modelName  string
	timeout    time.Duration
	httpClient *http.Client
}

// NewOllamaChatModel 创建 Ollama 聊天模型，timeout 是单次请求的超时
func NewOllamaChatModel(baseURL, modelName string, timeout time.Duration) *OllamaChatModel {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &OllamaChatModel{
		baseURL:    strings.TrimRight(baseURL, "/"),
		modelName:  modelName,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Generate 实现 model.BaseChatModel 接口
func (o *OllamaChatModel) Generate(ctx context.Context, messages []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  o.modelName,
		Prompt: joinMessages(messages),
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, o.classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &backendError{
			kind: ErrProviderStatus,
			msg:  fmt.Sprintf("Ollama API returned status %d", resp.StatusCode),
		}
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if isTimeout(err) {
			return nil, o.timeoutError(err)
		}
		return nil, fmt.Errorf("反序列化 Ollama 响应失败: %w", err)
	}
	return schema.AssistantMessage(strings.TrimSpace(out.Response), nil), nil
}

// Stream 未实现
func (o *OllamaChatModel) Stream(ctx context.Context, messages []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("OllamaChatModel 的 Stream 方法未实现")
}

// classifyTransportError 区分连接失败（不重试）和超时（可重试）
func (o *OllamaChatModel) classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if isTimeout(err) {
		return o.timeoutError(err)
	}
	return &backendError{
		kind: ErrProviderUnreachable,
		msg:  fmt.Sprintf("Cannot connect to Ollama at %s. Please ensure Ollama is running and accessible.", o.baseURL),
		err:  err,
	}
}

func (o *OllamaChatModel) timeoutError(err error) error {
	return &backendError{
		kind: ErrProviderTimeout,
		msg: fmt.Sprintf("Ollama API timed out after %ds. The model '%s' may be too slow for this task. "+
			"Try using a faster model (e.g., llama3.2, qwen2.5) or switch to Gemini/OpenAI/Claude.",
			int(o.timeout.Seconds()), o.modelName),
		err: err,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListOllamaModels 探测 /api/tags 并返回已安装的模型名称
func ListOllamaModels(ctx context.Context, client *http.Client, baseURL string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, ollamaTagsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama /api/tags 返回状态 %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("解析 ollama 模型列表失败: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// joinMessages 把消息列表拼接成单个提示词
func joinMessages(messages []*schema.Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		if m == nil || m.Content == "" {
			continue
		}
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n\n")
}

var _ model.BaseChatModel = (*OllamaChatModel)(nil)
