package gateway

import (
	"errors"
	"fmt"
)

// 网关错误的基础类型
var (
	ErrUnknownProvider       = errors.New("未知的模型提供方")
	ErrProviderNotConfigured = errors.New("模型提供方未配置")
	ErrTransport             = errors.New("模型调用失败")
	ErrProviderUnreachable   = errors.New("无法连接模型服务")
	ErrProviderTimeout       = errors.New("模型调用超时")
	ErrProviderStatus        = errors.New("模型服务返回非成功状态")
)

// ProviderError 网关对外暴露的唯一错误类型。
// Detail 是面向用户的可操作提示，非空时作为 Error() 的主体。
type ProviderError struct {
	Provider Provider
	Model    string
	Op       string
	Attempts int
	BaseErr  error
	Detail   string
	cause    error
}

func (e *ProviderError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.cause != nil {
		return fmt.Sprintf("%s (提供方:%s, 模型:%s, 操作:%s, 尝试:%d): %v", e.BaseErr, e.Provider, e.Model, e.Op, e.Attempts, e.cause)
	}
	return fmt.Sprintf("%s (提供方:%s, 模型:%s, 操作:%s)", e.BaseErr, e.Provider, e.Model, e.Op)
}

func (e *ProviderError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *ProviderError) Is(target error) bool {
	if errors.Is(e.BaseErr, target) {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// Cause 返回最后一次调用的底层错误
func (e *ProviderError) Cause() error {
	return e.cause
}

// IsClientError 判断错误是否由调用方参数引起（未知提供方或未配置）
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnknownProvider) || errors.Is(err, ErrProviderNotConfigured)
}

func newUnknownProviderError(name string) error {
	return &ProviderError{
		Provider: Provider(name),
		Op:       "resolve",
		BaseErr:  ErrUnknownProvider,
		Detail:   fmt.Sprintf("Unknown provider: %s", name),
	}
}

func newNotConfiguredError(p Provider, model string, cause error) error {
	return &ProviderError{
		Provider: p,
		Model:    model,
		Op:       "init",
		BaseErr:  ErrProviderNotConfigured,
		Detail:   fmt.Sprintf("%s is not configured: %v", p, cause),
		cause:    cause,
	}
}

// backendError 由各个后端返回，携带分类哨兵和可读信息
type backendError struct {
	kind error
	msg  string
	err  error
}

func (e *backendError) Error() string {
	if e.err != nil && e.msg == "" {
		return e.err.Error()
	}
	return e.msg
}

func (e *backendError) Unwrap() []error {
	if e.err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.err}
}
