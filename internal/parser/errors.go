package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat 模型输出无法解析为预期的结构
	ErrFormat = errors.New("unparseable model output")

	errNoJSONObject = errors.New("响应中没有JSON对象")
)

// ParseError 表示模型返回的内容格式不符合预期
type ParseError struct {
	Stage   string // parse, ats
	Preview string // 截断后的原始响应
	Err     error
}

func (e *ParseError) Error() string {
	switch e.Stage {
	case StageATS:
		return "Failed to parse AI response."
	default:
		return "Failed to parse resume into structured format"
	}
}

// Unwrap 同时暴露 ErrFormat 与底层解码错误
func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFormat}
	}
	return []error{ErrFormat, e.Err}
}

// Detail 返回用于日志的详细描述
func (e *ParseError) Detail() string {
	return fmt.Sprintf("%s: %v (响应片段: %q)", e.Stage, e.Err, e.Preview)
}

const (
	StageParse = "parse"
	StageATS   = "ats"
)

func newParseError(stage, response string, err error) *ParseError {
	preview := response
	if r := []rune(preview); len(r) > 200 {
		preview = string(r[:200]) + "..."
	}
	return &ParseError{Stage: stage, Preview: preview, Err: err}
}
