package processor

import (
	"errors"
	"fmt"

	"smart-ats/internal/parser"
)

// 输入错误的基础类型，均在任何模型调用之前返回
var (
	ErrUnsupportedFileType = parser.ErrUnsupportedFileType
	ErrEmptyText           = errors.New("empty extracted text")
	ErrMissingField        = errors.New("missing required field")
	ErrInvalidField        = errors.New("invalid field value")
)

// InputError 请求输入不合法。Detail 是面向调用方的提示，非空时作为 Error() 的主体。
type InputError struct {
	Op      string
	Field   string
	BaseErr error
	Detail  string
	cause   error
}

func (e *InputError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Field != "" {
		return fmt.Sprintf("%s (操作:%s, 字段:%s)", e.BaseErr, e.Op, e.Field)
	}
	return fmt.Sprintf("%s (操作:%s)", e.BaseErr, e.Op)
}

func (e *InputError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *InputError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// Cause 返回底层原因，可能为 nil
func (e *InputError) Cause() error {
	return e.cause
}

// 错误构造函数
func newMissingFieldError(op, field string) error {
	return &InputError{
		Op:      op,
		Field:   field,
		BaseErr: ErrMissingField,
		Detail:  fmt.Sprintf("Missing required field: %s", field),
	}
}

func newUnsupportedFileError(op, filename string, cause error) error {
	return &InputError{
		Op:      op,
		Field:   "file",
		BaseErr: ErrUnsupportedFileType,
		Detail:  fmt.Sprintf("Unsupported file type for %q. Please upload a PDF or DOCX file.", filename),
		cause:   cause,
	}
}

func newEmptyTextError(op string, cause error) error {
	return &InputError{
		Op:      op,
		Field:   "file",
		BaseErr: ErrEmptyText,
		Detail:  "Could not extract text from file.",
		cause:   cause,
	}
}
