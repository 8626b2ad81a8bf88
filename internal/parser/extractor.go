package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"smart-ats/internal/logger"
)

// FileType 支持的上传文件类型
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeDOCX FileType = "docx"
)

// ErrUnsupportedFileType 文件类型不是 pdf 或 docx
var ErrUnsupportedFileType = errors.New("unsupported file type")

// PDFTextExtractor 从字节中提取文本；名称沿用但同样用于 DOCX 后端
type PDFTextExtractor interface {
	ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (string, map[string]any, error)
}

// TextExtractor 流水线所需的文本提取能力
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, fileType FileType, uri string) (string, error)
}

// DetectFileType 根据文件扩展名判断类型，allowed 为空时接受 pdf 和 docx
func DetectFileType(filename string, allowed []string) (FileType, error) {
	ext := strings.ToLower(strings.TrimPrefix(extOf(filename), "."))
	if len(allowed) > 0 && !slices.Contains(allowed, ext) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, ext)
	}
	switch FileType(ext) {
	case FileTypePDF, FileTypeDOCX:
		return FileType(ext), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, ext)
	}
}

func extOf(name string) string {
	return filepath.Ext(name)
}

// DocumentExtractor 按文件类型分发到具体后端。
// PDF 主后端失败或结果为空时使用后备后端。
type DocumentExtractor struct {
	pdf         PDFTextExtractor
	pdfFallback PDFTextExtractor
	docx        PDFTextExtractor
	logger      *zerolog.Logger
}

// DocumentExtractorOption 配置选项
type DocumentExtractorOption func(*DocumentExtractor)

// WithPDFFallback 设置 PDF 后备提取器，nil 表示不使用后备
func WithPDFFallback(e PDFTextExtractor) DocumentExtractorOption {
	return func(d *DocumentExtractor) {
		d.pdfFallback = e
	}
}

// WithDOCXExtractor 替换 DOCX 提取器
func WithDOCXExtractor(e PDFTextExtractor) DocumentExtractorOption {
	return func(d *DocumentExtractor) {
		d.docx = e
	}
}

// WithExtractorLogger 设置日志记录器
func WithExtractorLogger(l *zerolog.Logger) DocumentExtractorOption {
	return func(d *DocumentExtractor) {
		d.logger = logger.OrNop(l)
	}
}

// NewDocumentExtractor 创建文档提取器，默认使用 ledongthuc/pdf 作为 PDF 后备，nguyenthenguyen/docx 处理 DOCX
func NewDocumentExtractor(pdf PDFTextExtractor, opts ...DocumentExtractorOption) *DocumentExtractor {
	d := &DocumentExtractor{
		pdf:         pdf,
		pdfFallback: NewPlainPDFExtractor(),
		docx:        NewDocxExtractor(),
		logger:      logger.OrNop(nil),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Extract 实现 TextExtractor
func (d *DocumentExtractor) Extract(ctx context.Context, data []byte, fileType FileType, uri string) (string, error) {
	switch fileType {
	case FileTypeDOCX:
		text, _, err := d.docx.ExtractTextFromBytes(ctx, data, uri)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(text), nil

	case FileTypePDF:
		var primaryErr error
		if d.pdf != nil {
			text, _, err := d.pdf.ExtractTextFromBytes(ctx, data, uri)
			if err == nil && strings.TrimSpace(text) != "" {
				return strings.TrimSpace(text), nil
			}
			primaryErr = err
		}
		if d.pdfFallback == nil {
			if primaryErr != nil {
				return "", primaryErr
			}
			return "", nil
		}
		d.logger.Info().Err(primaryErr).Str("uri", uri).Msg("主PDF提取器无结果，使用后备提取器")
		text, _, err := d.pdfFallback.ExtractTextFromBytes(ctx, data, uri)
		if err != nil {
			if primaryErr != nil {
				return "", fmt.Errorf("PDF文本提取失败: %w; 后备提取器: %v", primaryErr, err)
			}
			return "", err
		}
		return strings.TrimSpace(text), nil

	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, fileType)
	}
}
