package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PlainPDFExtractor 基于 ledongthuc/pdf 的纯Go文本提取器，
// 作为 Eino 解析失败或结果为空时的后备方案
type PlainPDFExtractor struct{}

// NewPlainPDFExtractor 创建后备 PDF 提取器
func NewPlainPDFExtractor() *PlainPDFExtractor {
	return &PlainPDFExtractor{}
}

// ExtractTextFromBytes 逐页提取纯文本
func (p *PlainPDFExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (text string, meta map[string]any, err error) {
	defer func() {
		// 该库在遇到损坏的PDF时可能 panic
		if r := recover(); r != nil {
			err = fmt.Errorf("解析PDF时发生异常 (URI: %s): %v", uri, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("打开PDF失败 (URI: %s): %w", uri, err)
	}

	var b strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", nil, fmt.Errorf("提取第 %d 页文本失败: %w", i, err)
		}
		b.WriteString(content)
		if i < pages {
			b.WriteString("\n")
		}
	}

	text = b.String()
	return text, map[string]any{
		"extractor":   "ledongthuc",
		"source_uri":  uri,
		"page_count":  pages,
		"text_length": len(text),
	}, nil
}

var _ PDFTextExtractor = (*PlainPDFExtractor)(nil)
