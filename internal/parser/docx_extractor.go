package parser

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>`)
	docxCellEnd      = regexp.MustCompile(`(</w:p>\s*)?</w:tc>`)
	docxRowEnd       = regexp.MustCompile(`</w:tr>`)
	docxBreak        = regexp.MustCompile(`<w:(br|cr)[^>]*/>`)
	docxTab          = regexp.MustCompile(`<w:tab[^>]*/>`)
	xmlTag           = regexp.MustCompile(`<[^>]+>`)
	blankLines       = regexp.MustCompile(`\n\s*\n+`)
)

// DocxExtractor 从 DOCX 的 document.xml 中提取段落和表格文本
type DocxExtractor struct{}

// NewDocxExtractor 创建 DOCX 提取器
func NewDocxExtractor() *DocxExtractor {
	return &DocxExtractor{}
}

// ExtractTextFromBytes 段落按行输出，表格单元格用 " | " 连接
func (d *DocxExtractor) ExtractTextFromBytes(_ context.Context, data []byte, uri string) (string, map[string]any, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("读取DOCX失败 (URI: %s): %w", uri, err)
	}
	defer doc.Close()

	text := docxXMLToText(doc.Editable().GetContent())
	return text, map[string]any{
		"extractor":   "docx",
		"source_uri":  uri,
		"text_length": len(text),
	}, nil
}

// docxXMLToText 把 WordprocessingML 转换为纯文本
func docxXMLToText(content string) string {
	content = docxCellEnd.ReplaceAllString(content, " | ")
	content = docxRowEnd.ReplaceAllString(content, "\n")
	content = docxParagraphEnd.ReplaceAllString(content, "\n")
	content = docxBreak.ReplaceAllString(content, "\n")
	content = docxTab.ReplaceAllString(content, "\t")
	content = xmlTag.ReplaceAllString(content, "")
	content = html.UnescapeString(content)

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(strings.TrimSpace(line), " |")
	}
	content = strings.Join(lines, "\n")
	content = blankLines.ReplaceAllString(content, "\n")
	return strings.TrimSpace(content)
}
