package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"smart-ats/internal/parser"
)

// loadedFile 从磁盘读取的简历文件
type loadedFile struct {
	Path     string
	Name     string
	Bytes    []byte
	FileType parser.FileType
}

func (e *env) loadFile() (*loadedFile, error) {
	if *inputFile == "" {
		return nil, fmt.Errorf("必须提供简历文件路径，使用 --file 参数")
	}

	absPath, err := filepath.Abs(*inputFile)
	if err != nil {
		return nil, fmt.Errorf("无法获取文件的绝对路径: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return nil, fmt.Errorf("无法访问文件 %s: %w", absPath, err)
	}
	fileType, err := parser.DetectFileType(absPath, e.cfg.Upload.AllowedExtensions)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	return &loadedFile{Path: absPath, Name: filepath.Base(absPath), Bytes: data, FileType: fileType}, nil
}

func (e *env) extractText(ctx context.Context) (*loadedFile, string, error) {
	f, err := e.loadFile()
	if err != nil {
		return nil, "", err
	}
	fmt.Printf("准备处理%s文件: %s\n", strings.ToUpper(string(f.FileType)), f.Path)

	text, err := e.extractor.Extract(ctx, f.Bytes, f.FileType, f.Path)
	if err != nil {
		return nil, "", fmt.Errorf("提取文本失败: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, "", fmt.Errorf("未能从文件中提取到文本")
	}
	return f, text, nil
}

// 处理提取文本命令
func (e *env) handleExtract(ctx context.Context) error {
	f, text, err := e.extractText(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("提取完成，共 %d 个字符\n", len([]rune(text)))

	if *outFormat == "json" {
		return emit(map[string]any{
			"filename":  f.Name,
			"file_type": f.FileType,
			"length":    len([]rune(text)),
			"text":      text,
		})
	}
	return emitText(text)
}

// emit 以 JSON 输出结果，并按需保存到文件
func emit(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化结果失败: %w", err)
	}
	return emitText(string(data))
}

func emitText(text string) error {
	if *saveFile != "" {
		if err := os.WriteFile(*saveFile, []byte(text), 0o644); err != nil {
			return fmt.Errorf("保存结果失败: %w", err)
		}
		fmt.Printf("结果已保存到: %s\n", *saveFile)
	}

	fmt.Println("\n========== 结果 ==========")
	runes := []rune(text)
	if *maxLen > 0 && len(runes) > *maxLen {
		fmt.Println(string(runes[:*maxLen]))
		fmt.Printf("... (已截断，共 %d 个字符)\n", len(runes))
	} else {
		fmt.Println(text)
	}
	fmt.Println("==========================")
	return nil
}
