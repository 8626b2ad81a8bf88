package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"smart-ats/internal/config"
	"smart-ats/internal/gateway"
	"smart-ats/internal/logger"
	"smart-ats/internal/parser"
	"smart-ats/internal/processor"
)

// 公共命令行参数
var (
	configPath  = pflag.StringP("config", "c", "", "配置文件路径，为空时自动查找")
	inputFile   = pflag.StringP("file", "f", "", "简历文件路径 (PDF/DOCX)")
	jdText      = pflag.String("jd", "", "职位描述文本")
	jdFile      = pflag.String("jd-file", "", "从文件读取职位描述")
	jobPosition = pflag.String("position", "", "目标职位名称")
	provider    = pflag.StringP("provider", "p", "Ollama", "LLM提供方: Ollama, Gemini, OpenAI, Claude")
	modelName   = pflag.StringP("model", "m", "", "模型名称")
	outFormat   = pflag.String("format", "text", "输出格式，可选项：text, json")
	saveFile    = pflag.StringP("out", "o", "", "保存结果到文件")
	maxLen      = pflag.Int("maxlen", 0, "终端最多打印的字符数，0 表示不截断")
	timeout     = pflag.Duration("timeout", 5*time.Minute, "整个命令的超时时间")
	verbose     = pflag.BoolP("verbose", "v", false, "输出调试日志")
)

func usage() {
	fmt.Fprintf(os.Stderr, "用法: %s <命令> [参数]\n\n", filepath.Base(os.Args[0]))
	fmt.Fprintln(os.Stderr, "命令:")
	fmt.Fprintln(os.Stderr, "  extract      提取简历文件中的文本")
	fmt.Fprintln(os.Stderr, "  parse        将简历解析为结构化 JSON")
	fmt.Fprintln(os.Stderr, "  gap          分析简历与职位描述之间的差距")
	fmt.Fprintln(os.Stderr, "  reconstruct  根据职位描述重构简历 (--mode fast|full)")
	fmt.Fprintln(os.Stderr, "  analyze      ATS 匹配评估")
	fmt.Fprintln(os.Stderr, "\n参数:")
	pflag.PrintDefaults()
}

// env 命令共享的依赖
type env struct {
	cfg       *config.Config
	gateway   *gateway.Gateway
	extractor parser.TextExtractor
	logger    *zerolog.Logger
}

func main() {
	pflag.Usage = usage
	pflag.Parse()
	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	cmd := pflag.Arg(0)

	_ = godotenv.Load()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	logCfg := logger.Config{Level: "warn", Format: "pretty", TimeFormat: time.TimeOnly}
	if *verbose {
		logCfg.Level = "debug"
	}
	closer, err := logger.Init(logCfg)
	if err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	l := logger.Component("cli")
	extractor, err := processor.BuildExtractor(ctx, cfg.Extractor, l)
	if err != nil {
		fmt.Printf("创建文本提取器失败: %v\n", err)
		os.Exit(1)
	}
	e := &env{
		cfg:       cfg,
		gateway:   gateway.NewFromConfig(cfg.Providers, gateway.WithLogger(logger.Component("gateway"))),
		extractor: extractor,
		logger:    l,
	}

	switch cmd {
	case "extract":
		err = e.handleExtract(ctx)
	case "parse":
		err = e.handleParse(ctx)
	case "gap":
		err = e.handleGap(ctx)
	case "reconstruct":
		err = e.handleReconstruct(ctx)
	case "analyze":
		err = e.handleAnalyze(ctx)
	default:
		fmt.Printf("未知命令: %s\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Printf("错误: %v\n", err)
		os.Exit(1)
	}
}
