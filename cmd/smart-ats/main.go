package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"smart-ats/internal/api/handler"
	"smart-ats/internal/api/router"
	"smart-ats/internal/config"
	"smart-ats/internal/gateway"
	appCoreLogger "smart-ats/internal/logger"
	"smart-ats/internal/parser"
	"smart-ats/internal/processor"
	"smart-ats/internal/storage"
	"smart-ats/internal/tracing"
)

var version = "2.0.0" //nolint:gochecknoglobals

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "Path to config file")
	pflag.Parse()

	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}

	logCloser, err := appCoreLogger.Init(appCoreLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
		FilePath:     cfg.Logger.FilePath,
	})
	if err != nil {
		glog.Fatalf("初始化日志失败: %v", err)
	}
	defer logCloser.Close()
	glog.SetLogger(hertzadapter.From(appCoreLogger.Logger))
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing, version)
	if err != nil {
		glog.Fatalf("初始化链路追踪失败: %v", err)
	}

	storageManager, err := storage.NewStorage(ctx, cfg, appCoreLogger.Component("storage"))
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	gwOpts := []gateway.Option{gateway.WithLogger(appCoreLogger.Component("gateway"))}
	if storageManager.Audit != nil {
		gwOpts = append(gwOpts, gateway.WithRecorder(storageManager.Audit))
	}
	gw := gateway.NewFromConfig(cfg.Providers, gwOpts...)
	glog.Info("AI网关初始化成功")

	extractor, err := processor.BuildExtractor(ctx, cfg.Extractor, appCoreLogger.Component("extractor"))
	if err != nil {
		glog.Fatalf("创建文本提取器失败: %v", err)
	}

	resumeParser := parser.NewResumeParser(gw, parser.WithStageLogger(appCoreLogger.Component("parser")))
	serviceOpts := []processor.ServiceOption{
		processor.WithResumeParser(resumeParser),
		processor.WithPipelineTimeout(cfg.PipelineTimeout()),
		processor.WithAllowedExtensions(cfg.Upload.AllowedExtensions),
		processor.WithDefaultMode(cfg.Pipeline.DefaultMode),
		processor.WithServiceLogger(appCoreLogger.Component("service")),
	}

	var warmer *processor.CacheWarmer
	var pending func() int
	if cfg.Warming.Enabled {
		warmerOpts := []processor.WarmerOption{
			processor.WithWorkers(cfg.Warming.Workers),
			processor.WithQueueSize(cfg.Warming.QueueSize),
			processor.WithTaskTimeout(cfg.WarmTaskTimeout()),
			processor.WithWarmerLogger(appCoreLogger.Component("warmer")),
		}
		if storageManager.Redis != nil {
			warmerOpts = append(warmerOpts, processor.WithWarmLocker(storageManager.Redis))
		}
		warmer = processor.NewCacheWarmer(resumeParser, storageManager.Sessions, warmerOpts...)
		pending = warmer.Pending

		var submitter processor.WarmSubmitter = warmer
		if storageManager.RabbitMQ != nil {
			transport, err := processor.NewAMQPWarmTransport(storageManager.RabbitMQ, cfg.RabbitMQ, warmer, appCoreLogger.Component("warm-amqp"))
			if err != nil {
				glog.Fatalf("初始化预热队列失败: %v", err)
			}
			if err := transport.Start(ctx); err != nil {
				glog.Fatalf("启动预热消费者失败: %v", err)
			}
			submitter = transport
			glog.Info("预热任务经由RabbitMQ分发")
		}
		serviceOpts = append(serviceOpts, processor.WithWarmer(submitter))
		glog.Infof("缓存预热已启用，工作线程数: %d", cfg.Warming.Workers)
	}

	service := processor.NewResumeService(gw, extractor, storageManager.Sessions, serviceOpts...)
	resumeHandler := handler.NewResumeHandler(service, gw, cfg.MaxUploadBytes(), appCoreLogger.Component("handler"))
	systemHandler := handler.NewSystemHandler(version, storageManager.Sessions, storageManager, pending)

	readTimeout, writeTimeout := cfg.ServerTimeouts()
	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		server.WithReadTimeout(readTimeout),
		server.WithWriteTimeout(writeTimeout),
		server.WithMaxRequestBodySize(int(cfg.MaxUploadBytes())+1024*1024),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	router.RegisterRoutes(h, cfg.Server, cfg.Auth, resumeHandler, systemHandler)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)
	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("服务器关闭失败: %v", err)
	}

	// 停止消费新消息后再等待本地预热任务结束
	cancel()
	if warmer != nil {
		warmer.Close()
		glog.Info("预热工作线程已停止")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		glog.Warnf("关闭链路追踪失败: %v", err)
	}
	glog.Info("优雅退出完成")
}
