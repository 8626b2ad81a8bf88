package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"smart-ats/internal/config"
	"smart-ats/internal/logger"
)

// Storage 聚合可选的外部依赖：Redis 会话缓存、RabbitMQ 预热队列、MySQL 调用审计
type Storage struct {
	Redis    *Redis
	RabbitMQ *RabbitMQ
	MySQL    *MySQL

	Sessions SessionStore
	Audit    *CallAuditRepository

	logger *zerolog.Logger
}

// NewStorage 按配置初始化依赖。配置了却连接失败的组件返回错误；
// 未配置的组件保持为 nil，会话缓存退回内存实现。
func NewStorage(ctx context.Context, cfg *config.Config, l *zerolog.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	s := &Storage{logger: logger.OrNop(l)}
	var err error

	if cfg.Cache.Backend == "redis" {
		s.logger.Info().Str("address", cfg.Redis.Address).Msg("初始化Redis...")
		if s.Redis, err = NewRedis(&cfg.Redis); err != nil {
			s.Close()
			return nil, fmt.Errorf("初始化Redis失败: %w", err)
		}
		s.Sessions = NewRedisSessionCache(s.Redis, cfg.CacheTTL(), s.logger)
	} else {
		s.Sessions = NewMemorySessionCache(cfg.CacheTTL())
	}

	if cfg.Warming.Transport == "rabbitmq" {
		s.logger.Info().Msg("初始化RabbitMQ...")
		if s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ, s.logger); err != nil {
			s.Close()
			return nil, fmt.Errorf("初始化RabbitMQ失败: %w", err)
		}
	}

	if cfg.MySQL.Host != "" {
		s.logger.Info().Str("host", cfg.MySQL.Host).Msg("初始化MySQL...")
		if s.MySQL, err = NewMySQL(&cfg.MySQL); err != nil {
			s.Close()
			return nil, fmt.Errorf("初始化MySQL失败: %w", err)
		}
		s.Audit = NewCallAuditRepository(s.MySQL, s.logger)
	}

	return s, nil
}

// Backends 返回各可选依赖的连接状态
func (s *Storage) Backends(ctx context.Context) map[string]bool {
	status := map[string]bool{
		"redis":    false,
		"rabbitmq": false,
		"mysql":    false,
	}
	if s.Redis != nil {
		status["redis"] = s.Redis.Ping(ctx) == nil
	}
	if s.RabbitMQ != nil {
		status["rabbitmq"] = !s.RabbitMQ.IsClosed()
	}
	if s.MySQL != nil {
		status["mysql"] = s.MySQL.Ping(ctx) == nil
	}
	return status
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("关闭MySQL连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("关闭Redis连接失败")
		}
	}
}
