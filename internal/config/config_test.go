package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644), "无法写入临时配置文件")
	return configPath
}

// TestLoadConfigFromFileOnlyAppliesDefaults 验证未配置的字段会被填充默认值
func TestLoadConfigFromFileOnlyAppliesDefaults(t *testing.T) {
	configPath := writeTempConfig(t, `
server:
  address: ":9000"
providers:
  ollama:
    base_url: "http://ollama.local:11434"
`)

	cfg, err := LoadConfigFromFileOnly(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, "http://ollama.local:11434", cfg.Providers.Ollama.BaseURL)
	assert.Equal(t, 300, cfg.Providers.Ollama.TimeoutSeconds, "Ollama 默认超时应为300秒")
	assert.Equal(t, 2, cfg.Providers.Ollama.MaxRetries, "Ollama 默认重试2次")
	assert.Equal(t, 3, cfg.Providers.OpenAI.MaxRetries, "托管服务默认重试3次")
	assert.Equal(t, 3, cfg.Providers.Gemini.MaxRetries)
	assert.Equal(t, 3, cfg.Providers.Claude.MaxRetries)
	assert.Equal(t, 4096, cfg.Providers.Claude.MaxTokens)
	assert.Equal(t, 0.7, cfg.Providers.OpenAI.Temperature)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 30*time.Minute, cfg.CacheTTL())
	assert.Equal(t, 2, cfg.Warming.Workers)
	assert.Equal(t, time.Duration(0), cfg.PipelineTimeout(), "默认不设置流水线超时")
	assert.Equal(t, int64(10*1024*1024), cfg.MaxUploadBytes())
	assert.ElementsMatch(t, []string{"pdf", "docx"}, cfg.Upload.AllowedExtensions)
}

// TestLoadConfigEnvOverrides 验证环境变量覆盖文件配置
func TestLoadConfigEnvOverrides(t *testing.T) {
	configPath := writeTempConfig(t, `
providers:
  openai:
    api_key: "from-file"
`)
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("OLLAMA_TIMEOUT", "42")
	t.Setenv("SMART_ATS_API_KEYS", "k1, k2 ,")

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Providers.OpenAI.APIKey)
	assert.Equal(t, 42, cfg.Providers.Ollama.TimeoutSeconds)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Auth.APIKeys)

	fileOnly, err := LoadConfigFromFileOnly(configPath)
	require.NoError(t, err)
	assert.Equal(t, "from-file", fileOnly.Providers.OpenAI.APIKey, "LoadConfigFromFileOnly 不应读取环境变量")
}

// TestLoadConfigRejectsInvalidEnums 验证非法枚举值会被拒绝
func TestLoadConfigRejectsInvalidEnums(t *testing.T) {
	cases := map[string]string{
		"unknown cache backend": "cache:\n  backend: memcached\n",
		"redis without address": "cache:\n  backend: redis\n",
		"bad ttl":               "cache:\n  ttl: soon\n",
		"rabbitmq without url":  "warming:\n  transport: rabbitmq\n",
		"tika without url":      "extractor:\n  type: tika\n",
		"unknown mode":          "pipeline:\n  default_mode: turbo\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfigFromFileOnly(writeTempConfig(t, content))
			assert.Error(t, err)
		})
	}
}

// TestLoadConfigMissingFile 验证显式指定的文件不存在时报错
func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = LoadConfigFromFileOnly("")
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "fast", cfg.Pipeline.DefaultMode)
	assert.Equal(t, "eino", cfg.Extractor.Type)
	read, write := cfg.ServerTimeouts()
	assert.Equal(t, time.Minute, read)
	assert.Equal(t, 15*time.Minute, write)
}
