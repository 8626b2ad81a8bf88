package processor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"smart-ats/internal/config"
	"smart-ats/internal/logger"
	"smart-ats/internal/parser"
)

// BuildExtractor 统一构建文本提取器的逻辑。
// PDF 主后端按配置选择 Tika 或 Eino，ledongthuc/pdf 作为后备；DOCX 使用 docx 解析库。
func BuildExtractor(ctx context.Context, cfg config.ExtractorConfig, l *zerolog.Logger) (*parser.DocumentExtractor, error) {
	l = logger.OrNop(l)

	var primary parser.PDFTextExtractor
	if cfg.Type == "tika" && cfg.Tika.ServerURL != "" {
		l.Info().Str("server_url", cfg.Tika.ServerURL).Msg("检测到Tika配置，正在初始化Tika PDF解析器...")
		primary = parser.NewTikaExtractor(cfg.Tika.ServerURL,
			parser.WithTimeout(time.Duration(cfg.Tika.TimeoutSeconds)*time.Second),
			parser.WithAnnotations(!cfg.Tika.SkipAnnotations),
		)
	} else {
		l.Info().Msg("使用Eino作为PDF解析器...")
		einoLogger := l.With().Str("extractor", "eino").Logger()
		eino, err := parser.NewEinoPDFTextExtractor(ctx, parser.WithEinoLogger(&einoLogger))
		if err != nil {
			return nil, err
		}
		primary = eino
	}

	return parser.NewDocumentExtractor(primary,
		parser.WithPDFFallback(parser.NewPlainPDFExtractor()),
		parser.WithDOCXExtractor(parser.NewDocxExtractor()),
		parser.WithExtractorLogger(l),
	), nil
}
