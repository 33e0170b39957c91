package sites

import (
	"context"

	"taxEvents/internal/config"
	"taxEvents/internal/models/dto"
)

// ScrapeFunc определяет сигнатуру функции скрапинга.
// Принимает контекст и сайт, возвращает сырых кандидатов.
type ScrapeFunc func(ctx context.Context, site config.SiteConfig, shutdownChan <-chan struct{}) ([]dto.RawEvent, error)
