package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"taxEvents/internal/config"
	"taxEvents/internal/ingestion"
	"taxEvents/internal/models/domain"
	"taxEvents/internal/models/dto"
	"taxEvents/internal/normalizer"
	"taxEvents/internal/utils/logger/sl"
)

// ErrGeneratorDisabled возвращается, если генерация через LLM не настроена.
var ErrGeneratorDisabled = errors.New("AI generation is not configured")

// Generator определяет интерфейс получения кандидатов от LLM.
type Generator interface {
	GenerateEvents(ctx context.Context) ([]dto.RawEvent, error)
}

// Ingestor определяет интерфейс приёма записей.
type Ingestor interface {
	Ingest(ctx context.Context, records []dto.RawEvent, opts ingestion.Options) (domain.IngestResult, []normalizer.Rejection)
}

// Scraper ставит в очередь все настроенные сайты и возвращает их каналы Done.
type Scraper interface {
	ScrapeAll() []chan struct{}
}

// Validator определяет интерфейс пакетной перепроверки ссылок.
type Validator interface {
	Run(ctx context.Context, n int) domain.ValidationResult
}

// Orchestrator запускает генерацию, скрапинг и перепроверку по расписанию.
// Запуски независимы, медленный запуск не блокирует другие расписания.
type Orchestrator struct {
	logger       *slog.Logger
	cfg          *config.Config
	generator    Generator
	ingestor     Ingestor
	scraper      Scraper
	validator    Validator
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// New создаёт новый экземпляр Orchestrator. nil generator или scraper отключает своё расписание.
func New(logger *slog.Logger, cfg *config.Config, generator Generator, ingestor Ingestor, scraper Scraper, validator Validator) *Orchestrator {
	op := "Orchestrator.New()"
	log := logger.With(slog.String("op", op))
	log.Info("creating orchestrator")

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		logger:    logger,
		cfg:       cfg,
		generator: generator,
		ingestor:  ingestor,
		scraper:   scraper,
		validator: validator,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start запускает расписания и сразу возвращается.
func (o *Orchestrator) Start() {
	op := "Orchestrator.Start()"
	log := o.logger.With(slog.String("op", op))

	if o.generator != nil {
		o.schedule("ai_ingestion", o.cfg.IngestionConfig.Interval, func(ctx context.Context) {
			if _, _, err := o.IngestGenerated(ctx); err != nil {
				o.logger.Error("scheduled AI ingestion failed", sl.Err(err))
			}
		})
	}
	if o.scraper != nil {
		o.schedule("scraping", o.cfg.ScraperConfig.Interval, o.scrape)
	}
	if o.validator != nil {
		o.schedule("validation", o.cfg.ValidationConfig.Interval, func(ctx context.Context) {
			o.validator.Run(ctx, 0)
		})
	}

	log.Info("orchestrator started")
}

func (o *Orchestrator) schedule(name string, interval time.Duration, job func(ctx context.Context)) {
	log := o.logger.With(slog.String("op", "Orchestrator.schedule()"), slog.String("job", name))

	if interval <= 0 {
		log.Info("schedule disabled")
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info("schedule started", slog.Duration("interval", interval))
		for {
			select {
			case <-o.ctx.Done():
				return
			case <-ticker.C:
				log.Debug("scheduled run")
				job(o.ctx)
			}
		}
	}()
}

// IngestGenerated запрашивает кандидатов у LLM и сливает их как ai_generated.
func (o *Orchestrator) IngestGenerated(ctx context.Context) (domain.IngestResult, []normalizer.Rejection, error) {
	op := "Orchestrator.IngestGenerated()"
	log := o.logger.With(slog.String("op", op))

	if o.generator == nil {
		return domain.IngestResult{}, nil, ErrGeneratorDisabled
	}

	records, err := o.generator.GenerateEvents(ctx)
	if err != nil {
		return domain.IngestResult{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	result, rejections := o.ingestor.Ingest(ctx, records, ingestion.Options{Source: domain.SourceAIGenerated})
	for _, r := range rejections {
		log.Debug("generated record rejected",
			slog.Int("index", r.Index),
			slog.String("title", r.Title),
			slog.String("reason", string(r.Reason)),
		)
	}

	log.Info("AI ingestion finished",
		slog.Int("candidates", len(records)),
		slog.Int("inserted", result.Inserted),
		slog.Int("updated", result.Updated),
		slog.Int("suppressed", result.Suppressed),
		slog.Int("rejected", result.Rejected),
	)
	return result, rejections, nil
}

// scrape ставит сайты в очередь и ждёт их завершения либо остановки.
func (o *Orchestrator) scrape(ctx context.Context) {
	op := "Orchestrator.scrape()"
	log := o.logger.With(slog.String("op", op))

	chans := o.scraper.ScrapeAll()
	log.Info("waiting for scraper jobs", slog.Int("count", len(chans)))

	for _, done := range chans {
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}

	log.Info("all scraper jobs completed")
}

// Shutdown останавливает расписания и ждёт, пока задачи увидят отмену.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.shutdownOnce.Do(o.cancel)

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("force exit orchestrator: %w", ctx.Err())
	}
}
