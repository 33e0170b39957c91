package scraper

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
	"taxEvents/internal/scraper/sites"
	"taxEvents/internal/utils/logger/sl"

	"github.com/google/uuid"
)

var (
	ErrShuttingDown = errors.New("service is shutting down")
	ErrBufferFull   = errors.New("job buffer is full")
	ErrUnknownSite  = errors.New("site is not configured")
)

// Ingestor определяет интерфейс приёма записей.
type Ingestor interface {
	Ingest(ctx context.Context, records []dto.RawEvent, opts ingestion.Options) (domain.IngestResult, []normalizer.Rejection)
}

// Job представляет задачу, передаваемую в воркер.
type Job struct {
	requestID uuid.UUID
	site      config.SiteConfig
	Done      chan struct{}
}

// Scraper разбирает страницы со списками событий пулом воркеров и передаёт их в приём как curated.
type Scraper struct {
	logger          *slog.Logger
	cfg             *config.Config
	ingestor        Ingestor
	scrape          sites.ScrapeFunc
	sites           map[string]config.SiteConfig
	jobs            chan Job
	shutdownChannel chan struct{}
	shutdownOnce    sync.Once
	wg              *sync.WaitGroup
}

// New создаёт новый экземпляр Scraper.
func New(logger *slog.Logger, cfg *config.Config, ingestor Ingestor) *Scraper {
	op := "Scraper.New()"
	log := logger.With(slog.String("op", op))

	s := &Scraper{
		logger:          logger,
		cfg:             cfg,
		ingestor:        ingestor,
		scrape:          sites.ScrapeListing,
		sites:           make(map[string]config.SiteConfig, len(cfg.ScraperConfig.Sites)),
		jobs:            make(chan Job, cfg.ScraperConfig.JobBufferSize),
		shutdownChannel: make(chan struct{}),
		wg:              &sync.WaitGroup{},
	}
	for _, site := range cfg.ScraperConfig.Sites {
		s.sites[site.Name] = site
	}

	log.Info("creating scraper", slog.Int("sites", len(s.sites)))
	return s
}

// Start запускает воркеры и блокируется до их завершения.
func (s *Scraper) Start() {
	op := "Scraper.Start()"
	log := s.logger.With(slog.String("op", op))

	workers := s.cfg.ScraperConfig.WorkersCount
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.handleJob(i)
	}
	log.Info("scraper service started", slog.Int("workers", workers))

	s.wg.Wait()
}

// AddJob добавляет джобу для сайта siteName и возвращает её канал Done.
func (s *Scraper) AddJob(requestID uuid.UUID, siteName string) (chan struct{}, error) {
	site, ok := s.sites[siteName]
	if !ok {
		return nil, fmt.Errorf("%s: %w", siteName, ErrUnknownSite)
	}

	newJob := Job{
		requestID: requestID,
		site:      site,
		Done:      make(chan struct{}),
	}
	select {
	case <-s.shutdownChannel:
		return nil, ErrShuttingDown
	default:
	}
	select {
	case s.jobs <- newJob:
		return newJob.Done, nil
	default:
		return nil, ErrBufferFull
	}
}

// ScrapeAll ставит в очередь все настроенные сайты.
func (s *Scraper) ScrapeAll() []chan struct{} {
	op := "Scraper.ScrapeAll()"
	log := s.logger.With(slog.String("op", op))

	var done []chan struct{}
	for name := range s.sites {
		ch, err := s.AddJob(uuid.New(), name)
		if err != nil {
			log.Warn("site not queued", slog.String("site", name), sl.Err(err))
			continue
		}
		done = append(done, ch)
	}
	return done
}

func (s *Scraper) handleJob(id int) {
	defer s.wg.Done()
	op := "Scraper.handleJob()"
	log := s.logger.With(slog.String("op", op), slog.Int("workerId", id))

	log.Info("start scraper job handler")

	for {
		select {
		case <-s.shutdownChannel:
			return
		case job := <-s.jobs:
			s.process(log, job)
			close(job.Done)
		}
	}
}

func (s *Scraper) process(log *slog.Logger, job Job) {
	joblog := log.With(
		slog.String("requestID", job.requestID.String()),
		slog.String("site", job.site.Name),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.ScraperConfig.Timeout)*time.Second)
	defer cancel()

	records, err := s.scrape(ctx, job.site, s.shutdownChannel)
	if err != nil {
		joblog.Error("scraping failed", sl.Err(err))
		return
	}

	result, rejections := s.ingestor.Ingest(ctx, records, ingestion.Options{Source: domain.SourceCurated})
	for _, r := range rejections {
		joblog.Debug("scraped record rejected", slog.String("title", r.Title), slog.String("reason", string(r.Reason)))
	}

	joblog.Info("scraping completed",
		slog.Int("found", len(records)),
		slog.Int("inserted", result.Inserted),
		slog.Int("updated", result.Updated),
		slog.Int("rejected", result.Rejected),
		slog.Int("errors", result.Errors),
	)
}

// Shutdown останавливает воркеры.
func (s *Scraper) Shutdown(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("force exit scraper: %w", ctx.Err())
	default:
		s.shutdownOnce.Do(func() { close(s.shutdownChannel) })
		return nil
	}
}
