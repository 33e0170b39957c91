package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"taxEvents/internal/config"
	"taxEvents/internal/models/dto"
	"taxEvents/internal/utils/logger/sl"

	openrouter "github.com/revrost/go-openrouter"
	"github.com/revrost/go-openrouter/jsonschema"
)

const (
	// retryCount is the number of attempts for rate-limited or dropped completions.
	retryCount int = 10
	// retryDuration is the pause between attempts.
	retryDuration time.Duration = 5 * time.Second

	horizonDays = 90
)

const defaultPrompt = `You are a research assistant for a directory of US tax professionals (EAs, CPAs, tax preparers).
Return only real, verifiable upcoming events: IRS nationwide tax forums and webinars, AICPA, NATP, NAEA and state society CPE events.
Every event must have a working registration or information URL on the organizer's own site.
Use two-letter state codes, leave city and state empty for virtual events and tag them "virtual".
Tag broadly relevant events "general_tax". Respond with JSON only.`

// ErrShuttingDown возвращается после Shutdown.
var ErrShuttingDown = errors.New("openrouter client is shutting down")

// Generator запрашивает у LLM кандидатов по строгой JSON схеме.
type Generator struct {
	logger          *slog.Logger
	cfg             *config.Config
	Client          *openrouter.Client
	mu              sync.RWMutex
	model           string
	retryDuration   time.Duration
	now             func() time.Time
	shutdownChannel chan struct{}
	shutdownOnce    sync.Once
}

// NewClient создаёт клиента OpenRouter.
func NewClient(logger *slog.Logger, cfg *config.Config) *Generator {
	op := "Openrouter.NewClient()"
	log := logger.With(slog.String("op", op))

	log.Info("creating openrouter client", slog.String("model", cfg.BotConfig.AI.ModelName))

	return newGenerator(logger, cfg, openrouter.NewClient(cfg.BotConfig.AI.AIApiToken))
}

// NewClientWithBaseURL направляет клиента на другой OpenRouter-совместимый endpoint.
func NewClientWithBaseURL(logger *slog.Logger, cfg *config.Config, baseURL string) *Generator {
	clientCfg := openrouter.DefaultConfig(cfg.BotConfig.AI.AIApiToken)
	clientCfg.BaseURL = baseURL
	return newGenerator(logger, cfg, openrouter.NewClientWithConfig(*clientCfg))
}

func newGenerator(logger *slog.Logger, cfg *config.Config, client *openrouter.Client) *Generator {
	return &Generator{
		logger:          logger,
		cfg:             cfg,
		Client:          client,
		model:           cfg.BotConfig.AI.ModelName,
		retryDuration:   retryDuration,
		now:             time.Now,
		shutdownChannel: make(chan struct{}),
	}
}

// Model возвращает текущую модель.
func (g *Generator) Model() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.model
}

// SetModel меняет модель до перезапуска.
func (g *Generator) SetModel(model string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.model = model
}

// GenerateEvents возвращает сырых недоверенных кандидатов. Они должны пройти нормализатор.
func (g *Generator) GenerateEvents(ctx context.Context) ([]dto.RawEvent, error) {
	op := "openrouter.GenerateEvents()"
	log := g.logger.With(slog.String("op", op), slog.String("model", g.Model()))

	ctx, cancel := context.WithTimeout(ctx, g.cfg.BotConfig.AI.GetTimeout())
	defer cancel()

	var responseSchema dto.EventsStructuredResponseSchema
	schema, err := jsonschema.GenerateSchemaForType(responseSchema)
	if err != nil {
		return nil, fmt.Errorf("%s: GenerateSchemaForType error: %w", op, err)
	}

	request := openrouter.ChatCompletionRequest{
		Model: g.Model(),
		Messages: []openrouter.ChatCompletionMessage{
			openrouter.SystemMessage(g.prompt()),
			openrouter.UserMessage(g.userMessage()),
		},
		MaxTokens:   g.cfg.BotConfig.AI.MaxTokens,
		Temperature: g.cfg.BotConfig.AI.Temperature,
		ResponseFormat: &openrouter.ChatCompletionResponseFormat{
			Type: "json_schema",
			JSONSchema: &openrouter.ChatCompletionResponseFormatJSONSchema{
				Name:   "eventsStructuredResponseSchema",
				Strict: true,
				Schema: schema,
			},
		},
	}

	var resp openrouter.ChatCompletionResponse
	for retry := range retryCount {
		select {
		case <-g.shutdownChannel:
			return nil, ErrShuttingDown
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		default:
		}

		resp, err = g.Client.CreateChatCompletion(ctx, request)
		if err != nil && (isRateLimitError(err) || isEOFError(err)) {
			log.Warn("AI completion error, retrying", sl.Err(err), slog.Int("retry", retry))
			select {
			case <-time.After(g.retryDuration):
			case <-ctx.Done():
				return nil, fmt.Errorf("%s: %w", op, ctx.Err())
			}
			continue
		}
		break
	}
	if err != nil {
		return nil, fmt.Errorf("%s: AI completion failed: %w", op, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: empty AI response", op)
	}

	cleanedResponse := cleanJSONResponse(resp.Choices[0].Message.Content.Text)
	if err := json.Unmarshal([]byte(cleanedResponse), &responseSchema); err != nil {
		log.Error("error unmarshal response", sl.Err(err), slog.String("response", cleanedResponse))
		return nil, fmt.Errorf("%s: unmarshal error: %w", op, err)
	}

	events := responseSchema.Events
	if limit := g.cfg.BotConfig.AI.MaxEvents; limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	log.Info("AI candidates received", slog.Int("count", len(events)))
	return events, nil
}

func (g *Generator) prompt() string {
	if p := strings.TrimSpace(g.cfg.BotConfig.AI.SystemRolePrompt); p != "" {
		return p
	}
	return defaultPrompt
}

func (g *Generator) userMessage() string {
	today := g.now().UTC()
	return fmt.Sprintf(`Today is %s.
List up to %d upcoming events for US tax professionals between %s and %s.
For each event give title, description, startDate, endDate, city, state, url, organizer and tags.`,
		today.Format("2006-01-02"),
		g.cfg.BotConfig.AI.MaxEvents,
		today.Format("2006-01-02"),
		today.AddDate(0, 0, horizonDays).Format("2006-01-02"),
	)
}

// isRateLimitError ищет 429 в тексте ошибки: клиент не отдаёт код статуса.
func isRateLimitError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "429")
}

func isEOFError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "EOF")
}

// cleanJSONResponse убирает markdown и текст вокруг первого JSON объекта.
func cleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)

	if after, ok := strings.CutPrefix(response, "```json"); ok {
		response = after
	} else if after, ok := strings.CutPrefix(response, "```"); ok {
		response = after
	}
	response = strings.TrimSpace(response)

	startIdx := strings.Index(response, "{")
	if startIdx == -1 {
		return response
	}

	depth := 0
	inString := false
	escaped := false
	for i := startIdx; i < len(response); i++ {
		c := response[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return response[startIdx : i+1]
			}
		}
	}

	return response
}

// Shutdown прекращает новые генерации. Текущий вызов завершится со своим контекстом.
func (g *Generator) Shutdown(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("force exit AI client: %w", ctx.Err())
	default:
		g.shutdownOnce.Do(func() { close(g.shutdownChannel) })
		return nil
	}
}
