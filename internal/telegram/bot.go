package telegramBot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"taxEvents/internal/config"
	"taxEvents/internal/models/domain"
	"taxEvents/internal/utils/logger/sl"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

const updateTimeout = 10 * time.Second

// botAPI - часть tgbotapi.BotAPI, которой пользуется бот.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(u tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Reviewer определяет интерфейс модерации.
type Reviewer interface {
	// Decide acts only on events still waiting for review.
	Decide(ctx context.Context, id uuid.UUID, to domain.ReviewStatus, notes, reviewer string) (domain.Event, error)
	Pending(ctx context.Context) ([]domain.Event, error)
}

// ModelSwitcher - генератор, модель которого администратор меняет на лету.
type ModelSwitcher interface {
	Model() string
	SetModel(model string)
}

// Bot публикует ожидающие события в чат модерации и превращает нажатия кнопок в решения.
type Bot struct {
	log             *slog.Logger
	cfg             *config.Config
	tgbot           botAPI
	reviewer        Reviewer
	ai              ModelSwitcher
	shutdownChannel chan struct{}
	shutdownOnce    sync.Once
}

// New подключается к Telegram. Пустой токен даёт выключенный бот, который не шлёт уведомления.
func New(log *slog.Logger, cfg *config.Config, reviewer Reviewer, ai ModelSwitcher) (*Bot, error) {
	op := "telegramBot.New()"
	logger := log.With(slog.String("op", op))

	bot := &Bot{
		log:             log,
		cfg:             cfg,
		reviewer:        reviewer,
		ai:              ai,
		shutdownChannel: make(chan struct{}),
	}

	if cfg.BotConfig.TgbotApiToken == "" {
		logger.Warn("telegram token is empty, moderation bot disabled")
		return bot, nil
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotConfig.TgbotApiToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	bot.tgbot = api

	logger.Info("authorized on telegram", slog.String("account", api.Self.UserName))
	return bot, nil
}

// Enabled сообщает, подключён ли бот.
func (bot *Bot) Enabled() bool {
	return bot.tgbot != nil
}

// Start получает обновления, пока не вызван Shutdown.
func (bot *Bot) Start(timeout int) {
	op := "telegramBot.Start()"
	log := bot.log.With(slog.String("op", op))

	if !bot.Enabled() {
		return
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeout
	updates := bot.tgbot.GetUpdatesChan(u)

	log.Info("telegram bot started")

	for {
		select {
		case <-bot.shutdownChannel:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			bot.handleUpdate(&update)
		}
	}
}

func (bot *Bot) handleUpdate(update *tgbotapi.Update) {
	op := "telegramBot.handleUpdate()"
	log := bot.log.With(slog.String("op", op))

	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()

	switch {
	case update.CallbackQuery != nil:
		bot.handleCallbackQuery(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		if err := bot.commandHandler(ctx, update.Message); err != nil {
			log.Error("command failed",
				slog.String("command", update.Message.Command()),
				sl.Err(err),
			)
		}
	}
}

// isAdmin находит профиль администратора в каталоге.
func (bot *Bot) isAdmin(user *tgbotapi.User) (string, bool) {
	if user == nil {
		return "", false
	}
	return bot.cfg.BotConfig.AdminProfileID(user.UserName)
}

func (bot *Bot) sendReplyMessage(msg *tgbotapi.Message, text string) error {
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ReplyToMessageID = msg.MessageID
	if _, err := bot.tgbot.Send(reply); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

// Shutdown останавливает получение обновлений.
func (bot *Bot) Shutdown(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("force exit telegram bot: %w", ctx.Err())
	default:
		bot.shutdownOnce.Do(func() {
			close(bot.shutdownChannel)
			if bot.tgbot != nil {
				bot.tgbot.StopReceivingUpdates()
			}
		})
		return nil
	}
}
