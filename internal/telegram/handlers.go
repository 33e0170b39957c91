package telegramBot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"taxEvents/internal/models/domain"
	"taxEvents/internal/utils/logger/sl"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

const (
	approvePrefix = "approve_"
	rejectPrefix  = "reject_"

	rejectNote = "rejected from telegram"
)

var errBadCallback = errors.New("unknown callback data")

func (bot *Bot) commandHandler(ctx context.Context, msg *tgbotapi.Message) error {
	op := "telegramBot.commandHandler()"
	log := bot.log.With(
		slog.String("op", op),
		slog.String("command", msg.Command()),
	)

	if msg.Command() == "start" {
		return bot.sendReplyMessage(msg, "Hi! Pending events are posted to the review chat.")
	}

	profileID, isAdmin := bot.isAdmin(msg.From)
	if !isAdmin {
		log.Warn("command from non admin user", slog.Any("user", msg.From))
		return bot.sendReplyMessage(msg, "This command is for admins only")
	}

	switch msg.Command() {
	case "pending":
		pending, err := bot.reviewer.Pending(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return bot.sendReplyMessage(msg, fmt.Sprintf("%d events are waiting for review", len(pending)))

	case "setmodel":
		model := strings.TrimSpace(msg.CommandArguments())
		if model == "" {
			return bot.sendReplyMessage(msg, "Usage: /setmodel <model>")
		}

		bot.ai.SetModel(model)
		bot.cfg.BotConfig.AI.ModelName = model

		log.Info("model changed", slog.String("model", model), slog.String("admin", profileID))

		if err := bot.cfg.Write(); err != nil {
			log.Warn("model change not persisted", sl.Err(err))
			return bot.sendReplyMessage(msg, "👍 Model changed until restart 👍")
		}
		return bot.sendReplyMessage(msg, "👍 Model changed 👍")

	case "getmodel":
		return bot.sendReplyMessage(msg, bot.ai.Model())

	default:
		return bot.sendReplyMessage(msg, "I don't know this command")
	}
}

// NotifyPending отправляет только что вставленное событие в чат модерации.
func (bot *Bot) NotifyPending(_ context.Context, event domain.Event) {
	op := "telegramBot.NotifyPending()"
	log := bot.log.With(
		slog.String("op", op),
		slog.String("event_id", event.ID.String()),
	)

	if !bot.Enabled() || bot.cfg.BotConfig.ReviewChatID == 0 {
		return
	}

	msg := tgbotapi.NewMessage(bot.cfg.BotConfig.ReviewChatID, formatEventMessage(event))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = createApprovalKeyboard(event.ID)

	if _, err := bot.tgbot.Send(msg); err != nil {
		log.Error("failed to send event to review chat", sl.Err(err))
		return
	}
	log.Debug("event sent to review chat")
}

func formatEventMessage(e domain.Event) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "<b>%s</b>\n", html.EscapeString(e.Title))
	fmt.Fprintf(&sb, "%s · %s\n\n", html.EscapeString(e.Organizer), e.Source)

	if e.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", html.EscapeString(e.Description))
	}

	date := e.StartDate.Format("Jan 2, 2006")
	if e.EndDate != nil && !e.EndDate.Equal(e.StartDate) {
		date += " – " + e.EndDate.Format("Jan 2, 2006")
	}
	fmt.Fprintf(&sb, "📅 %s\n", date)

	if e.IsVirtual() {
		sb.WriteString("📍 Virtual\n")
	} else if e.City != nil {
		fmt.Fprintf(&sb, "📍 %s, %s\n", html.EscapeString(*e.City), *e.State)
	} else {
		fmt.Fprintf(&sb, "📍 %s\n", *e.State)
	}

	if len(e.Tags) > 0 {
		fmt.Fprintf(&sb, "🏷 %s\n", html.EscapeString(strings.Join(e.Tags, ", ")))
	}

	fmt.Fprintf(&sb, "\n🔗 <a href=\"%s\">%s</a>\n", html.EscapeString(e.CandidateURL), html.EscapeString(e.CandidateURL))
	return sb.String()
}

func createApprovalKeyboard(id uuid.UUID) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", approvePrefix+id.String()),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", rejectPrefix+id.String()),
		),
	)
}

// parseCallback разбирает данные кнопок approve_<id> и reject_<id>.
func parseCallback(data string) (uuid.UUID, domain.ReviewStatus, error) {
	var (
		raw    string
		status domain.ReviewStatus
	)
	if after, ok := strings.CutPrefix(data, approvePrefix); ok {
		raw, status = after, domain.ReviewStatusApproved
	} else if after, ok := strings.CutPrefix(data, rejectPrefix); ok {
		raw, status = after, domain.ReviewStatusRejected
	} else {
		return uuid.Nil, "", fmt.Errorf("%q: %w", data, errBadCallback)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%q: %w", data, err)
	}
	return id, status, nil
}

func (bot *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	op := "telegramBot.handleCallbackQuery()"
	log := bot.log.With(
		slog.String("op", op),
		slog.String("data", callback.Data),
	)

	id, status, err := parseCallback(callback.Data)
	if err != nil {
		log.Error("bad callback", sl.Err(err))
		bot.sendCallbackResponse(callback, "Unknown action")
		return
	}

	profileID, isAdmin := bot.isAdmin(callback.From)
	if !isAdmin {
		log.Warn("callback from non admin user", slog.Any("user", callback.From))
		bot.sendCallbackResponse(callback, "Only admins can review events")
		return
	}

	notes := ""
	if status == domain.ReviewStatusRejected {
		notes = rejectNote
	}

	event, err := bot.reviewer.Decide(ctx, id, status, notes, profileID)
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		bot.sendCallbackResponse(callback, "Event no longer exists")
		bot.removeApprovalKeyboard(callback)
		return
	case errors.Is(err, domain.ErrInvalidTransition):
		bot.sendCallbackResponse(callback, "Event was already reviewed")
		bot.removeApprovalKeyboard(callback)
		return
	case err != nil:
		log.Error("review transition failed", sl.Err(err))
		bot.sendCallbackResponse(callback, "❌ Review failed, try again")
		return
	}

	log.Info("event reviewed from telegram",
		slog.String("status", string(event.ReviewStatus)),
		slog.String("reviewer", profileID),
	)

	if status == domain.ReviewStatusApproved {
		bot.sendCallbackResponse(callback, "✅ Event approved")
	} else {
		bot.sendCallbackResponse(callback, "❌ Event rejected")
	}
	bot.removeApprovalKeyboard(callback)
}

func (bot *Bot) sendCallbackResponse(callback *tgbotapi.CallbackQuery, text string) {
	callbackConfig := tgbotapi.NewCallback(callback.ID, text)
	if _, err := bot.tgbot.Request(callbackConfig); err != nil {
		bot.log.Error("failed to answer callback", sl.Err(err))
	}
}

// removeApprovalKeyboard убирает кнопки после решения.
func (bot *Bot) removeApprovalKeyboard(callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil {
		return
	}

	editMsg := tgbotapi.NewEditMessageReplyMarkup(
		callback.Message.Chat.ID,
		callback.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}},
	)
	if _, err := bot.tgbot.Request(editMsg); err != nil {
		bot.log.Error("failed to remove keyboard", sl.Err(err))
	}
}
