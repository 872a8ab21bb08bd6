// Package bot is the Telegram front-end. It translates chat commands and
// button presses into engine calls and renders the results as plain text.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/example/studyflow/internal/engine"
	"github.com/example/studyflow/pkg/models"
)

// API is the subset of *tgbotapi.BotAPI the bot uses
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// UserStore registers chat users and their reminder preference
type UserStore interface {
	Register(ctx context.Context, user models.User) error
	SetNotifications(ctx context.Context, id string, enabled bool) error
}

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// Bot represents the Telegram bot application
type Bot struct {
	api     API
	engine  *engine.Engine
	users   UserStore
	config  BotConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewAPI connects to Telegram with token
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is not set")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create bot")
	}
	return api, nil
}

// New creates a new bot instance
func New(api API, eng *engine.Engine, users UserStore, config BotConfig, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &Bot{
		api:     api,
		engine:  eng,
		users:   users,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.MessagesPerSecond), max(config.Burst, 1)),
		logger:  logger,
	}
}

// Start receives updates until ctx is cancelled, then waits for the
// handlers in flight.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.config.UpdateTimeout
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Info("bot started", "workers", b.config.Workers)

	var g errgroup.Group
	g.SetLimit(b.config.Workers)
	defer func() {
		b.api.StopReceivingUpdates()
		g.Wait()
		b.logger.Info("bot stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			g.Go(func() error {
				b.HandleUpdate(ctx, update)
				return nil
			})
		}
	}
}

// HandleUpdate dispatches one update. Failures are logged and reported to
// the chat.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	var (
		err    error
		chatID int64
	)
	switch {
	case update.CallbackQuery != nil:
		if update.CallbackQuery.Message != nil {
			chatID = update.CallbackQuery.Message.Chat.ID
		}
		err = b.HandleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		chatID = update.Message.Chat.ID
		err = b.HandleCommand(ctx, update.Message)
	case update.Message != nil:
		chatID = update.Message.Chat.ID
		err = b.send(ctx, tgbotapi.NewMessage(chatID, "I don't understand. Use /help to see the commands."))
	default:
		return
	}
	if err == nil {
		return
	}

	b.logger.Error("failed to handle update", "update_id", update.UpdateID, "error", err)
	if chatID != 0 {
		if sendErr := b.send(ctx, tgbotapi.NewMessage(chatID, "❌ Something went wrong. Please try again later.")); sendErr != nil {
			b.logger.Warn("failed to report error", "chat_id", chatID, "error", sendErr)
		}
	}
}

// send delivers c within the outbound rate budget
func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := b.api.Send(c); err != nil {
		return errors.Wrap(err, "failed to send message")
	}
	return nil
}

// SendReminder implements scheduler.Notifier
func (b *Bot) SendReminder(ctx context.Context, user models.User, due int) error {
	if user.ChatID == 0 {
		return errors.Errorf("user %s has no chat", user.ID)
	}
	noun := "items"
	if due == 1 {
		noun = "item"
	}
	msg := tgbotapi.NewMessage(user.ChatID, fmt.Sprintf("⏰ You have %d %s due for review. Send /lessons to continue.", due, noun))
	msg.ReplyMarkup = createKeyboard([][]MenuButton{{{Text: "📚 Lessons", CallbackData: callbackLessons}}})
	if err := b.send(ctx, msg); err != nil {
		return err
	}
	b.logger.Info("reminder sent", "user_id", user.ID, "due", due)
	return nil
}

func userID(u *tgbotapi.User) string {
	return strconv.FormatInt(u.ID, 10)
}
