package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/example/studyflow/internal/apperr"
	"github.com/example/studyflow/internal/engine"
	"github.com/example/studyflow/internal/grading"
	"github.com/example/studyflow/internal/session"
	"github.com/example/studyflow/internal/unlock"
	"github.com/example/studyflow/pkg/models"
)

// Constants for callback data
const (
	callbackLessons  = "lessons"
	callbackProgress = "progress"
	prefixLearn      = "learn:"
	prefixResume     = "resume:"
	prefixRestart    = "restart:"
	prefixAnswer     = "ans:"
)

var outcomeCodes = map[string]grading.Outcome{"k": grading.Know, "f": grading.Fuzzy, "x": grading.Forget}

var phaseLabels = map[session.Phase]string{
	session.YesterdayReview:  "review of earlier items",
	session.YesterdayRemedy:  "fixing earlier mistakes",
	session.TodayLearning:    "new items",
	session.TodayMiniReview:  "quick review",
	session.TodayFinalReview: "final review",
	session.TodayRemedy:      "fixing today's mistakes",
}

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	if message == nil || message.From == nil || message.Chat == nil {
		return errors.New("invalid message: required fields are missing")
	}
	user := userID(message.From)
	chatID := message.Chat.ID
	args := strings.TrimSpace(message.CommandArguments())

	switch message.Command() {
	case "start":
		return b.handleStart(ctx, message)
	case "help":
		return b.handleHelp(ctx, chatID)
	case "lessons":
		return b.handleLessons(ctx, user, chatID)
	case "learn":
		id, err := lessonArg(args)
		if err != nil {
			return b.reply(ctx, chatID, "Usage: /learn <lesson number>")
		}
		return b.startLesson(ctx, user, chatID, id, false)
	case "restart":
		id, err := lessonArg(args)
		if err != nil {
			return b.reply(ctx, chatID, "Usage: /restart <lesson number>")
		}
		return b.startLesson(ctx, user, chatID, id, true)
	case "resume":
		return b.handleResume(ctx, user, chatID)
	case "progress":
		return b.handleProgress(ctx, user, chatID)
	case "notify":
		return b.handleNotify(ctx, user, chatID, args)
	case "skip":
		return b.handleSkip(ctx, user, chatID, args)
	default:
		return b.reply(ctx, chatID, "Unknown command. Use /help to see the commands.")
	}
}

// HandleCallback handles inline keyboard presses
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	if callback == nil || callback.Message == nil || callback.Message.Chat == nil || callback.From == nil {
		return errors.New("invalid callback data: required fields are missing")
	}

	// Always answer the callback query to remove the loading state
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.logger.Warn("failed to answer callback", "error", err)
	}

	user := userID(callback.From)
	chatID := callback.Message.Chat.ID
	data := callback.Data

	switch {
	case data == callbackLessons:
		return b.handleLessons(ctx, user, chatID)
	case data == callbackProgress:
		return b.handleProgress(ctx, user, chatID)
	case strings.HasPrefix(data, prefixLearn):
		return b.withLesson(ctx, chatID, data, prefixLearn, func(id int) error {
			return b.startLesson(ctx, user, chatID, id, false)
		})
	case strings.HasPrefix(data, prefixRestart):
		return b.withLesson(ctx, chatID, data, prefixRestart, func(id int) error {
			return b.startLesson(ctx, user, chatID, id, true)
		})
	case strings.HasPrefix(data, prefixResume):
		return b.withLesson(ctx, chatID, data, prefixResume, func(id int) error {
			return b.showNext(ctx, user, chatID, id)
		})
	case strings.HasPrefix(data, prefixAnswer):
		return b.handleAnswer(ctx, user, chatID, data)
	default:
		return b.reply(ctx, chatID, "⚠️ Unknown action")
	}
}

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) error {
	user := models.User{
		ID:                  userID(message.From),
		ChatID:              message.Chat.ID,
		Username:            message.From.UserName,
		NotificationEnabled: true,
	}
	if err := b.users.Register(ctx, user); err != nil {
		return errors.Wrap(err, "failed to register user")
	}

	text := "👋 Welcome!\n\n" +
		"Lessons start with letters. Finish them to unlock words, then sentences and articles.\n" +
		"Each card asks you to recall an item; answer honestly with Know, Fuzzy or Forget " +
		"and reviews are scheduled for you."

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	return b.send(ctx, msg)
}

func (b *Bot) handleHelp(ctx context.Context, chatID int64) error {
	text := "📖 Commands\n\n" +
		"/lessons - list lessons and what is unlocked\n" +
		"/learn <n> - start lesson n\n" +
		"/resume - continue where you stopped\n" +
		"/restart <n> - start lesson n over\n" +
		"/progress - your statistics\n" +
		"/skip <item> - never show an item again\n" +
		"/notify on|off - review reminders"
	return b.reply(ctx, chatID, text)
}

// MainMenuButtons returns the main menu layout
func (b *Bot) MainMenuButtons() [][]MenuButton {
	return [][]MenuButton{
		{{Text: "📚 Lessons", CallbackData: callbackLessons}},
		{{Text: "📊 Progress", CallbackData: callbackProgress}},
	}
}

func (b *Bot) handleLessons(ctx context.Context, user string, chatID int64) error {
	info, err := b.engine.Unlocks(ctx, user)
	if err != nil {
		return err
	}

	var text strings.Builder
	text.WriteString("📚 Lessons\n")
	var rows [][]MenuButton
	for _, l := range b.engine.Lessons().All() {
		title := l.Title
		if title == "" {
			title = fmt.Sprintf("%s lesson", l.Module)
		}
		if !unlock.Allows(info, l.Module) {
			fmt.Fprintf(&text, "\n🔒 %d. %s", l.ID, title)
			continue
		}
		fmt.Fprintf(&text, "\n%d. %s", l.ID, title)
		rows = append(rows, []MenuButton{{Text: fmt.Sprintf("%d. %s", l.ID, title), CallbackData: fmt.Sprintf("%s%d", prefixLearn, l.ID)}})
	}

	msg := tgbotapi.NewMessage(chatID, text.String())
	if len(rows) > 0 {
		msg.ReplyMarkup = createKeyboard(rows)
	}
	return b.send(ctx, msg)
}

func (b *Bot) startLesson(ctx context.Context, user string, chatID int64, lessonID int, restart bool) error {
	_, err := b.engine.StartSession(ctx, user, lessonID, restart)
	switch {
	case errors.Is(err, apperr.ErrInvariantViolation):
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("You have lesson %d in progress.", lessonID))
		msg.ReplyMarkup = createKeyboard([][]MenuButton{{
			{Text: "▶️ Resume", CallbackData: fmt.Sprintf("%s%d", prefixResume, lessonID)},
			{Text: "🔄 Start over", CallbackData: fmt.Sprintf("%s%d", prefixRestart, lessonID)},
		}})
		return b.send(ctx, msg)
	case errors.Is(err, apperr.ErrNotFound):
		return b.reply(ctx, chatID, fmt.Sprintf("There is no lesson %d.", lessonID))
	case errors.Is(err, apperr.ErrInvalidInput):
		return b.reply(ctx, chatID, fmt.Sprintf("🔒 Lesson %d is locked. Keep practising the earlier lessons.", lessonID))
	case err != nil:
		return err
	}
	return b.showNext(ctx, user, chatID, lessonID)
}

func (b *Bot) handleResume(ctx context.Context, user string, chatID int64) error {
	snap, err := b.engine.LiveSession(ctx, user)
	if err != nil {
		return err
	}
	if snap == nil {
		return b.reply(ctx, chatID, "Nothing to resume. Pick a lesson with /lessons.")
	}
	return b.showNext(ctx, user, chatID, snap.LessonID)
}

// showNext sends the card for the next item, or the completion message
func (b *Bot) showNext(ctx context.Context, user string, chatID int64, lessonID int) error {
	next, err := b.engine.GetNextItem(ctx, user, lessonID)
	if errors.Is(err, apperr.ErrNotFound) {
		return b.reply(ctx, chatID, fmt.Sprintf("Lesson %d has not been started. Use /learn %d.", lessonID, lessonID))
	}
	if err != nil {
		return err
	}
	if next == nil {
		return b.lessonFinished(ctx, user, chatID, lessonID)
	}

	text := fmt.Sprintf("📘 Lesson %d · round %d · %s\n\n%s", lessonID, next.Round, phaseLabels[next.Phase], next.Content.Prompt)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard([][]MenuButton{{
		{Text: "✅ Know", CallbackData: answerData("k", lessonID, next)},
		{Text: "🤔 Fuzzy", CallbackData: answerData("f", lessonID, next)},
		{Text: "❌ Forget", CallbackData: answerData("x", lessonID, next)},
	}})
	return b.send(ctx, msg)
}

func (b *Bot) lessonFinished(ctx context.Context, user string, chatID int64, lessonID int) error {
	info, err := b.engine.Unlocks(ctx, user)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("🎉 Lesson %d complete!\n\n%s", lessonID, unlockSummary(info))
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	return b.send(ctx, msg)
}

func (b *Bot) handleAnswer(ctx context.Context, user string, chatID int64, data string) error {
	code, lessonID, attempt, itemID, err := parseAnswerData(data)
	if err != nil {
		return b.reply(ctx, chatID, "⚠️ Unknown action")
	}

	res, err := b.engine.SubmitAnswer(ctx, user, itemID, outcomeCodes[code], attempt)
	if errors.Is(err, apperr.ErrInvalidInput) || errors.Is(err, apperr.ErrNotFound) {
		if err := b.reply(ctx, chatID, "This card is no longer current."); err != nil {
			return err
		}
		return b.showNext(ctx, user, chatID, lessonID)
	}
	if err != nil {
		return err
	}

	item, err := b.engine.Item(ctx, itemID)
	if err != nil {
		return err
	}
	feedback := fmt.Sprintf("%s → %s\nNext review %s.", item.Prompt, item.Answer, res.NextReviewAt.Format("Jan 2"))
	if res.Evaluation != nil {
		feedback += "\n\n" + evaluationSummary(*res.Evaluation)
	}
	if err := b.reply(ctx, chatID, feedback); err != nil {
		return err
	}
	return b.showNext(ctx, user, chatID, lessonID)
}

func (b *Bot) handleProgress(ctx context.Context, user string, chatID int64) error {
	stats, err := b.engine.Stats(ctx, user)
	if err != nil {
		return err
	}
	info, err := b.engine.Unlocks(ctx, user)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("📊 Progress\n\n"+
		"Items studied: %d\n"+
		"Due today: %d\n"+
		"Remembered: %d · fuzzy: %d · unfamiliar: %d\n"+
		"Skipped: %d\n"+
		"Lessons completed: %d\n\n%s",
		stats.TotalItems, stats.DueToday,
		stats.ByMastery[models.MasteryRemembered], stats.ByMastery[models.MasteryFuzzy], stats.ByMastery[models.MasteryUnfamiliar],
		stats.Skipped, stats.CompletedCount, unlockSummary(info))
	return b.reply(ctx, chatID, text)
}

func (b *Bot) handleNotify(ctx context.Context, user string, chatID int64, args string) error {
	var enabled bool
	switch strings.ToLower(args) {
	case "on":
		enabled = true
	case "off":
	default:
		return b.reply(ctx, chatID, "Usage: /notify on|off")
	}
	err := b.users.SetNotifications(ctx, user, enabled)
	if errors.Is(err, apperr.ErrNotFound) {
		return b.reply(ctx, chatID, "Send /start first.")
	}
	if err != nil {
		return err
	}
	return b.reply(ctx, chatID, fmt.Sprintf("🔔 Reminders %s.", boolToEnabledString(enabled)))
}

func (b *Bot) handleSkip(ctx context.Context, user string, chatID int64, itemID string) error {
	if itemID == "" {
		return b.reply(ctx, chatID, "Usage: /skip <item>")
	}
	err := b.engine.SkipItem(ctx, user, itemID)
	if errors.Is(err, apperr.ErrNotFound) {
		return b.reply(ctx, chatID, fmt.Sprintf("Unknown item %q.", itemID))
	}
	if err != nil {
		return err
	}
	return b.reply(ctx, chatID, fmt.Sprintf("⏭ %s will not be scheduled again.", itemID))
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) error {
	return b.send(ctx, tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) withLesson(ctx context.Context, chatID int64, data, prefix string, fn func(int) error) error {
	id, err := lessonArg(strings.TrimPrefix(data, prefix))
	if err != nil {
		return b.reply(ctx, chatID, "⚠️ Unknown action")
	}
	return fn(id)
}

func lessonArg(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid lesson %q", s)
	}
	return id, nil
}

// answerData encodes an answer button as ans:<code>:<lesson>:<attempt>:<item>.
// Telegram limits callback data to 64 bytes.
func answerData(code string, lessonID int, next *engine.NextItem) string {
	return fmt.Sprintf("%s%s:%d:%d:%s", prefixAnswer, code, lessonID, next.Attempt, next.Item.ID)
}

func parseAnswerData(data string) (code string, lessonID, attempt int, itemID string, err error) {
	parts := strings.SplitN(strings.TrimPrefix(data, prefixAnswer), ":", 4)
	if len(parts) != 4 || parts[3] == "" {
		return "", 0, 0, "", errors.Errorf("malformed answer %q", data)
	}
	if _, ok := outcomeCodes[parts[0]]; !ok {
		return "", 0, 0, "", errors.Errorf("unknown outcome code %q", parts[0])
	}
	if lessonID, err = lessonArg(parts[1]); err != nil {
		return "", 0, 0, "", err
	}
	if attempt, err = strconv.Atoi(parts[2]); err != nil {
		return "", 0, 0, "", errors.Errorf("invalid attempt %q", parts[2])
	}
	return parts[0], lessonID, attempt, parts[3], nil
}

func evaluationSummary(eval models.RoundEvaluation) string {
	verdict := "The round will be repeated."
	if eval.Promote {
		verdict = "Well done!"
	}
	return fmt.Sprintf("Round %d: %.0f%% correct in the final review. %s", eval.Round, eval.PassRate*100, verdict)
}

func unlockSummary(info models.UnlockInfo) string {
	return fmt.Sprintf("Letters: %.0f%% · words %s · sentences %s · articles %s",
		info.LetterProgress*100, lockIcon(info.WordUnlocked), lockIcon(info.SentenceUnlocked), lockIcon(info.ArticleUnlocked))
}

func lockIcon(unlocked bool) string {
	if unlocked {
		return "🔓"
	}
	return "🔒"
}

func boolToEnabledString(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
