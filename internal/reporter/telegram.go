// Package reporter sends operational notifications over Telegram.
// Entirely optional: an unconfigured reporter is simply not wired in.
package reporter

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"jobpilot/automation-service/internal/queue"
)

// Telegram notifies a chat about task outcomes and sweep summaries.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram constructs a reporter for the given bot token and chat.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// SendMessage sends an HTML-formatted message. Errors are returned but
// callers treat them as non-fatal.
func (t *Telegram) SendMessage(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "HTML"
	_, err := t.bot.Send(msg)
	return err
}

// NotifyTask implements queue.Notifier.
func (t *Telegram) NotifyTask(task *queue.Task) {
	var text string
	if task.State == queue.StateCompleted {
		text = fmt.Sprintf(
			"✅ <b>Application prepared</b>\nTask #%d for candidate %s\nForm filled — awaiting manual confirmation",
			task.ID, task.CandidateID)
	} else {
		text = fmt.Sprintf(
			"❌ <b>Application failed</b>\nTask #%d for candidate %s\nReason: %s",
			task.ID, task.CandidateID, task.FailureReason)
	}
	_ = t.SendMessage(text)
}

// NotifySweep implements scheduler.Notifier.
func (t *Telegram) NotifySweep(added, skipped, failed int) {
	_ = t.SendMessage(fmt.Sprintf(
		"📋 <b>Ingestion sweep</b>\nNew postings: %d\nDuplicates skipped: %d\nFailed searches: %d",
		added, skipped, failed))
}
