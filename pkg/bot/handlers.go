package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"agentbridge/pkg/agent/apierrors"
)

// User-facing texts. Service detail never reaches the chat; faults map to a
// short apology instead.
const (
	msgHelp = "Отправь текстовое сообщение, и я переправлю его AI Agent.\n" +
		"Команда /new завершает текущую сессию и создаёт новую."
	msgNewSession  = "Создана новая сессия. Можешь продолжить диалог с чистого листа!"
	msgEmpty       = "Похоже, сообщение пустое. Попробуй ещё раз."
	msgFault       = "Не удалось получить ответ от AI Agent. Попробуй чуть позже."
	msgRateLimited = "AI Agent сейчас перегружен. Подожди немного и попробуй снова."
	msgUnknownCmd  = "Я не знаю такую команду. Попробуй /help."
)

func greeting(firstName string) string {
	if firstName == "" {
		firstName = "друг"
	}
	return fmt.Sprintf(
		"Привет, %s! Я подключен к AI Agent.\n"+
			"Напиши сообщение, и я передам его агенту.\n"+
			"Используй /new чтобы начать новый диалог.", firstName)
}

// faultMessage maps an agent-layer failure to a user-facing apology.
func faultMessage(err error) string {
	if apierrors.IsRateLimited(err) {
		return msgRateLimited
	}
	return msgFault
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout*2)
	defer cancel()

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.forward(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		if _, err := b.ensureSession(ctx, chatID); err != nil {
			b.logger.Error("start failed for chat %d: %v", chatID, err)
			b.reply(chatID, faultMessage(err))
			return
		}
		name := ""
		if msg.From != nil {
			name = msg.From.FirstName
		}
		b.reply(chatID, greeting(name))
	case "new":
		if _, err := b.resetSession(ctx, chatID); err != nil {
			b.logger.Error("session reset failed for chat %d: %v", chatID, err)
			b.reply(chatID, faultMessage(err))
			return
		}
		b.reply(chatID, msgNewSession)
	case "help":
		b.reply(chatID, msgHelp)
	default:
		b.reply(chatID, msgUnknownCmd)
	}
}

func (b *Bot) forward(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		b.reply(chatID, msgEmpty)
		return
	}

	sessionID, err := b.ensureSession(ctx, chatID)
	if err != nil {
		b.logger.Error("session setup failed for chat %d: %v", chatID, err)
		b.reply(chatID, faultMessage(err))
		return
	}

	answer, err := b.agent.SendTurn(ctx, sessionID, text)
	if err != nil {
		b.logger.Error("agent turn failed for chat %d: %v", chatID, err)
		b.reply(chatID, faultMessage(err))
		return
	}
	b.reply(chatID, answer.Message)
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.out.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Warn("failed to send reply to chat %d: %v", chatID, err)
	}
}
