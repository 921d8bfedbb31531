// Package bot implements the Telegram front end. It receives updates over
// long polling and forwards text messages to the agent conversation bound to
// each chat.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"agentbridge/pkg/agent"
	"agentbridge/pkg/logx"
)

const pollTimeoutSeconds = 30

// AgentClient is the conversation surface the bot needs from the agent layer.
type AgentClient interface {
	StartConversation(ctx context.Context) (string, error)
	SendTurn(ctx context.Context, sessionID, text string) (agent.Reply, error)
}

// SessionStore persists the chat-to-conversation binding across restarts.
type SessionStore interface {
	Session(chatID int64) (string, error)
	SaveSession(chatID int64, sessionID string) error
}

// sender is the slice of tgbotapi.BotAPI the handlers use.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot wires Telegram updates to the agent client.
type Bot struct {
	api     *tgbotapi.BotAPI
	out     sender
	agent   AgentClient
	store   SessionStore
	logger  *logx.Logger
	timeout time.Duration

	mu sync.Mutex // guards ensureSession per process; SQLite serializes the rest
}

// New connects to the Telegram Bot API and returns a ready-to-run bot.
func New(token string, agentClient AgentClient, store SessionStore, requestTimeout time.Duration) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}

	logger := logx.NewLogger("bot")
	logger.Info("authorized as @%s", api.Self.UserName)

	return &Bot{
		api:     api,
		out:     api,
		agent:   agentClient,
		store:   store,
		logger:  logger,
		timeout: requestTimeout,
	}, nil
}

// Run polls for updates until ctx is cancelled. Each update is handled in its
// own goroutine; Run returns after in-flight handlers finish.
func (b *Bot) Run(ctx context.Context) error {
	// A leftover webhook makes polling return conflicts, so drop it first.
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		b.logger.Debug("could not delete webhook: %v", err)
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeoutSeconds
	updates := b.api.GetUpdatesChan(cfg)

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			wg.Wait()
			b.logger.Info("bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				wg.Wait()
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer wg.Done()
				b.handleMessage(ctx, msg)
			}(update.Message)
		}
	}
}

// ensureSession returns the conversation bound to the chat, starting a fresh
// one when the chat has no binding yet.
func (b *Bot) ensureSession(ctx context.Context, chatID int64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sessionID, err := b.store.Session(chatID)
	if err == nil {
		return sessionID, nil
	}
	return b.resetSessionLocked(ctx, chatID)
}

// resetSession unconditionally starts a fresh conversation for the chat.
func (b *Bot) resetSession(ctx context.Context, chatID int64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resetSessionLocked(ctx, chatID)
}

func (b *Bot) resetSessionLocked(ctx context.Context, chatID int64) (string, error) {
	sessionID, err := b.agent.StartConversation(ctx)
	if err != nil {
		return "", err
	}
	if err := b.store.SaveSession(chatID, sessionID); err != nil {
		return "", err
	}
	b.logger.Info("started session %s for chat %d", sessionID, chatID)
	return sessionID, nil
}
