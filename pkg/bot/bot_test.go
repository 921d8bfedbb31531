package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentbridge/pkg/agent"
	"agentbridge/pkg/agent/apierrors"
	"agentbridge/pkg/logx"
)

type fakeAgent struct {
	starts  int
	turnErr error
	lastSID string
	lastMsg string
}

func (f *fakeAgent) StartConversation(_ context.Context) (string, error) {
	f.starts++
	return fmt.Sprintf("sess-%d", f.starts), nil
}

func (f *fakeAgent) SendTurn(_ context.Context, sessionID, text string) (agent.Reply, error) {
	f.lastSID = sessionID
	f.lastMsg = text
	if f.turnErr != nil {
		return agent.Reply{}, f.turnErr
	}
	return agent.Reply{Message: "echo: " + text}, nil
}

type memStore struct {
	bindings map[int64]string
}

func (m *memStore) Session(chatID int64) (string, error) {
	if sid, ok := m.bindings[chatID]; ok {
		return sid, nil
	}
	return "", fmt.Errorf("session not found")
}

func (m *memStore) SaveSession(chatID int64, sessionID string) error {
	m.bindings[chatID] = sessionID
	return nil
}

type fakeSender struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func newTestBot(agentClient AgentClient) (*Bot, *fakeSender, *memStore) {
	out := &fakeSender{}
	store := &memStore{bindings: make(map[int64]string)}
	b := &Bot{
		out:     out,
		agent:   agentClient,
		store:   store,
		logger:  logx.NewLogger("bot-test"),
		timeout: time.Second,
	}
	return b, out, store
}

func textMessage(chatID int64, text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{FirstName: "Ann"},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(strings.Fields(text)[0])}}
	}
	return msg
}

func TestForwardBindsSessionOnce(t *testing.T) {
	ag := &fakeAgent{}
	b, out, store := newTestBot(ag)

	b.handleMessage(context.Background(), textMessage(10, "hello"))
	b.handleMessage(context.Background(), textMessage(10, "again"))

	assert.Equal(t, 1, ag.starts, "second turn must reuse the stored session")
	assert.Equal(t, "sess-1", store.bindings[10])
	assert.Equal(t, "sess-1", ag.lastSID)
	require.Len(t, out.sent, 2)
	assert.Equal(t, "echo: again", out.sent[1].Text)
}

func TestNewCommandResetsSession(t *testing.T) {
	ag := &fakeAgent{}
	b, out, store := newTestBot(ag)

	b.handleMessage(context.Background(), textMessage(10, "hello"))
	b.handleMessage(context.Background(), textMessage(10, "/new"))
	b.handleMessage(context.Background(), textMessage(10, "after reset"))

	assert.Equal(t, 2, ag.starts)
	assert.Equal(t, "sess-2", store.bindings[10])
	require.Len(t, out.sent, 3)
	assert.Equal(t, msgNewSession, out.sent[1].Text)
}

func TestStartCommandGreetsByName(t *testing.T) {
	b, out, _ := newTestBot(&fakeAgent{})

	b.handleMessage(context.Background(), textMessage(10, "/start"))

	require.Len(t, out.sent, 1)
	assert.Contains(t, out.sent[0].Text, "Ann")
	assert.Contains(t, out.sent[0].Text, "/new")
}

func TestHelpAndUnknownCommands(t *testing.T) {
	b, out, _ := newTestBot(&fakeAgent{})

	b.handleMessage(context.Background(), textMessage(10, "/help"))
	b.handleMessage(context.Background(), textMessage(10, "/bogus"))

	require.Len(t, out.sent, 2)
	assert.Equal(t, msgHelp, out.sent[0].Text)
	assert.Equal(t, msgUnknownCmd, out.sent[1].Text)
}

func TestFaultsNeverLeakServiceDetail(t *testing.T) {
	ag := &fakeAgent{turnErr: apierrors.NewWithStatus(apierrors.FaultService, 502, "upstream exploded")}
	b, out, _ := newTestBot(ag)

	b.handleMessage(context.Background(), textMessage(10, "hello"))

	require.Len(t, out.sent, 1)
	assert.Equal(t, msgFault, out.sent[0].Text)
	assert.NotContains(t, out.sent[0].Text, "upstream")
}

func TestFaultMessageDistinguishesRateLimit(t *testing.T) {
	rateErr := apierrors.NewWithStatus(apierrors.FaultRateLimited, 429, "slow down")
	assert.Equal(t, msgRateLimited, faultMessage(rateErr))
	assert.Equal(t, msgFault, faultMessage(fmt.Errorf("boom")))
}

func TestEmptyTextGetsPrompt(t *testing.T) {
	b, out, _ := newTestBot(&fakeAgent{})

	b.handleMessage(context.Background(), textMessage(10, "   "))

	require.Len(t, out.sent, 1)
	assert.Equal(t, msgEmpty, out.sent[0].Text)
}
