package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"twin_service/internal/domain/model"
)

const (
	ChatGreeting = "Hi! I'm your Green Neighborhood AI. How can I help you improve the locality today?"
	ChatFallback = "Oops, I lost connection to the city servers."
)

var (
	ErrEmptyMessage = errors.New("empty message")
	ErrChatBusy     = errors.New("previous message still in flight")
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

type ChatMessage struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

// ChatSession keeps the conversation with the city assistant. Only one message
// can be outstanding at a time.
type ChatSession struct {
	client model.TwinClient
	logger *zap.Logger

	mu       sync.Mutex
	messages []ChatMessage
	busy     bool
}

func NewChatSession(client model.TwinClient, logger *zap.Logger) *ChatSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatSession{
		client:   client,
		logger:   logger,
		messages: []ChatMessage{{Sender: SenderBot, Text: ChatGreeting}},
	}
}

// Send posts input to the assistant and returns its reply. Service failures
// are not returned: the reply is then ChatFallback.
func (c *ChatSession) Send(ctx context.Context, input string, chatCtx model.ChatContext) (ChatMessage, error) {
	if strings.TrimSpace(input) == "" {
		return ChatMessage{}, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ChatMessage{}, ErrChatBusy
	}
	c.busy = true
	c.messages = append(c.messages, ChatMessage{Sender: SenderUser, Text: input})
	c.mu.Unlock()

	reply := ChatMessage{Sender: SenderBot, Text: ChatFallback}
	res, err := c.client.Chat(ctx, model.ChatRequest{Message: input, Context: chatCtx})
	if err != nil {
		c.logger.Warn("chat request failed", zap.String("locality", chatCtx.Locality), zap.Error(err))
	} else {
		reply.Text = res.Response
	}

	c.mu.Lock()
	c.messages = append(c.messages, reply)
	c.busy = false
	c.mu.Unlock()
	return reply, nil
}

// Messages returns a copy of the conversation, oldest first.
func (c *ChatSession) Messages() []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// InputEnabled reports whether Send would accept a message now.
func (c *ChatSession) InputEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.busy
}
