// Package telegram delivers relay output to Telegram chats. It implements
// channels.Sender over the Bot API, splitting long messages at the API's
// length limit and retrying a failed send once.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mymmrac/telego"

	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/logger"
)

// maxMessageLength is the Bot API limit for a single text message.
const maxMessageLength = 4096

const sendTimeout = 30 * time.Second

// botAPI is the slice of the telego client this package uses; tests provide
// their own implementation.
type botAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Sender delivers text to Telegram chats.
type Sender struct {
	bot           botAPI
	defaultChatID string
	log           *logger.Logger
}

// New connects to the Bot API with the given token. defaultChatID is used
// when a destination is empty.
func New(token, defaultChatID string, log *logger.Logger) (*Sender, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &Sender{bot: bot, defaultChatID: defaultChatID, log: log}, nil
}

// Send delivers text to the chat named by destination (a numeric chat ID).
// Messages over the API limit are split into consecutive chunks; each chunk
// gets one retry before the send is abandoned.
func (s *Sender) Send(ctx context.Context, destination, text string) error {
	if text == "" {
		return nil
	}
	if destination == "" {
		destination = s.defaultChatID
	}
	chatID, err := strconv.ParseInt(destination, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", destination, err)
	}

	for _, chunk := range splitMessage(text) {
		if err := s.sendChunk(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) sendChunk(ctx context.Context, chatID int64, text string) error {
	params := &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   text,
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, err := s.bot.SendMessage(sendCtx, params)
	if err == nil {
		return nil
	}
	s.log.Warn("telegram send failed, retrying once",
		logger.Field{Key: "chat_id", Value: chatID},
		logger.Field{Key: "error", Value: err.Error()},
	)

	retryCtx, cancelRetry := context.WithTimeout(ctx, sendTimeout)
	defer cancelRetry()
	if _, err := s.bot.SendMessage(retryCtx, params); err != nil {
		return fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return nil
}

// splitMessage cuts text into API-sized chunks, preferring newline
// boundaries so formatting survives the split.
func splitMessage(text string) []string {
	runes := []rune(text)
	if len(runes) <= maxMessageLength {
		return []string{text}
	}

	var chunks []string
	for len(runes) > maxMessageLength {
		cut := maxMessageLength
		for i := maxMessageLength - 1; i > maxMessageLength/2; i-- {
			if runes[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
