package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"support-chat/protocol"
)

// Transport is the client's view of the sync protocol.
type Transport interface {
	Bootstrap(ctx context.Context, req protocol.BootstrapRequest) (protocol.BootstrapResponse, error)
	Messages(ctx context.Context, conversationID uint, q protocol.MessagesQuery) (protocol.MessagesResponse, error)
	SendMessage(ctx context.Context, conversationID uint, req protocol.SendMessageRequest) (protocol.Message, error)
	ToggleReaction(ctx context.Context, messageID uint, emoji string) (protocol.ToggleReactionResponse, error)
	SetTyping(ctx context.Context, conversationID uint, isTyping bool) error
}

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

func (e *StatusError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}
