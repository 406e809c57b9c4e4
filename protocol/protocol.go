// Package protocol holds the request and response schemas of the chat API.
// Both the fiber handlers and the polling client decode into these types.
package protocol

import (
	"strconv"
	"time"
)

// Party is a validated caller identity: the operator or a specific visitor.
type Party struct {
	ID       uint `json:"id"`
	Operator bool `json:"operator"`
}

// Operator is the single, implicit operator party.
var Operator = Party{Operator: true}

func Visitor(id uint) Party {
	return Party{ID: id}
}

// Key identifies the party in side tables, ledgers and rooms.
func (p Party) Key() string {
	if p.Operator {
		return "operator"
	}
	return "user:" + strconv.FormatUint(uint64(p.ID), 10)
}

// Side is the party's role within a conversation.
func (p Party) Side() string {
	if p.Operator {
		return "operator"
	}
	return "visitor"
}

type ReplyPreview struct {
	ID      uint   `json:"id"`
	Content string `json:"content"`
	IsAdmin bool   `json:"is_admin"`
}

type ReactionGroup struct {
	Emoji    string `json:"emoji"`
	Count    int    `json:"count"`
	HasAdmin bool   `json:"hasAdmin"`
	HasUser  bool   `json:"hasUser"`
}

type Image struct {
	ID     uint   `json:"id,omitempty"`
	URL    string `json:"url,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type Message struct {
	ID             uint            `json:"id"`
	ConversationID uint            `json:"conversation_id"`
	IsAdmin        bool            `json:"is_admin"`
	Content        *string         `json:"content"`
	Image          *Image          `json:"image"`
	ReplyToID      *uint           `json:"reply_to_id,omitempty"`
	ReplyTo        *ReplyPreview   `json:"reply_to"`
	Reactions      []ReactionGroup `json:"reactions"`
	CreatedAt      time.Time       `json:"created_at"`
}

// MessagesQuery selects the read mode: Before for backward pagination, After
// for polling, neither for the initial page.
type MessagesQuery struct {
	Limit  int   `json:"limit,omitempty"`
	Before *uint `json:"before,omitempty"`
	After  *uint `json:"after,omitempty"`
}

type MessagesResponse struct {
	Messages          []Message `json:"messages"`
	HasMore           bool      `json:"hasMore"`
	CounterpartTyping bool      `json:"counterpartTyping"`
	CounterpartOnline bool      `json:"counterpartOnline"`
}

type BootstrapRequest struct {
	ConversationID uint `json:"conversationId,omitempty"`
	Limit          int  `json:"limit,omitempty"`
}

type BootstrapResponse struct {
	ConversationID uint      `json:"conversationId"`
	Messages       []Message `json:"messages"`
	HasMore        bool      `json:"hasMore"`
}

// ImagePayload carries a base64 blob (optionally a data: URL) and its
// declared dimensions.
type ImagePayload struct {
	Data   string `json:"data"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type SendMessageRequest struct {
	Content   *string       `json:"content,omitempty"`
	Image     *ImagePayload `json:"image,omitempty"`
	ReplyToID *uint         `json:"replyToId,omitempty"`
}

type ReactionAction string

const (
	ReactionAdded   ReactionAction = "added"
	ReactionRemoved ReactionAction = "removed"
)

type ToggleReactionRequest struct {
	Emoji string `json:"emoji"`
}

type ToggleReactionResponse struct {
	Action ReactionAction `json:"action"`
	Emoji  string         `json:"emoji"`
}

type TypingRequest struct {
	IsTyping bool `json:"isTyping"`
}

type PushSubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     string `json:"keys"`
}

type ConversationSummary struct {
	ID           uint      `json:"id"`
	UserID       uint      `json:"user_id"`
	Username     string    `json:"username"`
	LastActivity time.Time `json:"last_activity"`
	Online       bool      `json:"online"`
}

// SyncHint is pushed over socket.io after a write so a client can poll right
// away. It carries no message data; reads still go through the cursor API.
type SyncHint struct {
	ConversationID uint   `json:"conversation_id"`
	Kind           string `json:"kind"`
}

const (
	HintMessage  = "message"
	HintReaction = "reaction"
	HintTyping   = "typing"
)
