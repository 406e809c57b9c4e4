package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"support-chat/protocol"

	"github.com/valyala/fasthttp"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// HTTP speaks the /v1 JSON API with a bearer token.
type HTTP struct {
	client  *fasthttp.Client
	base    string
	token   string
	timeout time.Duration
}

type HTTPOption func(*HTTP)

// WithDial replaces the dialer, e.g. with an in-memory listener.
func WithDial(dial fasthttp.DialFunc) HTTPOption {
	return func(h *HTTP) { h.client.Dial = dial }
}

func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) { h.timeout = d }
}

func NewHTTP(baseURL, token string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		client: &fasthttp.Client{
			Name:                "support-chat-client",
			MaxIdleConnDuration: time.Minute,
		},
		base:    strings.TrimSuffix(baseURL, "/"),
		token:   token,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTP) do(ctx context.Context, method, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	res := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(res)

	req.SetRequestURI(h.base + path)
	req.Header.SetMethod(method)
	if h.token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+h.token)
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(raw)
	}

	deadline := time.Now().Add(h.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := h.client.DoDeadline(req, res, deadline); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	env := envelope{}
	decodeErr := json.Unmarshal(res.Body(), &env)

	if code := res.StatusCode(); code < 200 || code > 299 {
		se := &StatusError{Status: code, Message: env.Message}
		if secs, err := strconv.Atoi(string(res.Header.Peek(fasthttp.HeaderRetryAfter))); err == nil {
			se.RetryAfter = time.Duration(secs) * time.Second
		}
		return se
	}
	if decodeErr != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (h *HTTP) Bootstrap(ctx context.Context, req protocol.BootstrapRequest) (protocol.BootstrapResponse, error) {
	res := protocol.BootstrapResponse{}
	err := h.do(ctx, fasthttp.MethodPost, "/v1/chat/bootstrap", req, &res)
	return res, err
}

func (h *HTTP) Messages(ctx context.Context, conversationID uint, q protocol.MessagesQuery) (protocol.MessagesResponse, error) {
	values := url.Values{}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Before != nil {
		values.Set("before", strconv.FormatUint(uint64(*q.Before), 10))
	}
	if q.After != nil {
		values.Set("after", strconv.FormatUint(uint64(*q.After), 10))
	}
	path := fmt.Sprintf("/v1/conversations/%d/messages", conversationID)
	if len(values) > 0 {
		path += "?" + values.Encode()
	}

	res := protocol.MessagesResponse{}
	err := h.do(ctx, fasthttp.MethodGet, path, nil, &res)
	return res, err
}

func (h *HTTP) SendMessage(ctx context.Context, conversationID uint, req protocol.SendMessageRequest) (protocol.Message, error) {
	res := protocol.Message{}
	err := h.do(ctx, fasthttp.MethodPost, fmt.Sprintf("/v1/conversations/%d/messages", conversationID), req, &res)
	return res, err
}

func (h *HTTP) ToggleReaction(ctx context.Context, messageID uint, emoji string) (protocol.ToggleReactionResponse, error) {
	res := protocol.ToggleReactionResponse{}
	err := h.do(ctx, fasthttp.MethodPost, fmt.Sprintf("/v1/messages/%d/reactions", messageID), protocol.ToggleReactionRequest{Emoji: emoji}, &res)
	return res, err
}

func (h *HTTP) SetTyping(ctx context.Context, conversationID uint, isTyping bool) error {
	return h.do(ctx, fasthttp.MethodPost, fmt.Sprintf("/v1/conversations/%d/typing", conversationID), protocol.TypingRequest{IsTyping: isTyping}, nil)
}
