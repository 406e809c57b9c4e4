package router

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"support-chat/controller"
	"support-chat/database"
	"support-chat/presence"
	"support-chat/protocol"
	"support-chat/ratelimit"
	"support-chat/service"
	"support-chat/store"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type session struct {
	ID       uint   `json:"id"`
	Operator bool   `json:"operator"`
	Access   string `json:"access"`
}

func newTestApp(t *testing.T, rules map[ratelimit.Action]ratelimit.Rule) *fiber.App {
	t.Helper()
	t.Setenv("JWT_ACCESS_KEY", "router-test-key")
	t.Setenv("JWT_ACCESS_EXPIRE", "10")
	t.Setenv("BCRYPT_COST", "4")
	hash, err := bcrypt.GenerateFromPassword([]byte("operator-pass"), 4)
	require.NoError(t, err)
	t.Setenv("OPERATOR_PASSWORD_HASH", string(hash))
	t.Setenv("OPERATOR_OTP_SECRET", "")

	db, err := database.Memory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	st := store.New(db)
	limiter := ratelimit.NewMemory(rules)
	t.Cleanup(limiter.Close)
	svc := service.New(st, presence.NewMemory(), limiter)
	enforcer, err := database.Casbin(db)
	require.NoError(t, err)

	app := fiber.New()
	Rest(app, controller.NewAuth(st), controller.NewChat(svc), enforcer)
	return app
}

func call(t *testing.T, app *fiber.App, method, path, token string, body any) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	res, err := app.Test(req, -1)
	require.NoError(t, err)

	env := envelope{}
	if res.Header.Get(fiber.HeaderContentType) == fiber.MIMEApplicationJSONCharsetUTF8 ||
		res.Header.Get(fiber.HeaderContentType) == fiber.MIMEApplicationJSON {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
	}
	return res, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func signup(t *testing.T, app *fiber.App, username string) session {
	t.Helper()
	res, env := call(t, app, http.MethodPost, "/v1/auth/signup", "", fiber.Map{"username": username, "password": "secret-pass"})
	require.Equal(t, http.StatusOK, res.StatusCode, env.Message)
	return decode[session](t, env)
}

func operator(t *testing.T, app *fiber.App) session {
	t.Helper()
	res, env := call(t, app, http.MethodPost, "/v1/auth/operator", "", fiber.Map{"password": "operator-pass"})
	require.Equal(t, http.StatusOK, res.StatusCode, env.Message)
	return decode[session](t, env)
}

func text(s string) *string { return &s }

func TestVisitorOperatorRoundTrip(t *testing.T) {
	app := newTestApp(t, ratelimit.DefaultRules)
	ada := signup(t, app, "ada")
	op := operator(t, app)
	assert.True(t, op.Operator)

	res, env := call(t, app, http.MethodPost, "/v1/chat/bootstrap", ada.Access, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	boot := decode[protocol.BootstrapResponse](t, env)
	require.NotZero(t, boot.ConversationID)
	assert.Empty(t, boot.Messages)

	messagesPath := fmt.Sprintf("/v1/conversations/%d/messages", boot.ConversationID)
	res, env = call(t, app, http.MethodPost, messagesPath, ada.Access, protocol.SendMessageRequest{Content: text("hello")})
	require.Equal(t, http.StatusCreated, res.StatusCode, env.Message)
	first := decode[protocol.Message](t, env)

	res, _ = call(t, app, http.MethodPost, fmt.Sprintf("/v1/conversations/%d/typing", boot.ConversationID), ada.Access, protocol.TypingRequest{IsTyping: true})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, env = call(t, app, http.MethodGet, fmt.Sprintf("%s?after=%d", messagesPath, first.ID), op.Access, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	poll := decode[protocol.MessagesResponse](t, env)
	assert.Empty(t, poll.Messages)
	assert.True(t, poll.CounterpartTyping)
	assert.True(t, poll.CounterpartOnline)

	res, env = call(t, app, http.MethodPost, messagesPath, op.Access, protocol.SendMessageRequest{Content: text("how can I help?"), ReplyToID: &first.ID})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	reply := decode[protocol.Message](t, env)
	assert.True(t, reply.IsAdmin)

	res, env = call(t, app, http.MethodPost, fmt.Sprintf("/v1/messages/%d/reactions", reply.ID), ada.Access, protocol.ToggleReactionRequest{Emoji: "🙏"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, protocol.ReactionAdded, decode[protocol.ToggleReactionResponse](t, env).Action)

	res, env = call(t, app, http.MethodGet, fmt.Sprintf("%s?after=%d", messagesPath, first.ID), ada.Access, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	poll = decode[protocol.MessagesResponse](t, env)
	require.Len(t, poll.Messages, 1)
	got := poll.Messages[0]
	assert.Equal(t, reply.ID, got.ID)
	require.NotNil(t, got.ReplyTo)
	assert.Equal(t, "hello", got.ReplyTo.Content)
	require.Len(t, got.Reactions, 1)
	assert.Equal(t, protocol.ReactionGroup{Emoji: "🙏", Count: 1, HasUser: true}, got.Reactions[0])

	res, env = call(t, app, http.MethodGet, "/v1/admin/conversations", op.Access, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	inbox := decode[[]protocol.ConversationSummary](t, env)
	require.Len(t, inbox, 1)
	assert.Equal(t, "ada", inbox[0].Username)
}

func TestAuthFailures(t *testing.T) {
	app := newTestApp(t, ratelimit.DefaultRules)
	ada := signup(t, app, "ada")

	res, _ := call(t, app, http.MethodPost, "/v1/auth/signup", "", fiber.Map{"username": "ada", "password": "secret-pass"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = call(t, app, http.MethodPost, "/v1/auth/signin", "", fiber.Map{"username": "ada", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, env := call(t, app, http.MethodPost, "/v1/auth/signin", "", fiber.Map{"username": "ada", "password": "secret-pass"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, ada.ID, decode[session](t, env).ID)

	res, _ = call(t, app, http.MethodPost, "/v1/auth/operator", "", fiber.Map{"password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = call(t, app, http.MethodPost, "/v1/chat/bootstrap", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = call(t, app, http.MethodPost, "/v1/chat/bootstrap", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = call(t, app, http.MethodGet, "/v1/admin/conversations", ada.Access, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, env = call(t, app, http.MethodGet, "/v1/user/profile", ada.Access, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ada", decode[map[string]any](t, env)["username"])
}

func TestErrorMapping(t *testing.T) {
	app := newTestApp(t, ratelimit.DefaultRules)
	ada := signup(t, app, "ada")
	bob := signup(t, app, "bob")

	_, env := call(t, app, http.MethodPost, "/v1/chat/bootstrap", ada.Access, nil)
	conv := decode[protocol.BootstrapResponse](t, env).ConversationID
	messagesPath := fmt.Sprintf("/v1/conversations/%d/messages", conv)

	res, _ := call(t, app, http.MethodGet, messagesPath, bob.Access, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = call(t, app, http.MethodGet, messagesPath+"?after=abc", ada.Access, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = call(t, app, http.MethodGet, messagesPath+"?after=999", ada.Access, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, env = call(t, app, http.MethodPost, messagesPath, ada.Access, protocol.SendMessageRequest{Content: text("   ")})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, env.Message, "invalid content")

	res, _ = call(t, app, http.MethodPost, "/v1/messages/999/reactions", ada.Access, protocol.ToggleReactionRequest{Emoji: "👍"})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestSendRateLimitSetsRetryAfter(t *testing.T) {
	app := newTestApp(t, map[ratelimit.Action]ratelimit.Rule{
		ratelimit.Send: {Every: time.Minute, Burst: 2},
	})
	ada := signup(t, app, "ada")
	_, env := call(t, app, http.MethodPost, "/v1/chat/bootstrap", ada.Access, nil)
	messagesPath := fmt.Sprintf("/v1/conversations/%d/messages", decode[protocol.BootstrapResponse](t, env).ConversationID)

	for i := 0; i < 2; i++ {
		res, _ := call(t, app, http.MethodPost, messagesPath, ada.Access, protocol.SendMessageRequest{Content: text("hi")})
		require.Equal(t, http.StatusCreated, res.StatusCode)
	}
	res, _ := call(t, app, http.MethodPost, messagesPath, ada.Access, protocol.SendMessageRequest{Content: text("hi")})
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.NotEmpty(t, res.Header.Get(fiber.HeaderRetryAfter))
}

func TestImageIsServedToParticipantsOnly(t *testing.T) {
	app := newTestApp(t, ratelimit.DefaultRules)
	ada := signup(t, app, "ada")
	bob := signup(t, app, "bob")
	_, env := call(t, app, http.MethodPost, "/v1/chat/bootstrap", ada.Access, nil)
	messagesPath := fmt.Sprintf("/v1/conversations/%d/messages", decode[protocol.BootstrapResponse](t, env).ConversationID)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 2))))
	payload := &protocol.ImagePayload{Data: base64.StdEncoding.EncodeToString(buf.Bytes()), Width: 3, Height: 2}

	res, env := call(t, app, http.MethodPost, messagesPath, ada.Access, protocol.SendMessageRequest{Image: payload})
	require.Equal(t, http.StatusCreated, res.StatusCode, env.Message)
	msg := decode[protocol.Message](t, env)
	require.NotNil(t, msg.Image)

	res, _ = call(t, app, http.MethodGet, msg.Image.URL, ada.Access, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "image/png", res.Header.Get(fiber.HeaderContentType))
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), body)

	res, _ = call(t, app, http.MethodGet, msg.Image.URL, bob.Access, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
