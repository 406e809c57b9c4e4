package controller

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"support-chat/protocol"
	"support-chat/service"

	"github.com/gofiber/fiber/v2"
)

// Chat serves the sync protocol over HTTP.
type Chat struct {
	svc *service.Service
}

func NewChat(svc *service.Service) *Chat {
	return &Chat{svc: svc}
}

func (h *Chat) Bootstrap(c *fiber.Ctx) error {
	p, err := party(c)
	if err != nil {
		return fail(c, err)
	}
	req := protocol.BootstrapRequest{}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badInput(c)
		}
	}
	res, err := h.svc.Bootstrap(c.UserContext(), p, req)
	if err != nil {
		return fail(c, err)
	}
	return success(c, res)
}

func queryID(c *fiber.Ctx, key string) (*uint, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("%w: %s must be a message id", service.ErrInvalidCursor, key)
	}
	v := uint(id)
	return &v, nil
}

func (h *Chat) Messages(c *fiber.Ctx) error {
	p, err := party(c)
	if err != nil {
		return fail(c, err)
	}
	convID, ok := idParam(c)
	if !ok {
		return badInput(c)
	}

	q := protocol.MessagesQuery{Limit: c.QueryInt("limit", 0)}
	if q.Before, err = queryID(c, "before"); err != nil {
		return fail(c, err)
	}
	if q.After, err = queryID(c, "after"); err != nil {
		return fail(c, err)
	}

	res, err := h.svc.Messages(c.UserContext(), p, convID, q)
	if err != nil {
		return fail(c, err)
	}
	return success(c, res)
}

func (h *Chat) SendMessage(c *fiber.Ctx) error {
	p, err := party(c)
	if err != nil {
		return fail(c, err)
	}
	convID, ok := idParam(c)
	if !ok {
		return badInput(c)
	}
	req := protocol.SendMessageRequest{}
	if err := c.BodyParser(&req); err != nil {
		return badInput(c)
	}

	msg, err := h.svc.SendMessage(c.UserContext(), p, convID, req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status":  "success",
		"message": nil,
		"data":    msg,
	})
}

func (h *Chat) Typing(c *fiber.Ctx) error {
	p, err := party(c)
	if err != nil {
		return fail(c, err)
	}
	convID, ok := idParam(c)
	if !ok {
		return badInput(c)
	}
	req := protocol.TypingRequest{}
	if err := c.BodyParser(&req); err != nil {
		return badInput(c)
	}

	if err := h.svc.SetTyping(c.UserContext(), p, convID, req.IsTyping); err != nil {
		return fail(c, err)
	}
	return success(c, nil)
}

func (h *Chat) ToggleReaction(c *fiber.Ctx) error {
	p, err := party(c)
	if err != nil {
		return fail(c, err)
	}
	msgID, ok := idParam(c)
	if !ok {
		return badInput(c)
	}
	req := protocol.ToggleReactionRequest{}
	if err := c.BodyParser(&req); err != nil {
		return badInput(c)
	}

	res, err := h.svc.ToggleReaction(c.UserContext(), p, msgID, req.Emoji)
	if err != nil {
		return fail(c, err)
	}
	return success(c, res)
}

func (h *Chat) Image(c *fiber.Ctx) error {
	p, err := party(c)
	if err != nil {
		return fail(c, err)
	}
	imageID, ok := idParam(c)
	if !ok {
		return badInput(c)
	}

	img, err := h.svc.Image(c.UserContext(), p, imageID)
	if err != nil {
		return fail(c, err)
	}
	data, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		return fail(c, fmt.Errorf("decode image %d: %w", img.ID, err))
	}
	c.Set(fiber.HeaderContentType, img.Mime)
	c.Set(fiber.HeaderCacheControl, "private, max-age=31536000, immutable")
	return c.Send(data)
}

func (h *Chat) SubscribePush(c *fiber.Ctx) error {
	p, err := party(c)
	if err != nil {
		return fail(c, err)
	}
	req := protocol.PushSubscribeRequest{}
	if err := c.BodyParser(&req); err != nil {
		return badInput(c)
	}
	if err := h.svc.SubscribePush(c.UserContext(), p, req); err != nil {
		return fail(c, err)
	}
	return success(c, nil)
}

func (h *Chat) AdminConversations(c *fiber.Ctx) error {
	p, err := party(c)
	if err != nil {
		return fail(c, err)
	}
	convs, err := h.svc.Conversations(c.UserContext(), p)
	if err != nil {
		return fail(c, err)
	}
	return success(c, convs)
}
