package controller

import (
	"errors"
	"strings"
	"unicode/utf8"

	"support-chat/config"
	"support-chat/model"
	"support-chat/protocol"
	"support-chat/store"
	"support-chat/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

type AuthLoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthOperatorInput struct {
	Password string `json:"password"`
	Token    string `json:"token"`
}

// Auth issues access tokens. Visitors register with a username; the single
// operator signs in with the configured password hash and, when a secret is
// configured, a TOTP code.
type Auth struct {
	store store.Store
}

func NewAuth(st store.Store) *Auth {
	return &Auth{store: st}
}

func issue(c *fiber.Ctx, party protocol.Party) error {
	token, err := utils.GenerateToken(party)
	if err != nil {
		log.Error().Err(err).Msg("token signing failed")
		return failure(c, fiber.StatusInternalServerError, "Internal server error")
	}
	return success(c, fiber.Map{
		"id":       party.ID,
		"operator": party.Operator,
		"access":   token,
	})
}

func (h *Auth) Signup(c *fiber.Ctx) error {
	input := new(AuthLoginInput)
	if err := c.BodyParser(input); err != nil {
		return badInput(c)
	}
	input.Username = strings.TrimSpace(input.Username)
	if n := utf8.RuneCountInString(input.Username); n < 3 || n > 32 || len(input.Password) < 8 {
		return failure(c, fiber.StatusBadRequest, "Username must be 3-32 characters and password at least 8")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), config.Int("BCRYPT_COST", 14))
	if err != nil {
		log.Error().Err(err).Msg("password hashing failed")
		return failure(c, fiber.StatusInternalServerError, "Internal server error")
	}

	user := &model.User{Username: input.Username, Password: string(hash), Role: "visitor"}
	if err := h.store.CreateUser(c.UserContext(), user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return failure(c, fiber.StatusBadRequest, "Username is already registered")
		}
		log.Error().Err(err).Msg("create user failed")
		return failure(c, fiber.StatusInternalServerError, "Internal server error")
	}

	log.Info().Uint("user", user.ID).Msg("visitor registered")
	return issue(c, protocol.Visitor(user.ID))
}

func (h *Auth) Signin(c *fiber.Ctx) error {
	input := new(AuthLoginInput)
	if err := c.BodyParser(input); err != nil {
		return badInput(c)
	}

	user, err := h.store.UserByUsername(c.UserContext(), strings.TrimSpace(input.Username))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Msg("user lookup failed")
		}
		return failure(c, fiber.StatusUnauthorized, "Invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		return failure(c, fiber.StatusUnauthorized, "Invalid username or password")
	}

	return issue(c, protocol.Visitor(user.ID))
}

func (h *Auth) Operator(c *fiber.Ctx) error {
	input := new(AuthOperatorInput)
	if err := c.BodyParser(input); err != nil {
		return badInput(c)
	}

	hash := config.Config("OPERATOR_PASSWORD_HASH")
	if hash == "" {
		return failure(c, fiber.StatusUnauthorized, "Operator sign-in is disabled")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(input.Password)); err != nil {
		return failure(c, fiber.StatusUnauthorized, "Invalid password or token")
	}
	if secret := config.Config("OPERATOR_OTP_SECRET"); secret != "" && !totp.Validate(input.Token, secret) {
		return failure(c, fiber.StatusUnauthorized, "Invalid password or token")
	}

	log.Info().Str("ip", c.IP()).Msg("operator signed in")
	return issue(c, protocol.Operator)
}

// Profile echoes the caller identity behind the token.
func (h *Auth) Profile(c *fiber.Ctx) error {
	p, err := party(c)
	if err != nil {
		return fail(c, err)
	}
	if p.Operator {
		return success(c, fiber.Map{"id": 0, "operator": true, "username": "operator"})
	}

	user, err := h.store.User(c.UserContext(), p.ID)
	if errors.Is(err, store.ErrNotFound) {
		return failure(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	if err != nil {
		return fail(c, err)
	}
	return success(c, fiber.Map{
		"id":       user.ID,
		"operator": false,
		"username": user.Username,
		"created":  user.CreatedAt.Unix(),
	})
}
