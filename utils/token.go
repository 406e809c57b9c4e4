package utils

import (
	"errors"
	"strconv"
	"time"

	"support-chat/config"
	"support-chat/protocol"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidClaims = errors.New("invalid token claims")

// TokenMetadata struct to describe metadata in JWT.
type TokenMetadata struct {
	Party protocol.Party
	Exp   int64
}

// GenerateToken signs an access token for the party.
func GenerateToken(party protocol.Party) (string, error) {
	minutesCount := config.Int("JWT_ACCESS_EXPIRE", 60*24)

	claims := jwt.MapClaims{}

	claims["id"] = strconv.FormatUint(uint64(party.ID), 10)
	claims["operator"] = party.Operator
	claims["exp"] = time.Now().Add(time.Minute * time.Duration(minutesCount)).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString([]byte(config.Config("JWT_ACCESS_KEY")))
}

// PartyFromClaims reads the party out of verified claims.
func PartyFromClaims(claims jwt.MapClaims) (protocol.Party, error) {
	operator, _ := claims["operator"].(bool)
	if operator {
		return protocol.Operator, nil
	}
	raw, ok := claims["id"].(string)
	if !ok {
		return protocol.Party{}, ErrInvalidClaims
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return protocol.Party{}, ErrInvalidClaims
	}
	return protocol.Visitor(uint(id)), nil
}

func CheckAndExtractTokenMetadata(token string) (*TokenMetadata, error) {
	t, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return []byte(config.Config("JWT_ACCESS_KEY")), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok || !t.Valid {
		return nil, ErrInvalidClaims
	}
	party, err := PartyFromClaims(claims)
	if err != nil {
		return nil, err
	}
	exp, _ := claims["exp"].(float64)
	return &TokenMetadata{Party: party, Exp: int64(exp)}, nil
}
