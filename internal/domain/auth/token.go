// Package auth issues and verifies the owner-scoped bearer tokens that guard
// the training and voice-model endpoints.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chorus-server-go/internal/platform/errors"
)

// AuthToken signs and verifies owner scoped JWT tokens.
type AuthToken struct {
	secretKey []byte
	ttl       time.Duration
}

// NewAuthToken builds a token helper using the provided secret.
func NewAuthToken(secretKey string) *AuthToken {
	return &AuthToken{
		secretKey: []byte(secretKey),
		ttl:       24 * time.Hour,
	}
}

// WithTTL allows customising the expiration duration.
func (at *AuthToken) WithTTL(ttl time.Duration) *AuthToken {
	if ttl > 0 {
		at.ttl = ttl
	}
	return at
}

// GenerateToken issues a JWT for the provided owner identifier.
func (at *AuthToken) GenerateToken(ownerID string) (string, error) {
	if len(at.secretKey) == 0 {
		return "", errors.New(errors.KindConfig, "auth.generate", "token secret is empty")
	}
	if ownerID == "" {
		return "", errors.New(errors.KindInvalidRequest, "auth.generate", "owner id is empty")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"owner_id": ownerID,
		"exp":      now.Add(at.ttl).Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(at.secretKey)
	if err != nil {
		return "", errors.Wrap(errors.KindInternal, "auth.generate", "failed to sign token", err)
	}
	return signed, nil
}

// VerifyToken validates the JWT and extracts the owner identifier.
func (at *AuthToken) VerifyToken(tokenString string) (string, error) {
	if len(at.secretKey) == 0 {
		return "", errors.New(errors.KindConfig, "auth.verify", "token secret is empty")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New(errors.KindInvalidRequest, "auth.verify", "unexpected signing method")
		}
		return at.secretKey, nil
	})
	if err != nil {
		return "", errors.Wrap(errors.KindInvalidRequest, "auth.verify", "failed to parse token", err)
	}
	if !token.Valid {
		return "", errors.New(errors.KindInvalidRequest, "auth.verify", "invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New(errors.KindInvalidRequest, "auth.verify", "invalid claims")
	}
	ownerID, ok := claims["owner_id"].(string)
	if !ok || ownerID == "" {
		return "", errors.New(errors.KindInvalidRequest, "auth.verify", "missing owner_id claim")
	}
	return ownerID, nil
}
