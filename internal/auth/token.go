// ABOUTME: JWT token minting and verification for the operator API.
// ABOUTME: Uses HS256 signing with the configured operator secret.

package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// DefaultTokenTTL is how long minted operator tokens stay valid.
const DefaultTokenTTL = 12 * time.Hour

// TokenIssuer mints and verifies HS256 operator tokens.
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer creates an issuer signing with the given secret.
func NewTokenIssuer(secret []byte) *TokenIssuer {
	return &TokenIssuer{secret: secret}
}

// Mint creates a token for the given operator name with expiration.
func (i *TokenIssuer) Mint(operator string, expiresIn time.Duration) (string, error) {
	if operator == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": operator,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify validates a token and extracts the operator name from "sub".
func (i *TokenIssuer) Verify(tokenString string) (operator string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}

// EqualSecret compares a presented secret against the configured one in
// constant time. An empty configured secret never matches.
func (i *TokenIssuer) EqualSecret(presented string) bool {
	if len(i.secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(i.secret, []byte(presented)) == 1
}
