// ABOUTME: Verification of signed identity assertions from the external identity provider
// ABOUTME: Uses HS256 JWTs carrying an opaque display name and photo

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/corkboard/internal/presence"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenVerifier turns a signed identity assertion into the opaque user
// identity attached to presence events. The server never talks to the
// identity provider itself; it only checks the signature.
type TokenVerifier interface {
	Verify(tokenString string) (presence.User, error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier with the given shared secret.
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret cannot be empty")
	}
	return &JWTVerifier{secret: secret}, nil
}

// Verify validates the token and extracts the user identity. The "name"
// claim is required; "picture" is optional.
func (v *JWTVerifier) Verify(tokenString string) (presence.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return presence.User{}, ErrExpiredToken
		}
		return presence.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return presence.User{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return presence.User{}, ErrInvalidToken
	}

	name, ok := claims["name"].(string)
	if !ok || name == "" {
		return presence.User{}, fmt.Errorf("%w: name", ErrMissingClaim)
	}
	photo, _ := claims["picture"].(string)

	return presence.User{Name: name, Photo: photo}, nil
}

// Generate creates a signed identity assertion. Used by tests and the
// token subcommand; production tokens come from the identity provider.
func (v *JWTVerifier) Generate(user presence.User, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"name": user.Name,
		"iat":  now.Unix(),
		"exp":  now.Add(expiresIn).Unix(),
	}
	if user.Photo != "" {
		claims["picture"] = user.Photo
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
