// ABOUTME: Tests for JWT identity assertion verification
// ABOUTME: Covers round trips, expiry, bad signatures, missing claims

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/corkboard/internal/presence"
)

const testSecret = "test-secret-key"

func testVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier([]byte(testSecret))
	require.NoError(t, err)
	return v
}

func TestNewJWTVerifier_RejectsEmptySecret(t *testing.T) {
	_, err := NewJWTVerifier(nil)
	assert.Error(t, err)
}

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := testVerifier(t)

	token, err := v.Generate(presence.User{Name: "Ada", Photo: "https://example.com/a.png"}, time.Hour)
	require.NoError(t, err)

	user, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.Name)
	assert.Equal(t, "https://example.com/a.png", user.Photo)
}

func TestJWTVerifier_PhotoIsOptional(t *testing.T) {
	v := testVerifier(t)

	token, err := v.Generate(presence.User{Name: "Ada"}, time.Hour)
	require.NoError(t, err)

	user, err := v.Verify(token)
	require.NoError(t, err)
	assert.Empty(t, user.Photo)
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	v := testVerifier(t)

	token, err := v.Generate(presence.User{Name: "Ada"}, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	other, err := NewJWTVerifier([]byte("a-different-secret"))
	require.NoError(t, err)
	token, err := other.Generate(presence.User{Name: "Ada"}, time.Hour)
	require.NoError(t, err)

	_, err = testVerifier(t).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_RejectsUnsignedToken(t *testing.T) {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"name": "Ada"})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = testVerifier(t).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_MissingNameClaim(t *testing.T) {
	claims := jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = testVerifier(t).Verify(token)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestJWTVerifier_GarbageToken(t *testing.T) {
	_, err := testVerifier(t).Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
