package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing"

func TestGenerateAndParse(t *testing.T) {
	for _, userID := range []int64{1, 42, 9223372036854775807} {
		token, err := GenerateToken(userID, testSecret, 24)
		require.NoError(t, err)

		claims, err := ParseToken(token, testSecret)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.UserID)
		assert.True(t, claims.ExpiresAt.After(time.Now()))
	}
}

func TestGenerateTokenWithRole(t *testing.T) {
	token, err := GenerateTokenWithRole(7, RoleAdmin, testSecret, 1)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, RoleAdmin, claims.Role)

	token, err = GenerateToken(7, testSecret, 1)
	require.NoError(t, err)
	claims, err = ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Empty(t, claims.Role)
}

func TestParseToken_Rejects(t *testing.T) {
	valid, err := GenerateToken(123, testSecret, 24)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		key   string
	}{
		{"wrong secret", valid, "wrong-secret"},
		{"garbage", "not-a-jwt-at-all", testSecret},
		{"empty", "", testSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ParseToken(tt.token, tt.key)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestParseToken_Expired(t *testing.T) {
	claims := Claims{
		UserID: 123,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	result, err := ParseToken(tokenString, testSecret)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Nil(t, result)
}

func TestParseToken_NoneAlgorithm(t *testing.T) {
	claims := Claims{
		UserID: 123,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	result, err := ParseToken(tokenString, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, result)
}
