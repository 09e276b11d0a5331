package utils

import (
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateJWT(t *testing.T) {
	SetJWTSecret("test-secret")
	id := uuid.New()

	token, err := GenerateJWT(id, "acme", "shop", 1)
	require.NoError(t, err)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, id.String(), claims.UserID)
	assert.Equal(t, "shop", claims.UserType)
	assert.Equal(t, tokenIssuer, claims.Issuer)
}

func TestValidateJWTRejectsExpiredAndForeignTokens(t *testing.T) {
	SetJWTSecret("test-secret")

	expired, err := GenerateJWT(uuid.New(), "acme", "shop", -1)
	require.NoError(t, err)
	_, err = ValidateJWT(expired)
	assert.Error(t, err)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{UserID: "x"}).SignedString([]byte("other"))
	require.NoError(t, err)
	_, err = ValidateJWT(foreign)
	assert.Error(t, err)
}
