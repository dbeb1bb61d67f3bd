package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-saas/aurum-server/internal/config"
	"github.com/aurum-saas/aurum-server/internal/models"
)

func testManager() *JWTManager {
	return NewJWTManager(&config.JWTConfig{
		Secret:          "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
}

func testUser() *models.User {
	tenantID := uuid.New()
	return &models.User{
		ID:       uuid.New(),
		Email:    "owner@acme.example",
		TenantID: &tenantID,
	}
}

func TestGenerateAndValidateTokenPair(t *testing.T) {
	m := testManager()
	user := testUser()

	access, refresh, err := m.GenerateTokenPair(user)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	claims, err := m.ValidateToken(access)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	require.NotNil(t, claims.TenantID)
	assert.Equal(t, *user.TenantID, *claims.TenantID)
	assert.False(t, claims.IsAdmin)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	m := testManager()
	access, _, err := m.GenerateTokenPair(testUser())
	require.NoError(t, err)

	other := NewJWTManager(&config.JWTConfig{
		Secret:          "other-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	_, err = other.ValidateToken(access)
	assert.Error(t, err)
}

func TestValidateExpiredToken(t *testing.T) {
	m := NewJWTManager(&config.JWTConfig{
		Secret:          "test-secret",
		AccessTokenTTL:  -time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})

	access, _, err := m.GenerateTokenPair(testUser())
	require.NoError(t, err)

	_, err = m.ValidateToken(access)
	assert.Error(t, err)
}

func TestParseRefreshToken(t *testing.T) {
	m := testManager()
	user := testUser()

	_, refresh, err := m.GenerateTokenPair(user)
	require.NoError(t, err)

	userID, err := m.ParseRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
}

func TestParseRefreshTokenGarbage(t *testing.T) {
	m := testManager()
	_, err := m.ParseRefreshToken("not-a-token")
	assert.Error(t, err)
}
