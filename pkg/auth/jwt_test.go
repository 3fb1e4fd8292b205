package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_IssueAndParse(t *testing.T) {
	// Arrange
	m := NewTokenManager("secret")

	// Act
	token, err := m.Issue(Identity{UserID: 42, Name: "Ana", IsAdmin: true}, PurposeAccess, time.Hour)
	require.NoError(t, err)
	claims, err := m.Parse(token, PurposeAccess)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.True(t, claims.IsAdmin)
	assert.Equal(t, "Ana", claims.Name)
	assert.Equal(t, "42", claims.Subject)
}

func TestTokenManager_RejectsWrongPurpose(t *testing.T) {
	m := NewTokenManager("secret")
	token, err := m.Issue(Identity{UserID: 1}, PurposePasswordReset, time.Hour)
	require.NoError(t, err)

	_, err = m.Parse(token, PurposeAccess)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewTokenManager("secret").WithClock(func() time.Time { return issued })
	token, err := m.Issue(Identity{UserID: 1}, PurposePasswordReset, time.Hour)
	require.NoError(t, err)

	m.WithClock(func() time.Time { return issued.Add(2 * time.Hour) })
	_, err = m.Parse(token, PurposePasswordReset)

	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenManager_RejectsForeignSecret(t *testing.T) {
	token, err := NewTokenManager("one").Issue(Identity{UserID: 1}, PurposeAccess, time.Hour)
	require.NoError(t, err)

	_, err = NewTokenManager("two").Parse(token, PurposeAccess)

	assert.ErrorIs(t, err, ErrInvalidToken)
}
