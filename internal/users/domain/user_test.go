package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	user, err := NewUser(" John Doe ", "John@Example.COM", "secret1")
	require.NoError(t, err)

	assert.Equal(t, "John Doe", user.Name)
	assert.Equal(t, "john@example.com", user.Email)
	assert.True(t, user.CheckPassword("secret1"))
	assert.False(t, user.CheckPassword("secret2"))
}

func TestNewUser_Validation(t *testing.T) {
	tests := []struct {
		name     string
		userName string
		email    string
		password string
		want     error
	}{
		{"missing name", "", "a@example.com", "secret1", ErrNameRequired},
		{"short name", "A", "a@example.com", "secret1", ErrNameLength},
		{"missing email", "Ann", "", "secret1", ErrEmailRequired},
		{"invalid email", "Ann", "not-an-email", "secret1", ErrEmailInvalid},
		{"short password", "Ann", "a@example.com", "1234", ErrPasswordTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewUser(tt.userName, tt.email, tt.password)
			assert.Equal(t, tt.want, err)
		})
	}
}

func TestResetToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	user, err := NewUser("John Doe", "john@example.com", "secret1")
	require.NoError(t, err)

	assert.Equal(t, ErrResetTokenInvalid, user.ResetTokenMatches("anything", now))

	user.SetResetToken("tok-1", now.Add(time.Hour))
	assert.NoError(t, user.ResetTokenMatches("tok-1", now))
	assert.Equal(t, ErrResetTokenInvalid, user.ResetTokenMatches("tok-2", now))
	assert.Equal(t, ErrResetTokenExpired, user.ResetTokenMatches("tok-1", now.Add(2*time.Hour)))
	assert.NotContains(t, user.ResetTokenDigest, "tok-1")

	require.NoError(t, user.SetPassword("changed"))
	assert.Equal(t, ErrResetTokenInvalid, user.ResetTokenMatches("tok-1", now))
}
