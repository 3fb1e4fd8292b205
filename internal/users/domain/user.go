package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted password
const MinPasswordLength = 5

// User represents the user domain entity
type User struct {
	ID           uint
	Name         string
	Email        string
	PasswordHash string
	IsAdmin      bool
	// ResetTokenDigest is the sha256 of the one outstanding reset token
	ResetTokenDigest string
	ResetExpiresAt   *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EmailRegex is the pattern for validating emails
var EmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail lowercases and trims an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate validates the user entity
func (u *User) Validate() error {
	if u.Name == "" {
		return ErrNameRequired
	}
	if len(u.Name) < 2 || len(u.Name) > 100 {
		return ErrNameLength
	}
	if u.Email == "" {
		return ErrEmailRequired
	}
	if !EmailRegex.MatchString(u.Email) {
		return ErrEmailInvalid
	}
	return nil
}

// NewUser creates a new user with a hashed password
func NewUser(name, email, password string) (*User, error) {
	user := &User{
		Name:  strings.TrimSpace(name),
		Email: NormalizeEmail(email),
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := user.SetPassword(password); err != nil {
		return nil, err
	}
	return user, nil
}

// SetPassword replaces the stored hash and drops any outstanding reset token
func (u *User) SetPassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		// only for passwords over bcrypt's 72 byte limit
		return ErrPasswordTooLong
	}
	u.PasswordHash = string(hash)
	u.ClearResetToken()
	return nil
}

// CheckPassword reports whether password matches the stored hash
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// SetResetToken remembers token as the only one ResetPassword will accept
func (u *User) SetResetToken(token string, expiresAt time.Time) {
	u.ResetTokenDigest = digest(token)
	u.ResetExpiresAt = &expiresAt
}

// ResetTokenMatches checks token against the outstanding reset token at now
func (u *User) ResetTokenMatches(token string, now time.Time) error {
	if u.ResetTokenDigest == "" || u.ResetTokenDigest != digest(token) {
		return ErrResetTokenInvalid
	}
	if u.ResetExpiresAt == nil || now.After(*u.ResetExpiresAt) {
		return ErrResetTokenExpired
	}
	return nil
}

// ClearResetToken makes any issued reset token unusable
func (u *User) ClearResetToken() {
	u.ResetTokenDigest = ""
	u.ResetExpiresAt = nil
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
