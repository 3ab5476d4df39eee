// Package user holds accounts, password hashing and the authenticated-user
// request context.
package user

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrExists             = errors.New("username or email already registered")
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalid wraps every registration validation failure.
	ErrInvalid = errors.New("invalid registration")
)

// User is a registered account.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// Registration is the input to Store.Register.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// Validate checks the registration fields before anything is stored.
func (r *Registration) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	switch {
	case r.Username == "" || r.Email == "" || r.Password == "":
		return fmt.Errorf("%w: username, email and password are required", ErrInvalid)
	case len([]rune(r.Username)) < 3:
		return fmt.Errorf("%w: username must be at least 3 characters", ErrInvalid)
	case len(r.Password) < 6:
		return fmt.Errorf("%w: password must be at least 6 characters", ErrInvalid)
	case !emailPattern.MatchString(r.Email):
		return fmt.Errorf("%w: invalid email address", ErrInvalid)
	}
	return nil
}

// Store persists users.
type Store interface {
	// Register validates r and creates the account. It returns ErrExists when
	// the username or email is taken.
	Register(ctx context.Context, r Registration) (*User, error)

	// Authenticate matches login against username or email and checks the
	// password, stamping the last login time on success.
	Authenticate(ctx context.Context, login, password string) (*User, error)

	Get(ctx context.Context, id int64) (*User, error)
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type contextKey int

const ctxKeyUserID contextKey = 0

// WithUserID returns a context carrying the authenticated user's ID.
func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, id)
}

// UserIDFromContext returns the authenticated user's ID, if any.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKeyUserID).(int64)
	return id, ok && id > 0
}
