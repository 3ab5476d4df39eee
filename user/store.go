package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const userSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL,
	last_login    DATETIME
)`

// SQLiteStore persists users in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore ensures the users table exists on db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(userSchema); err != nil {
		return nil, fmt.Errorf("create user schema: %w", err)
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Register creates a new account.
func (s *SQLiteStore) Register(ctx context.Context, r Registration) (*User, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE username = ? OR email = ?", r.Username, r.Email).Scan(&n); err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if n > 0 {
		return nil, ErrExists
	}

	hash, err := HashPassword(r.Password)
	if err != nil {
		return nil, err
	}
	u := &User{Username: r.Username, Email: r.Email, PasswordHash: hash, CreatedAt: s.now()}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, created_at) VALUES (?,?,?,?)",
		u.Username, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("insert user id: %w", err)
	}
	return u, nil
}

// Authenticate checks credentials, accepting either the username or email.
func (s *SQLiteStore) Authenticate(ctx context.Context, login, password string) (*User, error) {
	u, err := s.scanOne(ctx, "WHERE username = ? OR email = ?", login, login)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if _, err := s.db.ExecContext(ctx, "UPDATE users SET last_login = ? WHERE id = ?", now, u.ID); err != nil {
		return nil, fmt.Errorf("stamp last login: %w", err)
	}
	u.LastLogin = &now
	return u, nil
}

// Get returns the user with the given ID.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*User, error) {
	return s.scanOne(ctx, "WHERE id = ?", id)
}

func (s *SQLiteStore) scanOne(ctx context.Context, where string, args ...any) (*User, error) {
	var u User
	var lastLogin sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, created_at, last_login FROM users "+where, args...,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return &u, nil
}
