package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/GoCodeAlone/taskpilot/task"
	"github.com/GoCodeAlone/taskpilot/user"
)

// tokenClaims is the JWT payload. The subject is the user ID.
type tokenClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// signToken issues an HS256 token for u valid for ttl.
func signToken(secret string, u *user.User, now time.Time, ttl time.Duration) (string, error) {
	claims := tokenClaims{
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// parseToken validates token and returns the user ID it was issued to.
func parseToken(secret, token string) (int64, error) {
	if token == "" {
		return 0, errors.New("missing token")
	}
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	return id, nil
}

// generateSecret creates a random 32-byte secret.
func generateSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// jwtSecret returns the configured JWT secret, generating one if empty.
func (s *Server) jwtSecret() string {
	if s.cfg.Auth.JWTSecret != "" {
		return s.cfg.Auth.JWTSecret
	}
	s.secretOnce.Do(func() {
		s.generatedSecret = generateSecret()
	})
	return s.generatedSecret
}

func (s *Server) tokenTTL() time.Duration {
	if s.cfg.Auth.TokenTTL > 0 {
		return s.cfg.Auth.TokenTTL
	}
	return 24 * time.Hour
}

func (s *Server) issueToken(u *user.User) (string, error) {
	return signToken(s.jwtSecret(), u, time.Now(), s.tokenTTL())
}

func (s *Server) verifyToken(token string) (int64, error) {
	return parseToken(s.jwtSecret(), token)
}

// loginRequest is the body accepted by POST /api/auth/login. Username may
// also be the account's email address.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// authResponse is the body returned by a successful login or registration.
type authResponse struct {
	Token string     `json:"token"`
	User  *user.User `json:"user"`
}

// handleRegister creates an account with its default list and issues a token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req user.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := s.users.Register(r.Context(), req)
	switch {
	case errors.Is(err, user.ErrInvalid):
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, user.ErrExists):
		writeJSONError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("register user", slog.Any("err", err))
		writeJSONError(w, http.StatusInternalServerError, "could not register user")
		return
	}

	if err := s.createDefaultList(r.Context(), u.ID); err != nil {
		s.logger.Error("create default list", slog.Int64("user_id", u.ID), slog.Any("err", err))
	}
	s.respondWithToken(w, http.StatusCreated, u)
}

func (s *Server) createDefaultList(ctx context.Context, userID int64) error {
	_, err := s.tasks.CreateList(ctx, userID, &task.List{
		Name:      task.DefaultListName,
		Icon:      task.DefaultListIcon,
		Color:     task.DefaultListColor,
		SortOrder: 0,
	})
	return err
}

// handleLogin validates credentials and issues a JWT.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	u, err := s.users.Authenticate(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if errors.Is(err, user.ErrInvalidCredentials) {
		writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		s.logger.Error("authenticate", slog.Any("err", err))
		writeJSONError(w, http.StatusInternalServerError, "could not log in")
		return
	}
	s.respondWithToken(w, http.StatusOK, u)
}

func (s *Server) respondWithToken(w http.ResponseWriter, status int, u *user.User) {
	token, err := s.issueToken(u)
	if err != nil {
		s.logger.Error("sign jwt", slog.Any("err", err))
		writeJSONError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, status, authResponse{Token: token, User: u})
}

// handleMe returns the currently authenticated user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	uid, _ := user.UserIDFromContext(r.Context())
	u, err := s.users.Get(r.Context(), uid)
	if errors.Is(err, user.ErrNotFound) {
		writeJSONError(w, http.StatusUnauthorized, "user no longer exists")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// authMiddleware enforces JWT authentication on wrapped handlers.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeJSONError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
			return
		}
		uid, err := s.verifyToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
			return
		}
		ctx := user.WithUserID(r.Context(), uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
