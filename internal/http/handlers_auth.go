package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/google/uuid"
)

// requireAuth resolves the bearer token into a user and stores it in the
// request context. The token subject must still exist; a deleted account gets
// 401, not a ghost identity.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			respondError(w, http.StatusUnauthorized, "Not authorized, no token")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		userID, err := auth.ParseToken(token, []byte(s.cfg.JWTSecret))
		if errors.Is(err, auth.ErrTokenExpired) {
			respondError(w, http.StatusUnauthorized, "Token expired")
			return
		}
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}

		user, err := s.users.GetUserByID(r.Context(), userID)
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, "User not found")
			return
		}
		if err != nil {
			slog.ErrorContext(r.Context(), "User lookup failed", "error", err, "user_id", userID)
			respondError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		ctx := contextWithUser(r.Context(), user)
		next(w, r.WithContext(ctx))
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authPayload is the data object returned by register and login.
type authPayload struct {
	Token string     `json:"token"`
	User  *core.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user := &core.User{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Email:     core.NormalizeEmail(req.Email),
		CreatedAt: time.Now().UTC(),
	}

	var errs []fieldError
	if err := user.Validate(); err != nil {
		errs = append(errs, registrationFieldError(err))
	}
	if err := core.ValidatePassword(req.Password); err != nil {
		errs = append(errs, fieldError{Field: "password", Message: err.Error()})
	}
	if len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.ErrorContext(r.Context(), "Password hash failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	user.PasswordHash = hash

	if err := s.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			respondError(w, http.StatusBadRequest, "User already exists with this email")
			return
		}
		slog.ErrorContext(r.Context(), "User create failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	token, err := auth.GenerateToken(user.ID, []byte(s.cfg.JWTSecret), s.cfg.TokenTTL)
	if err != nil {
		slog.ErrorContext(r.Context(), "Token generation failed", "error", err, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	slog.InfoContext(r.Context(), "User registered", "user_id", user.ID)
	respondMessage(w, http.StatusCreated, "User registered successfully", authPayload{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.users.GetUserByEmail(r.Context(), core.NormalizeEmail(req.Email))
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "User lookup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		respondError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := auth.GenerateToken(user.ID, []byte(s.cfg.JWTSecret), s.cfg.TokenTTL)
	if err != nil {
		slog.ErrorContext(r.Context(), "Token generation failed", "error", err, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	slog.InfoContext(r.Context(), "User logged in", "user_id", user.ID)
	respondMessage(w, http.StatusOK, "Login successful", authPayload{Token: token, User: user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, userFromContext(r.Context()))
}

// handleLogout is an acknowledgement only: tokens are stateless, the client
// discards its copy.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	slog.InfoContext(r.Context(), "User logged out", "user_id", userFromContext(r.Context()).ID)
	respondMessage(w, http.StatusOK, "Logged out successfully", nil)
}

func registrationFieldError(err error) fieldError {
	switch {
	case errors.Is(err, core.ErrInvalidName):
		return fieldError{Field: "name", Message: err.Error()}
	case errors.Is(err, core.ErrInvalidEmail):
		return fieldError{Field: "email", Message: err.Error()}
	default:
		return fieldError{Field: "body", Message: err.Error()}
	}
}
