package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"fueldelivery/internal/config"
	"fueldelivery/internal/model"
	"fueldelivery/internal/mw"
	"fueldelivery/internal/service"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

const minPasswordLength = 6

func SignUpHandler(users Users, cfg *config.Config, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		req.Email = strings.TrimSpace(req.Email)
		if !strings.Contains(req.Email, "@") || len(req.Password) < minPasswordLength {
			http.Error(w, "valid email and a password of at least 6 characters required", http.StatusBadRequest)
			return
		}

		role := model.RoleCustomer
		if cfg.IsAdmin(req.Email) {
			role = model.RoleAdmin
		}

		user, err := users.Register(r.Context(), req.Email, req.Password, role)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrEmailTaken):
				http.Error(w, "email already registered", http.StatusConflict)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		respondWithToken(w, http.StatusCreated, user, cfg, now())
	}
}

func SignInHandler(users Users, cfg *config.Config, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		user, err := users.Authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidCredentials):
				http.Error(w, "invalid email or password", http.StatusUnauthorized)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		respondWithToken(w, http.StatusOK, user, cfg, now())
	}
}

// RefreshHandler reissues a token for a still valid session. The role is
// reloaded so admin grants take effect on refresh.
func RefreshHandler(users Users, cfg *config.Config, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.UserID(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		user, err := users.Get(r.Context(), userID)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrUserNotFound):
				http.Error(w, "unauthorized", http.StatusUnauthorized)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		respondWithToken(w, http.StatusOK, user, cfg, now())
	}
}

// SignOutHandler exists so clients have a single place to end a session.
// Tokens are stateless and simply expire.
func SignOutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func respondWithToken(w http.ResponseWriter, status int, user *model.User, cfg *config.Config, now time.Time) {
	token, err := mw.IssueToken(cfg.JWTSecret, user.ID, user.Role, cfg.TokenTTL, now)
	if err != nil {
		http.Error(w, "token generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	writeJSON(w, status, authResponse{
		Token:     token,
		ExpiresAt: now.Add(cfg.TokenTTL),
		User:      user,
	})
}
