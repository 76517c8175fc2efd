package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fueldelivery/internal/blob"
	"fueldelivery/internal/logger"
	"fueldelivery/internal/model"
	"fueldelivery/internal/mw"
	"fueldelivery/internal/service"
)

const avatarLinkTTL = time.Hour

type profileRequest struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	OnboardingSeen bool   `json:"onboarding_seen"`
}

type avatarResponse struct {
	AvatarURL string `json:"avatar_url"`
}

// GetProfileHandler returns the stored profile with the avatar name replaced
// by a freshly signed link.
func GetProfileHandler(profiles Profiles, avatars *blob.AvatarStore, log logger.ILogger, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.UserID(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		p, err := profiles.Get(r.Context(), userID)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrProfileNotFound):
				http.Error(w, "profile not found", http.StatusNotFound)
			default:
				internalError(log, w, "profile lookup failed", err)
			}
			return
		}

		if p.AvatarURL != "" {
			p.AvatarURL = avatars.SignedURL(p.AvatarURL, avatarLinkTTL, now())
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func CreateProfileHandler(profiles Profiles, log logger.ILogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.UserID(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req profileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		p := model.Profile{
			UserID:         userID,
			FirstName:      req.FirstName,
			LastName:       req.LastName,
			OnboardingSeen: req.OnboardingSeen,
		}
		if err := profiles.Create(r.Context(), p); err != nil {
			switch {
			case errors.Is(err, service.ErrProfileExists):
				http.Error(w, "profile already exists", http.StatusConflict)
			default:
				internalError(log, w, "profile create failed", err)
			}
			return
		}

		writeJSON(w, http.StatusCreated, p)
	}
}

// UpdateProfileHandler never touches the avatar; uploads go through the avatar endpoint.
func UpdateProfileHandler(profiles Profiles, log logger.ILogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.UserID(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req profileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		p, err := profiles.Get(r.Context(), userID)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrProfileNotFound):
				http.Error(w, "profile not found", http.StatusNotFound)
			default:
				internalError(log, w, "profile lookup failed", err)
			}
			return
		}

		p.FirstName = req.FirstName
		p.LastName = req.LastName
		p.OnboardingSeen = req.OnboardingSeen

		if err := profiles.Update(r.Context(), *p); err != nil {
			internalError(log, w, "profile update failed", err)
			return
		}

		writeJSON(w, http.StatusOK, p)
	}
}

func DeleteProfileHandler(profiles Profiles, log logger.ILogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.UserID(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		if err := profiles.Delete(r.Context(), userID); err != nil {
			switch {
			case errors.Is(err, service.ErrProfileNotFound):
				http.Error(w, "profile not found", http.StatusNotFound)
			default:
				internalError(log, w, "profile delete failed", err)
			}
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// UploadAvatarHandler takes the raw image as the request body, typed by Content-Type.
func UploadAvatarHandler(profiles Profiles, avatars *blob.AvatarStore, log logger.ILogger, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.UserID(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		name, err := avatars.Save(r.Body, r.Header.Get("Content-Type"))
		if err != nil {
			switch {
			case errors.Is(err, blob.ErrUnsupportedType):
				http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
			case errors.Is(err, blob.ErrTooLarge):
				http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			default:
				internalError(log, w, "avatar save failed", err)
			}
			return
		}

		if err := profiles.SetAvatar(r.Context(), userID, name); err != nil {
			switch {
			case errors.Is(err, service.ErrProfileNotFound):
				http.Error(w, "profile not found", http.StatusNotFound)
			default:
				internalError(log, w, "avatar update failed", err)
			}
			return
		}

		writeJSON(w, http.StatusOK, avatarResponse{AvatarURL: avatars.SignedURL(name, avatarLinkTTL, now())})
	}
}

func ServeAvatarHandler(avatars *blob.AvatarStore, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		q := r.URL.Query()

		if err := avatars.Verify(name, q.Get("exp"), q.Get("sig"), now()); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}

		f, err := avatars.Open(name)
		if err != nil {
			http.Error(w, "avatar not found", http.StatusNotFound)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			http.Error(w, "avatar not found", http.StatusNotFound)
			return
		}
		http.ServeContent(w, r, name, info.ModTime(), f)
	}
}
