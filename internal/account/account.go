// Package account covers sign-up, sign-in, sign-out and the user's profile.
package account

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"fueldelivery/internal/backend"
	"fueldelivery/internal/logger"
	"fueldelivery/internal/model"
	"fueldelivery/internal/session"
)

var (
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrNameRequired     = errors.New("first and last name are required")
)

type Service struct {
	auth     backend.Auth
	profiles backend.Profiles
	sess     *session.Session
	log      logger.ILogger
}

func New(auth backend.Auth, profiles backend.Profiles, sess *session.Session, log logger.ILogger) *Service {
	return &Service{auth: auth, profiles: profiles, sess: sess, log: log}
}

// SignUp registers the user, starts a session and creates the profile. New
// users have just seen the onboarding, so it is marked as seen.
func (s *Service) SignUp(ctx context.Context, email, password, confirm string) (*model.Profile, error) {
	if password != confirm {
		return nil, ErrPasswordMismatch
	}

	tok, err := s.auth.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.sess.Set(tok)

	p := model.Profile{UserID: tok.User.ID, OnboardingSeen: true}
	if err := s.profiles.CreateProfile(ctx, p); err != nil && !isConflict(err) {
		return nil, err
	}

	s.log.Info("user signed up", logger.String("user_id", tok.User.ID))
	return &p, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Profile, error) {
	tok, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.sess.Set(tok)

	return s.EnsureProfile(ctx)
}

// SignOut resets the onboarding flag so the next sign-in shows it again,
// then ends the session. Backend failures do not keep the user signed in.
func (s *Service) SignOut(ctx context.Context) error {
	st, ok := s.sess.Current()
	if !ok {
		return nil
	}

	if p, err := s.profiles.GetProfile(ctx); err == nil {
		p.OnboardingSeen = false
		if _, err := s.profiles.UpdateProfile(ctx, *p); err != nil {
			s.log.Warning("reset onboarding failed", logger.Error(err))
		}
	} else if !errors.Is(err, backend.ErrNotFound) {
		s.log.Warning("profile lookup on sign out failed", logger.Error(err))
	}

	if err := s.auth.SignOut(ctx, st.Token); err != nil {
		s.log.Warning("backend sign out failed", logger.Error(err))
	}

	s.sess.Clear()
	s.log.Info("user signed out", logger.String("user_id", st.User.ID))
	return nil
}

// EnsureProfile returns the profile, creating an empty one on first use.
func (s *Service) EnsureProfile(ctx context.Context) (*model.Profile, error) {
	p, err := s.profiles.GetProfile(ctx)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, backend.ErrNotFound) {
		return nil, err
	}

	if err := s.profiles.CreateProfile(ctx, model.Profile{UserID: s.sess.UserID()}); err != nil && !isConflict(err) {
		return nil, err
	}
	return s.profiles.GetProfile(ctx)
}

func (s *Service) UpdateProfile(ctx context.Context, firstName, lastName string) (*model.Profile, error) {
	firstName, lastName = strings.TrimSpace(firstName), strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return nil, ErrNameRequired
	}

	current, err := s.EnsureProfile(ctx)
	if err != nil {
		return nil, err
	}
	current.FirstName = firstName
	current.LastName = lastName

	return s.profiles.UpdateProfile(ctx, *current)
}

// UploadAvatar stores the image and returns a link to it.
func (s *Service) UploadAvatar(ctx context.Context, r io.Reader, contentType string) (string, error) {
	if _, err := s.EnsureProfile(ctx); err != nil {
		return "", err
	}
	return s.profiles.UploadAvatar(ctx, r, contentType)
}

func isConflict(err error) bool {
	var pe *backend.PersistenceError
	return errors.As(err, &pe) && pe.Status == http.StatusConflict
}
