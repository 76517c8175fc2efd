// Package session holds the signed-in user's credentials and keeps them fresh.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"fueldelivery/internal/backend"
	"fueldelivery/internal/logger"
	"fueldelivery/internal/model"
)

// refreshWindow is how long before expiry the token gets renewed.
const refreshWindow = 5 * time.Minute

type State struct {
	Token     string
	ExpiresAt time.Time
	User      model.User
}

// Session is created at start-up and handed to every component that needs
// to act as the user. It implements backend.TokenSource.
type Session struct {
	auth backend.Auth
	log  logger.ILogger
	now  func() time.Time

	mu         sync.RWMutex
	state      *State
	foreground bool
	listeners  map[int]func(State, bool)
	nextID     int
}

func New(auth backend.Auth, log logger.ILogger) *Session {
	return &Session{
		auth:       auth,
		log:        log,
		now:        time.Now,
		foreground: true,
		listeners:  map[int]func(State, bool){},
	}
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return ""
	}
	return s.state.Token
}

// Current returns the active state and whether a user is signed in.
func (s *Session) Current() (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return State{}, false
	}
	return *s.state, true
}

func (s *Session) UserID() string {
	st, _ := s.Current()
	return st.User.ID
}

func (s *Session) IsAdmin() bool {
	st, ok := s.Current()
	return ok && st.User.Role == model.RoleAdmin
}

// Require returns the state or backend.ErrAuthRequired.
func (s *Session) Require() (State, error) {
	st, ok := s.Current()
	if !ok {
		return State{}, backend.ErrAuthRequired
	}
	return st, nil
}

// Set installs a freshly issued token.
func (s *Session) Set(tok *backend.Token) {
	st := State{Token: tok.Value, ExpiresAt: tok.ExpiresAt}
	if tok.User != nil {
		st.User = *tok.User
	}

	s.mu.Lock()
	s.state = &st
	s.mu.Unlock()

	s.notify(st, true)
}

func (s *Session) Clear() {
	s.mu.Lock()
	was := s.state != nil
	s.state = nil
	s.mu.Unlock()

	if was {
		s.notify(State{}, false)
	}
}

// OnChange registers fn for sign-in, refresh and sign-out. The returned
// func removes it.
func (s *Session) OnChange(fn func(st State, signedIn bool)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) notify(st State, signedIn bool) {
	s.mu.RLock()
	fns := make([]func(State, bool), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(st, signedIn)
	}
}

// SetForeground pauses or resumes automatic refresh.
func (s *Session) SetForeground(active bool) {
	s.mu.Lock()
	s.foreground = active
	s.mu.Unlock()
}

func (s *Session) Foreground() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.foreground
}

// Refresh renews the token now. A rejected token ends the session.
func (s *Session) Refresh(ctx context.Context) error {
	st, err := s.Require()
	if err != nil {
		return err
	}

	tok, err := s.auth.Refresh(ctx, st.Token)
	if err != nil {
		if errors.Is(err, backend.ErrAuthRequired) {
			s.log.Warning("session expired", logger.String("user_id", st.User.ID))
			s.Clear()
		}
		return err
	}

	s.Set(tok)
	return nil
}

// RunAutoRefresh checks the token every interval until ctx is done and renews
// it when it is close to expiry and the app is in the foreground.
func (s *Session) RunAutoRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshIfDue(ctx)
		}
	}
}

func (s *Session) refreshIfDue(ctx context.Context) {
	if !s.Foreground() {
		return
	}
	st, ok := s.Current()
	if !ok || st.ExpiresAt.Sub(s.now()) > refreshWindow {
		return
	}
	if err := s.Refresh(ctx); err != nil {
		s.log.Error("session refresh failed", logger.Error(err))
	}
}
