package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"fueldelivery/internal/account"
	"fueldelivery/internal/approval"
	"fueldelivery/internal/backend"
	"fueldelivery/internal/cache"
	"fueldelivery/internal/config"
	"fueldelivery/internal/history"
	"fueldelivery/internal/lifecycle"
	"fueldelivery/internal/logger"
	"fueldelivery/internal/session"
)

// refreshInterval is how often long running commands check the session token.
const refreshInterval = time.Minute

// env is the client side object graph for one command invocation.
type env struct {
	cfg     *config.Config
	log     logger.ILogger
	sess    *session.Session
	api     *backend.Client
	cacheDB *cache.Store
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "fuelctl-session.json"
	}
	return filepath.Join(dir, "fuelctl", "session.json")
}

func newEnv(c *cli.Context) (*env, error) {
	cfg, err := config.Load(nil, nil)
	if err != nil {
		return nil, err
	}
	if v := c.String("backend"); v != "" {
		cfg.BackendURL = v
	}
	if v := c.String("cache"); v != "" {
		cfg.CachePath = v
	}

	log := logger.New("fuelctl", c.String("log-level"))
	authClient := backend.NewClient(cfg.BackendURL, log)
	sess := session.New(authClient, log)

	path := c.String("session")
	if err := sess.Restore(path); err != nil {
		log.Warning("ignoring unreadable session file", logger.Error(err))
	}
	sess.OnChange(func(session.State, bool) {
		if err := sess.Persist(path); err != nil {
			log.Warning("session not saved", logger.Error(err))
		}
	})

	return &env{
		cfg:  cfg,
		log:  log,
		sess: sess,
		api:  authClient.WithTokens(sess),
	}, nil
}

// keepSessionFresh renews the token in the background while a long running
// command holds the terminal. The returned func stops it and marks the
// session as no longer in the foreground.
func (e *env) keepSessionFresh(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	e.sess.SetForeground(true)
	go func() {
		defer close(done)
		e.sess.RunAutoRefresh(ctx, refreshInterval)
	}()

	return func() {
		cancel()
		<-done
		e.sess.SetForeground(false)
	}
}

func (e *env) close() {
	if e.cacheDB != nil {
		_ = e.cacheDB.Close()
	}
	_ = e.log.Sync()
}

func (e *env) accounts() *account.Service {
	return account.New(e.api, e.api, e.sess, e.log)
}

func (e *env) lifecycle(n lifecycle.Notifier) *lifecycle.Client {
	return lifecycle.New(e.api, e.sess, n, e.log, e.cfg.Price(), e.cfg.PollInterval)
}

func (e *env) history() (*history.Service, error) {
	store, err := cache.Open(e.cfg.CachePath, e.log)
	if err != nil {
		return nil, err
	}
	e.cacheDB = store
	return history.New(e.api, store, e.log), nil
}

func (e *env) approvals() *approval.Client {
	return approval.New(e.api, e.log)
}

// withEnv builds the env for an action and tears it down afterwards.
func withEnv(fn func(c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := newEnv(c)
		if err != nil {
			return err
		}
		defer e.close()
		return fn(c, e)
	}
}

func (e *env) watcher() *approval.Watcher {
	return approval.NewWatcher(e.approvals(), e.api, e.log)
}
