package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"fueldelivery/internal/approval"
	"fueldelivery/internal/backend"
	"fueldelivery/internal/history"
	"fueldelivery/internal/lifecycle"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "fuelctl",
		Usage: "order fuel delivery and manage deliveries",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "backend", Usage: "fuel station base URL", EnvVars: []string{"BACKEND_URL"}},
			&cli.StringFlag{Name: "cache", Usage: "offline cache file", EnvVars: []string{"CACHE_PATH"}},
			&cli.StringFlag{Name: "session", Usage: "session file", Value: defaultSessionPath()},
			&cli.StringFlag{Name: "log-level", Usage: "log level", Value: "error"},
		},
		Commands: []*cli.Command{
			signUpCommand(),
			signInCommand(),
			signOutCommand(),
			orderCommand(),
			adminCommand(),
			profileCommand(),
			demoCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		os.Exit(1)
	}
}

// describe turns client errors into the message shown to the user.
func describe(err error) string {
	var (
		pe *backend.PersistenceError
		ae *approval.ApprovalError
	)
	switch {
	case errors.Is(err, backend.ErrAuthRequired):
		return "you need to sign in first"
	case errors.Is(err, history.ErrOffline):
		return "you are offline; changes are disabled"
	case errors.Is(err, lifecycle.ErrInvalidOrder):
		return err.Error()
	case errors.As(err, &ae):
		return fmt.Sprintf("order %d could not be approved: %s", ae.OrderID, describe(ae.Err))
	case errors.As(err, &pe):
		if pe.Unreachable() {
			return "the fuel station is unreachable"
		}
		return pe.Message
	}
	return err.Error()
}
