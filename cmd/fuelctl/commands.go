package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"fueldelivery/internal/estimator"
	"fueldelivery/internal/history"
	"fueldelivery/internal/lifecycle"
	"fueldelivery/internal/model"
)

func signUpCommand() *cli.Command {
	return &cli.Command{
		Name:  "signup",
		Usage: "create an account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Required: true},
			&cli.StringFlag{Name: "confirm", Required: true, Usage: "repeat the password"},
		},
		Action: withEnv(func(c *cli.Context, e *env) error {
			_, err := e.accounts().SignUp(c.Context, c.String("email"), c.String("password"), c.String("confirm"))
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "welcome, %s\n", c.String("email"))
			return nil
		}),
	}
}

func signInCommand() *cli.Command {
	return &cli.Command{
		Name:  "signin",
		Usage: "sign in to an existing account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Required: true},
		},
		Action: withEnv(func(c *cli.Context, e *env) error {
			p, err := e.accounts().SignIn(c.Context, c.String("email"), c.String("password"))
			if err != nil {
				return err
			}
			name := p.FullName()
			if name == "" {
				name = c.String("email")
			}
			fmt.Fprintf(c.App.Writer, "signed in as %s\n", name)
			return nil
		}),
	}
}

func signOutCommand() *cli.Command {
	return &cli.Command{
		Name:  "signout",
		Usage: "end the current session",
		Action: withEnv(func(c *cli.Context, e *env) error {
			return e.accounts().SignOut(c.Context)
		}),
	}
}

func orderCommand() *cli.Command {
	return &cli.Command{
		Name:  "order",
		Usage: "place and follow fuel orders",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "request a delivery",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "location", Required: true},
					&cli.StringFlag{Name: "fuel", Value: string(model.FuelGasoline), Usage: "Gasoline or Diesel"},
					&cli.IntFlag{Name: "amount", Required: true, Usage: "liters, 1 to 100"},
					&cli.StringFlag{Name: "company", Value: string(model.CompanySlovnaft), Usage: "Slovnaft, SHELL or OMV"},
				},
				Action: withEnv(func(c *cli.Context, e *env) error {
					lc := e.lifecycle(nil)
					p := lifecycle.OrderParams{
						Location: c.String("location"),
						FuelType: model.FuelType(c.String("fuel")),
						Amount:   c.Int("amount"),
						Company:  model.Company(c.String("company")),
					}
					id, err := lc.CreateOrder(c.Context, p)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "order %d placed, estimated delivery %s after approval\n",
						id, estimator.Label(p.Amount, p.Company))
					return nil
				}),
			},
			{
				Name:   "track",
				Usage:  "follow the active delivery until it completes",
				Action: withEnv(trackAction),
			},
			{
				Name:  "history",
				Usage: "list past orders",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "follow", Aliases: []string{"f"}, Usage: "keep running and refresh when connectivity changes"},
				},
				Action: withEnv(func(c *cli.Context, e *env) error {
					h, err := e.history()
					if err != nil {
						return err
					}
					if c.Bool("follow") {
						stop := e.keepSessionFresh(c.Context)
						defer stop()
						followHistory(c.Context, c.App.Writer, h, history.NewMonitor(e.api, e.cfg.ProbeInterval, e.log))
						return nil
					}
					res, err := h.Fetch(c.Context)
					if err != nil {
						return err
					}
					printHistory(c.App.Writer, res)
					return nil
				}),
			},
			{
				Name:      "delete",
				Usage:     "remove an order from history",
				ArgsUsage: "ORDER_ID",
				Action: withEnv(func(c *cli.Context, e *env) error {
					id, err := orderIDArg(c)
					if err != nil {
						return err
					}
					h, err := e.history()
					if err != nil {
						return err
					}
					if _, err := h.Fetch(c.Context); err != nil {
						return err
					}
					if err := h.Delete(c.Context, id); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "order %d deleted\n", id)
					return nil
				}),
			},
		},
	}
}

func trackAction(c *cli.Context, e *env) error {
	if _, err := e.sess.Require(); err != nil {
		return err
	}
	stop := e.keepSessionFresh(c.Context)
	defer stop()

	o := track(c.Context, c.App.Writer, e.lifecycle, e.cfg.PollInterval, time.Now)
	if o != nil {
		fmt.Fprintf(c.App.Writer, "order %d delivered: %d l of %s to %s\n", o.OrderID, o.Amount, o.FuelType, o.Location)
	}
	return nil
}

// track runs the lifecycle tracker and redraws its active order every
// interval. It returns the delivered order, or nil when ctx ends first.
func track(ctx context.Context, w io.Writer, newTracker func(lifecycle.Notifier) *lifecycle.Client,
	interval time.Duration, now func() time.Time) *model.Order {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	delivered := make(chan model.Order, 1)
	lc := newTracker(lifecycle.NotifierFunc(func(o model.Order) {
		select {
		case delivered <- o:
		default:
		}
		cancel()
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		lc.Run(ctx)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-done
			fmt.Fprintln(w)
			select {
			case o := <-delivered:
				return &o
			default:
				return nil
			}
		case <-ticker.C:
		}

		if o := lc.Active(); o != nil {
			fmt.Fprintf(w, "\rorder %d: %s remaining   ", o.OrderID, lifecycle.TimeRemaining(*o, now()))
		} else {
			fmt.Fprint(w, "\rno delivery in progress   ")
		}
	}
}

// followHistory reprints the history on every connectivity change until ctx is done.
func followHistory(ctx context.Context, w io.Writer, h *history.Service, m *history.Monitor) {
	h.Follow(ctx, m, func(res history.Result, err error) {
		if err != nil {
			fmt.Fprintf(w, "history unavailable: %s\n", describe(err))
			return
		}
		printHistory(w, res)
	})
}

func adminCommand() *cli.Command {
	return &cli.Command{
		Name:  "admin",
		Usage: "approve deliveries",
		Subcommands: []*cli.Command{
			{
				Name:  "pending",
				Usage: "list orders waiting for approval",
				Action: withEnv(func(c *cli.Context, e *env) error {
					pending, err := e.approvals().ListPending(c.Context)
					if err != nil {
						return err
					}
					printPending(c.App.Writer, pending)
					return nil
				}),
			},
			{
				Name:      "approve",
				Usage:     "approve a pending order",
				ArgsUsage: "ORDER_ID",
				Action: withEnv(func(c *cli.Context, e *env) error {
					id, err := orderIDArg(c)
					if err != nil {
						return err
					}
					d, err := e.approvals().Approve(c.Context, id)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "order %d approved, deliver to %s\n", id, d.Order.Location)
					if d.NavigationURL != "" {
						fmt.Fprintf(c.App.Writer, "directions: %s\n", d.NavigationURL)
					}
					return nil
				}),
			},
			{
				Name:  "watch",
				Usage: "keep the pending list on screen as orders change",
				Action: withEnv(func(c *cli.Context, e *env) error {
					if _, err := e.sess.Require(); err != nil {
						return err
					}
					stop := e.keepSessionFresh(c.Context)
					defer stop()

					w := e.watcher()
					w.Run(c.Context, func(pending []model.Order) {
						fmt.Fprintf(c.App.Writer, "--- %s\n", time.Now().Format(time.TimeOnly))
						printPending(c.App.Writer, pending)
					})
					return nil
				}),
			},
		},
	}
}

func profileCommand() *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "view and edit your profile",
		Subcommands: []*cli.Command{
			{
				Name: "show",
				Action: withEnv(func(c *cli.Context, e *env) error {
					p, err := e.accounts().EnsureProfile(c.Context)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "name:   %s\navatar: %s\n", p.FullName(), p.AvatarURL)
					return nil
				}),
			},
			{
				Name: "update",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "first", Required: true},
					&cli.StringFlag{Name: "last", Required: true},
				},
				Action: withEnv(func(c *cli.Context, e *env) error {
					p, err := e.accounts().UpdateProfile(c.Context, c.String("first"), c.String("last"))
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "saved %s\n", p.FullName())
					return nil
				}),
			},
			{
				Name:      "avatar",
				ArgsUsage: "IMAGE_FILE",
				Action: withEnv(func(c *cli.Context, e *env) error {
					path := c.Args().First()
					if path == "" {
						return fmt.Errorf("image file is required")
					}
					f, err := os.Open(path)
					if err != nil {
						return err
					}
					defer f.Close()

					url, err := e.accounts().UploadAvatar(c.Context, f, mime.TypeByExtension(filepath.Ext(path)))
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "avatar uploaded: %s\n", url)
					return nil
				}),
			},
		},
	}
}

func orderIDArg(c *cli.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("a numeric ORDER_ID is required")
	}
	return id, nil
}

func printHistory(w io.Writer, res history.Result) {
	if res.Offline {
		fmt.Fprintln(w, "offline: showing the last saved history")
	}
	if len(res.Orders) == 0 {
		fmt.Fprintln(w, "no orders yet")
		return
	}
	for _, s := range history.GroupByMonth(res.Orders) {
		fmt.Fprintln(w, s.Title)
		for _, o := range s.Orders {
			fmt.Fprintf(w, "  #%-5d %-10s %3d l %-8s %-8s %8s EUR  %s\n",
				o.OrderID, o.Status, o.Amount, o.FuelType, o.Company, o.Price.StringFixed(2), o.Location)
		}
	}
}

func printPending(w io.Writer, pending []model.Order) {
	if len(pending) == 0 {
		fmt.Fprintln(w, "nothing waiting for approval")
		return
	}
	for _, o := range pending {
		fmt.Fprintf(w, "#%-5d %s  %3d l %-8s %-8s %s\n",
			o.OrderID, o.CreatedAt.Local().Format("02 Jan 15:04"), o.Amount, o.FuelType, o.Company, o.Location)
	}
}
