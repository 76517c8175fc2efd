package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"fueldelivery/internal/account"
	"fueldelivery/internal/approval"
	"fueldelivery/internal/backend/memory"
	"fueldelivery/internal/cache"
	"fueldelivery/internal/estimator"
	"fueldelivery/internal/history"
	"fueldelivery/internal/lifecycle"
	"fueldelivery/internal/logger"
	"fueldelivery/internal/model"
	"fueldelivery/internal/session"
)

func demoCommand() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "run a full order scenario against an in-memory fuel station",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "amount", Value: 1, Usage: "liters to order"},
			&cli.StringFlag{Name: "company", Value: string(model.CompanySlovnaft)},
		},
		Action: func(c *cli.Context) error {
			log := logger.New("fuelctl-demo", c.String("log-level"))
			defer func() { _ = log.Sync() }()
			return runDemo(c.Context, c.App.Writer, log, c.Int("amount"), model.Company(c.String("company")))
		},
	}
}

func runDemo(ctx context.Context, w io.Writer, log logger.ILogger, amount int, company model.Company) error {
	price := decimal.RequireFromString("1.81")
	station := memory.New(memory.WithAdmins("dispatch@fuel.example"), memory.WithPricePerLiter(price))

	customerSess := session.New(station, log)
	customerAPI := station.Client(customerSess)
	customer := account.New(station, customerAPI, customerSess, log)

	adminSess := session.New(station, log)
	adminAPI := station.Client(adminSess)
	admin := account.New(station, adminAPI, adminSess, log)

	if _, err := customer.SignUp(ctx, "jana@fuel.example", "secret123", "secret123"); err != nil {
		return err
	}
	if _, err := customer.UpdateProfile(ctx, "Jana", "Novak"); err != nil {
		return err
	}
	if _, err := admin.SignUp(ctx, "dispatch@fuel.example", "secret123", "secret123"); err != nil {
		return err
	}
	fmt.Fprintln(w, "customer and dispatcher signed up")

	delivered := make(chan model.Order, 1)
	tracker := lifecycle.New(customerAPI, customerSess, lifecycle.NotifierFunc(func(o model.Order) {
		delivered <- o
	}), log, price, 200*time.Millisecond)

	id, err := tracker.CreateOrder(ctx, lifecycle.OrderParams{
		Location: "Namestie SNP 1, Bratislava",
		FuelType: model.FuelDiesel,
		Amount:   amount,
		Company:  company,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "order %d placed, estimate %s\n", id, estimator.Label(amount, company))

	approvals := approval.New(adminAPI, log)
	pending, err := approvals.ListPending(ctx)
	if err != nil {
		return err
	}
	printPending(w, pending)

	d, err := approvals.Approve(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "dispatcher approved order %d\ndirections: %s\n", id, d.NavigationURL)

	trackCtx, stopTracking := context.WithCancel(ctx)
	defer stopTracking()
	go tracker.Run(trackCtx)

	timeout := time.Duration(estimator.Seconds(amount, company)+5) * time.Second
	select {
	case o := <-delivered:
		fmt.Fprintf(w, "order %d delivered\n", o.OrderID)
	case <-time.After(timeout):
		return fmt.Errorf("order %d was not delivered within %s", id, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	stopTracking()

	store, err := cache.Open(filepath.Join(os.TempDir(), "fuelctl-demo-cache.db"), log)
	if err != nil {
		return err
	}
	defer store.Close()

	h := history.New(customerAPI, store, log)
	res, err := h.Fetch(ctx)
	if err != nil {
		return err
	}
	printHistory(w, res)

	station.SetOnline(false)
	fmt.Fprintln(w, "connection lost")
	res, err = h.Fetch(ctx)
	if err != nil {
		return err
	}
	printHistory(w, res)
	if err := h.Delete(ctx, id); err != nil {
		fmt.Fprintf(w, "delete refused: %s\n", describe(err))
	}

	station.SetOnline(true)
	return customer.SignOut(ctx)
}
