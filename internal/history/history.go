// Package history serves the customer's past orders, falling back to the
// device cache while the backend is unreachable.
package history

import (
	"context"
	"errors"
	"sync"

	"fueldelivery/internal/backend"
	"fueldelivery/internal/logger"
	"fueldelivery/internal/model"
)

var ErrOffline = errors.New("offline: changes are disabled until the connection is back")

type Cache interface {
	Save(ctx context.Context, orders []model.Order)
	Load(ctx context.Context) []model.Order
}

// Result is one rendering of the history. Offline marks cached data.
type Result struct {
	Orders  []model.Order
	Offline bool
}

type Section struct {
	Title  string
	Orders []model.Order
}

type Service struct {
	orders backend.Orders
	cache  Cache
	log    logger.ILogger

	mu     sync.RWMutex
	online bool
}

func New(orders backend.Orders, cache Cache, log logger.ILogger) *Service {
	return &Service{orders: orders, cache: cache, log: log, online: true}
}

func (s *Service) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

func (s *Service) SetOnline(online bool) {
	s.mu.Lock()
	s.online = online
	s.mu.Unlock()
}

// Fetch returns the live list and refreshes the cache, or the cached list when
// offline. Errors other than lost connectivity are returned.
func (s *Service) Fetch(ctx context.Context) (Result, error) {
	if !s.Online() {
		return s.cached(ctx), nil
	}

	orders, err := s.orders.ListOrders(ctx, backend.OrderQuery{})
	if err != nil {
		if backend.IsUnreachable(err) {
			s.log.Warning("history fetch failed, serving cache", logger.Error(err))
			s.SetOnline(false)
			return s.cached(ctx), nil
		}
		return Result{}, err
	}

	s.cache.Save(ctx, orders)
	return Result{Orders: orders}, nil
}

// Delete removes one of the user's orders. It is refused while offline.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if !s.Online() {
		return ErrOffline
	}

	if err := s.orders.DeleteOrder(ctx, id); err != nil {
		if backend.IsUnreachable(err) {
			s.SetOnline(false)
			return ErrOffline
		}
		return err
	}
	return nil
}

// Follow keeps the service in step with m until ctx is done. Every
// connectivity change produces a fresh Result through fn; coming back online
// triggers a live refetch.
func (s *Service) Follow(ctx context.Context, m *Monitor, fn func(Result, error)) {
	m.Run(ctx, func(online bool) {
		s.SetOnline(online)
		fn(s.Fetch(ctx))
	})
}

func (s *Service) cached(ctx context.Context) Result {
	return Result{Orders: s.cache.Load(ctx), Offline: true}
}

// GroupByMonth splits orders into "Jan 2006" sections, keeping the input order
// within and across sections.
func GroupByMonth(orders []model.Order) []Section {
	var sections []Section
	index := map[string]int{}

	for _, o := range orders {
		title := o.CreatedAt.Format("Jan 2006")
		i, ok := index[title]
		if !ok {
			i = len(sections)
			index[title] = i
			sections = append(sections, Section{Title: title})
		}
		sections[i].Orders = append(sections[i].Orders, o)
	}
	return sections
}
