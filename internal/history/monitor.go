package history

import (
	"context"
	"time"

	"fueldelivery/internal/backend"
	"fueldelivery/internal/logger"
)

// Monitor probes the backend periodically and reports connectivity changes.
type Monitor struct {
	prober   backend.Prober
	interval time.Duration
	log      logger.ILogger
}

func NewMonitor(prober backend.Prober, interval time.Duration, log logger.ILogger) *Monitor {
	return &Monitor{prober: prober, interval: interval, log: log}
}

// Run probes immediately and then every interval until ctx is done. onChange
// runs for the first result and for every later transition.
func (m *Monitor) Run(ctx context.Context, onChange func(online bool)) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	first := true
	var online bool
	for {
		up := m.prober.Probe(ctx) == nil
		if ctx.Err() != nil {
			return
		}
		if first || up != online {
			if !first {
				m.log.Info("connectivity changed", logger.Bool("online", up))
			}
			first = false
			online = up
			onChange(up)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
