package collaborators

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker is implemented by every collaborator client.
type HealthChecker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

// HealthPoller periodically checks every registered collaborator and
// logs transitions between healthy and unhealthy so operators notice a
// degraded Payments or Directory dependency before it causes request
// failures.
type HealthPoller struct {
	checkers []HealthChecker
	logger   zerolog.Logger
	interval time.Duration

	mu         sync.RWMutex
	lastHealth map[string]bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewHealthPoller(logger zerolog.Logger, interval time.Duration, checkers ...HealthChecker) *HealthPoller {
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	return &HealthPoller{
		checkers:   checkers,
		logger:     logger.With().Str("component", "collaborator_health_poller").Logger(),
		interval:   interval,
		lastHealth: make(map[string]bool),
		done:       make(chan struct{}),
	}
}

func (hp *HealthPoller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	hp.cancel = cancel
	go hp.loop(ctx)
}

func (hp *HealthPoller) Stop() {
	if hp.cancel != nil {
		hp.cancel()
	}
	<-hp.done
}

func (hp *HealthPoller) loop(ctx context.Context) {
	defer close(hp.done)
	hp.poll(ctx)
	ticker := time.NewTicker(hp.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hp.poll(ctx)
		}
	}
}

func (hp *HealthPoller) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, hp.interval/2)
	defer cancel()

	for _, c := range hp.checkers {
		err := c.HealthCheck(pollCtx)
		healthy := err == nil

		hp.mu.Lock()
		was, known := hp.lastHealth[c.Name()]
		hp.lastHealth[c.Name()] = healthy
		hp.mu.Unlock()

		if known && was != healthy {
			transition := "recovered"
			if !healthy {
				transition = "degraded"
			}
			ev := hp.logger.Warn().Str("collaborator", c.Name()).Str("transition", transition)
			if err != nil {
				ev = ev.AnErr("error", err)
			}
			ev.Msg("collaborator health changed")
		}
	}
}

// IsHealthy returns the last known health for a collaborator by name.
func (hp *HealthPoller) IsHealthy(name string) bool {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	return hp.lastHealth[name]
}
