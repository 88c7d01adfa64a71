// Package lease controls the lifecycle of the GPU-heavy completion backend.
// The backend is too large to keep resident, so it is started on demand when
// a session needs translation or summarization and stopped when released.
package lease

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zzzhilu/concallocalapp/internal/resilience"
)

// State tracks where the backend is in its lifecycle.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateReady
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Service is the backend being managed.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ready(ctx context.Context) bool
}

// Controller serializes start/stop requests for one Service. Requests are
// idempotent: starting an already starting or ready backend is a no-op, as
// is stopping one that is already down.
type Controller struct {
	svc  Service
	poll time.Duration

	mu    sync.Mutex
	state State
}

func NewController(svc Service) *Controller {
	return &Controller{svc: svc, poll: PollInterval}
}

// State reports the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RequestStart brings the backend up if it is not already up or coming up.
// It returns once the start command is issued; readiness is observed
// separately via AwaitReady.
func (c *Controller) RequestStart(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateStarting || c.state == StateReady {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStarting
	c.mu.Unlock()

	slog.Info("starting heavy backend")
	if err := c.svc.Start(ctx); err != nil {
		c.mu.Lock()
		c.state = StateStopped
		c.mu.Unlock()
		return fmt.Errorf("start backend: %w", err)
	}
	return nil
}

// RequestStop brings the backend down unless it is already down or going
// down.
func (c *Controller) RequestStop(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateStopped || c.state == StateStopping {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	c.mu.Unlock()

	slog.Info("stopping heavy backend")
	err := c.svc.Stop(ctx)
	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("stop backend: %w", err)
	}
	return nil
}

// AwaitReady polls the backend until it answers, then marks it ready. The
// poll runs at a fixed interval so a cold model load produces evenly spaced
// probes rather than a backoff that outlives the timeout.
func (c *Controller) AwaitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attempts := int(timeout / c.poll)
	if attempts < 1 {
		attempts = 1
	}
	err := resilience.Retry(ctx, resilience.PollConfig(c.poll, attempts), func() error {
		if c.svc.Ready(ctx) {
			return nil
		}
		return fmt.Errorf("backend not ready")
	})
	if err != nil {
		return fmt.Errorf("await ready: %w", err)
	}

	c.mu.Lock()
	c.state = StateReady
	c.mu.Unlock()
	slog.Info("heavy backend ready")
	return nil
}

// PollInterval spaces readiness probes during warm-up.
const PollInterval = 2 * time.Second
