// Package prompt asks the user whether an origin may use connector methods.
//
// Each request opens a prompt and waits for the first of three events: an
// answer, the prompt window being closed, or the deadline. Whichever comes
// first resolves the waiting caller; the others are ignored.
package prompt

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akshaybapat6365/dark-wallet/internal/logger"
	"github.com/akshaybapat6365/dark-wallet/internal/metrics"
	"github.com/akshaybapat6365/dark-wallet/internal/permission"
	"github.com/akshaybapat6365/dark-wallet/pkg/types"
)

// DefaultTimeout is how long a prompt stays open before it counts as denied.
const DefaultTimeout = 60 * time.Second

// Surface shows a prompt to the user. Open returns once the prompt is
// visible; the answer arrives later through Answer or WindowClosed.
type Surface interface {
	Open(ctx context.Context, p types.PermissionRequestMsg) error
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(ctx context.Context, p types.PermissionRequestMsg) error

func (f SurfaceFunc) Open(ctx context.Context, p types.PermissionRequestMsg) error {
	return f(ctx, p)
}

type pending struct {
	msg      types.PermissionRequestMsg
	openedAt time.Time
	deadline time.Time
	timer    *time.Timer
	result   chan []string
}

// Coordinator tracks open prompts. It implements permission.Controller.
type Coordinator struct {
	mu      sync.Mutex
	pending map[string]*pending

	timeout time.Duration
	surface Surface
	metrics *metrics.Metrics
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithSurface sets where prompts are shown. Without one, prompts are only
// listed by the HTTP surface.
func WithSurface(s Surface) Option {
	return func(c *Coordinator) { c.surface = s }
}

// WithMetrics records prompt outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator creates a coordinator with no open prompts.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		pending: make(map[string]*pending),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ permission.Controller = (*Coordinator)(nil)

// RequestPermissions opens a prompt for methods and blocks until it is
// resolved. Denial, closing and timeout all return an empty grant with a
// nil error. A cancelled ctx closes the prompt.
func (c *Coordinator) RequestPermissions(ctx context.Context, origin string, methods []string) ([]string, error) {
	if len(methods) == 0 {
		return nil, nil
	}

	id := uuid.NewString()
	now := time.Now()
	p := &pending{
		msg: types.PermissionRequestMsg{
			Kind:      types.KindPermissionRequest,
			RequestID: id,
			Origin:    origin,
			Methods:   slices.Clone(methods),
		},
		openedAt: now,
		deadline: now.Add(c.timeout),
		result:   make(chan []string, 1),
	}

	c.mu.Lock()
	c.pending[id] = p
	p.timer = time.AfterFunc(c.timeout, func() {
		if c.resolve(id, nil, metrics.PromptTimeout) {
			logger.Info(ctx, "permission prompt timed out", "prompt_id", id)
		}
	})
	c.mu.Unlock()

	if c.surface != nil {
		if err := c.surface.Open(ctx, p.msg); err != nil {
			logger.Warn(ctx, "failed to open permission prompt", "prompt_id", id, "error", err)
			c.resolve(id, nil, metrics.PromptError)
		}
	}

	select {
	case granted := <-p.result:
		return granted, nil
	case <-ctx.Done():
		c.resolve(id, nil, metrics.PromptClosed)
		return <-p.result, nil
	}
}

// Answer resolves prompt id with the granted methods. Methods that were not
// offered are dropped. It reports whether the prompt was still open.
func (c *Coordinator) Answer(id string, granted []string) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return false
	}
	return c.resolve(id, permission.Filter(p.msg.Methods, granted), metrics.PromptAnswered)
}

// WindowClosed resolves prompt id with an empty grant.
func (c *Coordinator) WindowClosed(id string) bool {
	return c.resolve(id, nil, metrics.PromptClosed)
}

// resolve removes id from the pending map and delivers granted. Removal
// under the lock makes this at-most-once per id.
func (c *Coordinator) resolve(id string, granted []string, outcome string) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	p.timer.Stop()
	p.result <- granted
	c.metrics.PromptResolved(outcome)
	return true
}

// Pending lists open prompts, oldest first.
func (c *Coordinator) Pending() []types.PermissionRequestMsg {
	c.mu.Lock()
	open := make([]*pending, 0, len(c.pending))
	for _, p := range c.pending {
		open = append(open, p)
	}
	c.mu.Unlock()

	sort.Slice(open, func(i, j int) bool { return open[i].openedAt.Before(open[j].openedAt) })

	out := make([]types.PermissionRequestMsg, 0, len(open))
	for _, p := range open {
		out = append(out, p.msg)
	}
	return out
}

// Get returns the open prompt id and its deadline.
func (c *Coordinator) Get(id string) (types.PermissionRequestMsg, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return types.PermissionRequestMsg{}, time.Time{}, false
	}
	return p.msg, p.deadline, true
}
