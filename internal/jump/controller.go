// Package jump drives a rendering surface to a requested range, falling back to
// the start of the range once when the surface rejects the full range.
package jump

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Paintersrp/ebref/internal/cfi"
)

// State is the controller's lifecycle position.
type State int

const (
	Idle State = iota
	PendingJump
	FallbackPending
)

func (s State) String() string {
	switch s {
	case PendingJump:
		return "pending"
	case FallbackPending:
		return "fallback"
	default:
		return "idle"
	}
}

// Outcome describes how a consumed request ended.
type Outcome int

const (
	NoRequest Outcome = iota
	Displayed
	DisplayedFallback
	Dropped
	Superseded
)

func (o Outcome) String() string {
	switch o {
	case Displayed:
		return "displayed"
	case DisplayedFallback:
		return "displayed-fallback"
	case Dropped:
		return "dropped"
	case Superseded:
		return "superseded"
	default:
		return "no-request"
	}
}

// Navigator is the display half of the renderer contract.
type Navigator interface {
	// Ready blocks until content can be displayed.
	Ready(ctx context.Context) error
	Display(ctx context.Context, rng string) error
}

// Controller holds at most one live jump request.
type Controller struct {
	mu      sync.Mutex
	state   State
	target  string
	gen     uint64
	claimed uint64
	log     *zap.Logger
}

// NewController returns an idle controller. A nil logger disables logging.
func NewController(log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{log: log}
}

// State reports the current state and target.
func (c *Controller) State() (State, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.target
}

// Request replaces any pending request with target.
func (c *Controller) Request(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.state = PendingJump
	c.target = target
}

// Consume attempts the pending request, if any. Each request is consumed at
// most once and the controller is idle again afterwards unless a newer request
// arrived meanwhile.
func (c *Controller) Consume(ctx context.Context, nav Navigator) Outcome {
	c.mu.Lock()
	if c.state != PendingJump || c.claimed == c.gen {
		c.mu.Unlock()
		return NoRequest
	}
	gen := c.gen
	target := c.target
	c.claimed = gen
	c.mu.Unlock()

	if err := nav.Ready(ctx); err != nil {
		c.log.Debug("renderer not ready, attempting anyway", zap.Error(err))
	}
	if !c.current(gen) {
		return Superseded
	}

	err := nav.Display(ctx, target)
	if err == nil {
		if !c.finish(gen) {
			return Superseded
		}
		return Displayed
	}
	c.log.Debug("display rejected", zap.String("target", target), zap.Error(err))

	anchor, ok := cfi.StartAnchor(target)
	if !ok || anchor == target {
		if !c.finish(gen) {
			return Superseded
		}
		return Dropped
	}
	if !c.advance(gen, anchor) {
		return Superseded
	}

	err = nav.Display(ctx, anchor)
	if !c.finish(gen) {
		return Superseded
	}
	if err != nil {
		c.log.Debug("fallback rejected", zap.String("anchor", anchor), zap.Error(err))
		return Dropped
	}
	return DisplayedFallback
}

// Jump requests target and consumes it immediately.
func (c *Controller) Jump(ctx context.Context, nav Navigator, target string) Outcome {
	c.Request(target)
	return c.Consume(ctx, nav)
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Controller) advance(gen uint64, anchor string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.state = FallbackPending
	c.target = anchor
	return true
}

func (c *Controller) finish(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.state = Idle
	c.target = ""
	return true
}
