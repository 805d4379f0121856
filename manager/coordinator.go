package manager

import (
	"context"
	"errors"
	"sync"

	"github.com/kestrel-app/kestrel-core/logger"
	"github.com/kestrel-app/kestrel-core/transport"
)

// ErrCoordinatorStopped is returned by Deliver after the coordinator has
// shut down.
var ErrCoordinatorStopped = errors.New("coordinator stopped")

// Coordinator serializes all inbound bridge events through one goroutine, so
// session state only ever mutates from a single place. The channel is
// bounded; a bridge outrunning the core blocks in Deliver rather than
// growing memory without limit.
type Coordinator struct {
	sm     *SessionManager
	events chan *transport.Event

	stopOnce sync.Once
	done     chan struct{}
}

// NewCoordinator creates a coordinator with the given event buffer size.
// A size of zero falls back to an unbuffered channel.
func NewCoordinator(sm *SessionManager, buffer int) *Coordinator {
	if buffer < 0 {
		buffer = 0
	}
	return &Coordinator{
		sm:     sm,
		events: make(chan *transport.Event, buffer),
		done:   make(chan struct{}),
	}
}

// Deliver hands an event to the coordination goroutine. It blocks when the
// buffer is full and returns ErrCoordinatorStopped after shutdown.
func (c *Coordinator) Deliver(ev *transport.Event) error {
	select {
	case <-c.done:
		return ErrCoordinatorStopped
	default:
	}
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrCoordinatorStopped
	}
}

// Run processes events until ctx is cancelled or Stop is called. It blocks;
// run it on its own goroutine. Routing failures are logged and skipped, so
// one bad event never stalls the stream.
func (c *Coordinator) Run(ctx context.Context) {
	log := logger.WithComponent("coordinator")
	defer c.Stop()

	for {
		select {
		case ev := <-c.events:
			if err := c.sm.Route(ev); err != nil {
				log.Warn("dropping unroutable event", "sessionID", ev.SessionID, "kind", ev.Kind, "error", err)
			}
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

// Stop shuts the coordinator down. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}
