package server

import (
	"context"
	"sync"
	"time"

	"github.com/lattice-mcp/mcp-sdk-go/internal/eventbus"
	"github.com/lattice-mcp/mcp-sdk-go/protocol"
)

// notifier is the subset of session.Session the coalescer needs: a way to
// send a one-way notification without importing session (which would
// create an import cycle, since session never needs to know about server).
type notifier interface {
	Notify(ctx context.Context, method string, params any) error
}

// listChangedCoalescer subscribes to a Bus and folds bursts of
// RegistryChangedEvent/ResourceUpdatedEvent into one notification per
// debounce window, so a batch of registrations produces one listChanged
// instead of one per call.
type listChangedCoalescer struct {
	caps protocol.ServerCapabilities

	mu          sync.Mutex
	pending     map[eventbus.EventType]bool
	updatedURIs map[string]bool
	logMessages []eventbus.LogMessageEvent

	dirty       chan struct{}
	done        chan struct{}
	unsubscribe func()
}

// newListChangedCoalescer starts listening immediately; Stop unsubscribes
// and ends the debounce goroutine. caps gates which list_changed kinds
// flush actually sends: a mutation with the matching capability not
// advertised is swallowed rather than notified.
func newListChangedCoalescer(bus *eventbus.Bus, send notifier, caps protocol.ServerCapabilities, debounce time.Duration) *listChangedCoalescer {
	if debounce <= 0 {
		debounce = 50 * time.Millisecond
	}
	c := &listChangedCoalescer{
		caps:        caps,
		pending:     make(map[eventbus.EventType]bool),
		updatedURIs: make(map[string]bool),
		dirty:       make(chan struct{}, 1),
		done:        make(chan struct{}),
	}

	c.unsubscribe = bus.Subscribe(func(e eventbus.Event) {
		c.mu.Lock()
		switch ev := e.(type) {
		case eventbus.RegistryChangedEvent:
			c.pending[ev.Type()] = true
		case eventbus.ResourceUpdatedEvent:
			c.updatedURIs[ev.URI] = true
		case eventbus.LogMessageEvent:
			c.logMessages = append(c.logMessages, ev)
		}
		c.mu.Unlock()
		select {
		case c.dirty <- struct{}{}:
		default:
		}
	})

	go c.run(send, debounce)
	return c
}

func (c *listChangedCoalescer) run(send notifier, debounce time.Duration) {
	for {
		select {
		case <-c.dirty:
			time.Sleep(debounce)
			c.mu.Lock()
			kinds := c.pending
			c.pending = make(map[eventbus.EventType]bool)
			uris := c.updatedURIs
			c.updatedURIs = make(map[string]bool)
			logs := c.logMessages
			c.logMessages = nil
			c.mu.Unlock()
			c.flush(send, kinds, uris, logs)
		case <-c.done:
			return
		}
	}
}

func (c *listChangedCoalescer) flush(send notifier, kinds map[eventbus.EventType]bool, uris map[string]bool, logs []eventbus.LogMessageEvent) {
	ctx := context.Background()
	if kinds[eventbus.EventToolsChanged] && c.caps.ToolsListChanged() {
		_ = send.Notify(ctx, protocol.MethodNotifyToolsChanged, nil)
	}
	if kinds[eventbus.EventPromptsChanged] && c.caps.PromptsListChanged() {
		_ = send.Notify(ctx, protocol.MethodNotifyPromptsChanged, nil)
	}
	if kinds[eventbus.EventResourcesChanged] && c.caps.ResourcesListChanged() {
		_ = send.Notify(ctx, protocol.MethodNotifyResourcesChanged, nil)
	}
	if kinds[eventbus.EventRootsChanged] {
		_ = send.Notify(ctx, protocol.MethodNotifyRootsChanged, nil)
	}
	for uri := range uris {
		_ = send.Notify(ctx, protocol.MethodNotifyResourceUpdated, protocol.ResourceUpdatedParams{URI: uri})
	}
	for _, lm := range logs {
		_ = send.Notify(ctx, protocol.MethodNotifyMessage, protocol.LogMessageParams{
			Level:  lm.Level,
			Logger: lm.Logger,
			Data:   lm.Data,
		})
	}
}

// Stop unsubscribes from the bus and ends the debounce goroutine.
func (c *listChangedCoalescer) Stop() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	close(c.done)
}
