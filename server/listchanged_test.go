package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-mcp/mcp-sdk-go/internal/eventbus"
	"github.com/lattice-mcp/mcp-sdk-go/protocol"
)

type recordingNotifier struct {
	notified chan string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{notified: make(chan string, 8)}
}

func (n *recordingNotifier) Notify(ctx context.Context, method string, params any) error {
	n.notified <- method
	return nil
}

func TestListChangedCoalescer_SuppressesWithoutAdvertisedCapability(t *testing.T) {
	bus := eventbus.NewBus()
	defer bus.Close()
	send := newRecordingNotifier()

	c := newListChangedCoalescer(bus, send, protocol.ServerCapabilities{}, 5*time.Millisecond)
	defer c.Stop()

	bus.Publish(eventbus.NewToolsChangedEvent("test"))

	select {
	case method := <-send.notified:
		t.Fatalf("expected no notification without tools.listChanged, got %q", method)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestListChangedCoalescer_EmitsWhenCapabilityAdvertised(t *testing.T) {
	bus := eventbus.NewBus()
	defer bus.Close()
	send := newRecordingNotifier()

	caps := protocol.ServerCapabilities{
		Tools:     &protocol.ListChanged{ListChanged: true},
		Prompts:   &protocol.ListChanged{ListChanged: true},
		Resources: &protocol.ResourcesCapability{ListChanged: true},
	}
	c := newListChangedCoalescer(bus, send, caps, 5*time.Millisecond)
	defer c.Stop()

	bus.Publish(eventbus.NewToolsChangedEvent("test"))
	bus.Publish(eventbus.NewPromptsChangedEvent("test"))
	bus.Publish(eventbus.NewResourcesChangedEvent("test"))

	got := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case method := <-send.notified:
			got[method] = true
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for notification %d", i)
		}
	}
	assert.True(t, got[protocol.MethodNotifyToolsChanged])
	assert.True(t, got[protocol.MethodNotifyPromptsChanged])
	assert.True(t, got[protocol.MethodNotifyResourcesChanged])
}

func TestListChangedCoalescer_PartialCapabilitiesGatePerKind(t *testing.T) {
	bus := eventbus.NewBus()
	defer bus.Close()
	send := newRecordingNotifier()

	caps := protocol.ServerCapabilities{Tools: &protocol.ListChanged{ListChanged: true}}
	c := newListChangedCoalescer(bus, send, caps, 5*time.Millisecond)
	defer c.Stop()

	bus.Publish(eventbus.NewToolsChangedEvent("test"))
	bus.Publish(eventbus.NewPromptsChangedEvent("test"))

	select {
	case method := <-send.notified:
		require.Equal(t, protocol.MethodNotifyToolsChanged, method)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tools/list_changed")
	}

	select {
	case method := <-send.notified:
		t.Fatalf("expected prompts/list_changed to be suppressed, got %q", method)
	case <-time.After(50 * time.Millisecond):
	}
}
