// internal/handler/event_bus_test.go
package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"superkey-service/internal/config"
	"superkey-service/internal/transport"
)

func TestEventBusFanOut(t *testing.T) {
	bus := NewEventBus()
	go bus.Start()

	first := bus.Subscribe()
	second := bus.Subscribe()

	bus.Publish(Event{Type: "link_status", Source: "bridge", Timestamp: time.Now()})

	for _, sub := range []<-chan Event{first, second} {
		select {
		case event := <-sub:
			assert.Equal(t, "link_status", event.Type)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestBridgeEventsFlowThroughBus(t *testing.T) {
	link := transport.New(&config.SerialConfig{
		Port:     "COM_TEST",
		BaudRate: 1000000,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
	}, zap.NewNop())
	h := NewWebSocketHandler(link, zap.NewNop())

	sub := h.EventBus().Subscribe()

	bridge := NewBridgeEventHandler(h, zap.NewNop())
	bridge.OnConnectionChanged(true)

	select {
	case event := <-sub:
		assert.Equal(t, "link_status", event.Type)
		assert.Equal(t, true, event.Data["connected"])
	case <-time.After(time.Second):
		t.Fatal("bus did not deliver the bridge event")
	}
}
