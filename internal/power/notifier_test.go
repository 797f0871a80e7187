// internal/power/notifier_test.go
package power

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"superkey-service/internal/transport"
)

type fakeLink struct {
	mu        sync.Mutex
	connected bool
	commands  []string
}

func (f *fakeLink) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeLink) Send(data string, _ transport.DataFormat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return transport.ErrNotConnected
	}
	f.commands = append(f.commands, data)
	return nil
}

func (f *fakeLink) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.commands))
	copy(out, f.commands)
	return out
}

func TestSleepWakeRoundTrip(t *testing.T) {
	link := &fakeLink{connected: true}
	n := NewNotifier(link, zap.NewNop())
	defer n.Close()
	n.SetEnabled(true)

	n.NotifySleep()
	assert.Equal(t, []string{"sys_set power_mode sleep\n"}, link.sent())
	assert.True(t, n.Sleeping())

	n.NotifyWake()
	assert.Equal(t, []string{
		"sys_set power_mode sleep\n",
		"sys_set power_mode normal\n",
	}, link.sent())
	assert.False(t, n.Sleeping())
}

func TestDuplicateSleepSuppressed(t *testing.T) {
	link := &fakeLink{connected: true}
	n := NewNotifier(link, zap.NewNop())
	defer n.Close()
	n.SetEnabled(true)

	n.NotifySleep()
	n.NotifySleep()
	assert.Len(t, link.sent(), 1)
}

func TestWakeWithoutSleepIgnored(t *testing.T) {
	link := &fakeLink{connected: true}
	n := NewNotifier(link, zap.NewNop())
	defer n.Close()
	n.SetEnabled(true)

	n.NotifyWake()
	assert.Empty(t, link.sent())
}

func TestDisabledNotifierSendsNothing(t *testing.T) {
	link := &fakeLink{connected: true}
	n := NewNotifier(link, zap.NewNop())
	defer n.Close()

	n.NotifySleep()
	n.NotifyWake()
	assert.Empty(t, link.sent())
	assert.False(t, n.Sleeping())
}
