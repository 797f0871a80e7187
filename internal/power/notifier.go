// internal/power/notifier.go
package power

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"superkey-service/internal/transport"
)

const (
	sleepCommand  = "sys_set power_mode sleep\n"
	normalCommand = "sys_set power_mode normal\n"

	wakeRetryAttempts = 15
	wakeRetryDelay    = time.Second
)

// Link is the transport surface the notifier needs.
type Link interface {
	IsConnected() bool
	Send(data string, format transport.DataFormat) error
}

// Notifier mirrors the host's sleep/wake state to the device so it
// can power its display down alongside the machine. Host power events
// arrive via NotifySleep/NotifyWake from whatever platform layer
// observes them.
type Notifier struct {
	logger *zap.Logger
	link   Link

	mu       sync.Mutex
	enabled  bool
	sleeping bool
	stopCh   chan struct{}
}

// NewNotifier creates a power notifier bound to the transport.
func NewNotifier(link Link, logger *zap.Logger) *Notifier {
	return &Notifier{
		logger: logger.With(zap.String("component", "power")),
		link:   link,
		stopCh: make(chan struct{}),
	}
}

// SetEnabled turns sleep/wake forwarding on or off.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	n.enabled = enabled
	n.mu.Unlock()
	n.logger.Info("Power forwarding toggled", zap.Bool("enabled", enabled))
}

// Enabled reports whether forwarding is active.
func (n *Notifier) Enabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.enabled
}

// Sleeping reports whether the device was last told to sleep.
func (n *Notifier) Sleeping() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sleeping
}

// NotifySleep tells the device the host is going to sleep. Repeated
// sleep notifications while already sleeping are suppressed.
func (n *Notifier) NotifySleep() {
	n.mu.Lock()
	if !n.enabled || n.sleeping {
		n.mu.Unlock()
		return
	}
	n.sleeping = true
	n.mu.Unlock()

	if err := n.link.Send(sleepCommand, transport.FormatASCII); err != nil {
		n.logger.Warn("Device sleep command not delivered", zap.Error(err))
		return
	}
	n.logger.Info("Device sleep command sent")
}

// NotifyWake tells the device the host woke up. If the link is down
// (typical right after resume, before auto-reconnect kicks in), a
// background retry keeps trying for a bounded period.
func (n *Notifier) NotifyWake() {
	n.mu.Lock()
	if !n.enabled || !n.sleeping {
		n.mu.Unlock()
		return
	}
	n.sleeping = false
	n.mu.Unlock()

	if n.link.IsConnected() {
		if err := n.link.Send(normalCommand, transport.FormatASCII); err == nil {
			n.logger.Info("Device wake command sent")
			return
		}
	}

	n.logger.Info("Link down, retrying wake command after reconnect")
	go n.retryWake()
}

func (n *Notifier) retryWake() {
	for i := 0; i < wakeRetryAttempts; i++ {
		select {
		case <-n.stopCh:
			return
		case <-time.After(wakeRetryDelay):
		}

		if !n.Enabled() {
			return
		}
		if n.link.IsConnected() {
			if err := n.link.Send(normalCommand, transport.FormatASCII); err == nil {
				n.logger.Info("Device wake command sent after reconnect",
					zap.Int("waited_seconds", i+1))
				return
			}
		}
	}
	n.logger.Warn("Wake command not delivered, reconnect wait timed out")
}

// Close stops any pending wake retry.
func (n *Notifier) Close() {
	close(n.stopCh)
}
