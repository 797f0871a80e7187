// internal/transport/monitor.go
package transport

import (
	"time"

	"go.uber.org/zap"

	"superkey-service/internal/utils"
)

// monitorPollSlice keeps the monitor responsive to stop requests while
// sleeping out the configured interval.
const monitorPollSlice = 100 * time.Millisecond

// EnableAutoReconnect turns the background reconnect monitor on or off.
// Enabling while connected starts the monitor immediately.
func (t *Transport) EnableAutoReconnect(enabled bool) {
	t.mu.Lock()
	t.reconnectEnabled = enabled
	connected := t.connected
	t.mu.Unlock()

	if enabled && connected {
		t.startMonitor()
	} else if !enabled {
		t.stopMonitor()
	}
}

// SetReconnectInterval changes the monitor's poll period, floored at
// 500ms. A running monitor picks the new interval up on its next cycle
// restart.
func (t *Transport) SetReconnectInterval(interval time.Duration) {
	if interval < 500*time.Millisecond {
		interval = 500 * time.Millisecond
	}
	t.mu.Lock()
	t.reconnectInterval = interval
	t.mu.Unlock()
}

// AutoReconnectEnabled reports whether the reconnect monitor is armed.
func (t *Transport) AutoReconnectEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reconnectEnabled
}

func (t *Transport) startMonitor() {
	t.mu.Lock()
	if t.monitorStop != nil {
		t.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	t.monitorStop = stop
	t.monitorDone = done
	interval := t.reconnectInterval
	t.mu.Unlock()

	go t.monitorWorker(stop, done, interval)
}

func (t *Transport) stopMonitor() {
	t.mu.Lock()
	stop, done := t.monitorStop, t.monitorDone
	t.monitorStop, t.monitorDone = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.logger.Warn("Reconnect monitor did not stop within timeout")
	}
}

// monitorWorker periodically verifies the link and, after a detected
// loss, retries the last known port once it reappears in the system
// port list.
func (t *Transport) monitorWorker(stop <-chan struct{}, done chan<- struct{}, interval time.Duration) {
	defer close(done)

	for {
		remaining := interval
		for remaining > 0 {
			slice := monitorPollSlice
			if remaining < slice {
				slice = remaining
			}
			if !sleepInterruptible(stop, slice) {
				return
			}
			remaining -= slice
		}

		t.checkConnectionStatus()
	}
}

// checkConnectionStatus runs one monitor cycle: detect a vanished port
// on a live link, or attempt a reconnect after a loss.
func (t *Transport) checkConnectionStatus() {
	t.mu.Lock()
	if !t.reconnectEnabled || t.reconnecting {
		t.mu.Unlock()
		return
	}
	connected := t.connected
	lost := t.connectionLost
	manual := t.manualDisconnect
	port := t.lastConnectedPort
	t.mu.Unlock()

	switch {
	case connected:
		if port != "" && !t.portPresent(port) {
			t.logger.Warn("Serial port vanished", zap.String("port", port))
			t.noteConnectionLost()
			t.teardown(false)
		}
	case lost && !manual:
		if port == "" {
			return
		}
		if !t.portPresent(port) {
			// device not back yet, keep waiting
			return
		}
		t.tryReconnect(port)
	}
}

func (t *Transport) portPresent(port string) bool {
	ports, err := t.listPorts()
	if err != nil {
		return false
	}
	for _, p := range ports {
		if p == port {
			return true
		}
	}
	return false
}

func (t *Transport) tryReconnect(port string) {
	t.mu.Lock()
	if t.connected || t.reconnecting {
		t.mu.Unlock()
		return
	}
	t.reconnecting = true
	t.cfg.Port = port
	t.linkLog = utils.NewLinkLogger(t.base, port)
	t.mu.Unlock()

	t.logger.Info("Attempting automatic reconnect", zap.String("port", port))
	err := t.Connect()

	t.mu.Lock()
	t.reconnecting = false
	if err == nil {
		t.connectionLost = false
	}
	t.mu.Unlock()

	if err != nil {
		t.logger.Warn("Automatic reconnect failed", zap.String("port", port), zap.Error(err))
		t.notifyAutoReconnect(false, port, false)
		return
	}

	t.logger.Info("Automatic reconnect succeeded", zap.String("port", port))
	t.notifyAutoReconnect(true, port, true)
}

// noteConnectionLost marks the link as lost so the monitor starts
// watching for the port to return. Manual disconnects are not losses.
func (t *Transport) noteConnectionLost() {
	t.mu.Lock()
	if !t.manualDisconnect {
		t.connectionLost = true
	}
	t.mu.Unlock()
}
