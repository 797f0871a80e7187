// internal/transport/transport.go
package transport

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"superkey-service/internal/config"
	"superkey-service/internal/utils"
)

const (
	rxQueueCapacity = 10000
	txQueueCapacity = 1000

	enqueueTimeout = 100 * time.Millisecond
	workerJoinWait = 1 * time.Second

	// USB CDC devices need a settle period around DTR changes.
	openSettleDelay = 50 * time.Millisecond
	dtrSettleDelay  = 100 * time.Millisecond
)

var (
	// ErrNotConnected is returned by operations requiring an open link.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrQueueFull is returned when the outbound queue cannot accept
	// an item within the enqueue timeout.
	ErrQueueFull = errors.New("transport: outbound queue full")
)

// Transport owns the serial link to the companion device: connection
// lifecycle, buffered receive, queued transmit and link statistics.
// Exactly one receive and one transmit worker exist while connected.
type Transport struct {
	logger  *zap.Logger
	base    *zap.Logger
	linkLog *utils.LinkLogger

	mu        sync.RWMutex
	cfg       ConnectionConfig
	port      serial.Port
	connected bool
	stopCh    chan struct{}
	workers   *sync.WaitGroup

	rxFormat DataFormat
	txFormat DataFormat

	// injectable for tests; serial.Port is an interface
	open      func(string, *serial.Mode) (serial.Port, error)
	listPorts func() ([]string, error)

	rxQueue chan []byte
	txQueue chan []byte

	rxPaused  atomic.Bool
	txNewline atomic.Bool

	stats statistics

	cbMu                sync.RWMutex
	onConnectionChanged func(connected bool)
	onDataReceived      func(data []byte)
	onAutoReconnect     func(success bool, port string, reconnected bool)

	autoMu   sync.Mutex
	autoStop chan struct{}
	autoDone chan struct{}

	// auto-reconnect monitor state, guarded by mu
	reconnectEnabled  bool
	reconnectInterval time.Duration
	lastConnectedPort string
	connectionLost    bool
	manualDisconnect  bool
	reconnecting      bool
	monitorStop       chan struct{}
	monitorDone       chan struct{}
}

// New creates a transport with defaults taken from the serial configuration.
func New(cfg *config.SerialConfig, logger *zap.Logger) *Transport {
	t := &Transport{
		logger:  logger.With(zap.String("component", "transport")),
		base:    logger,
		linkLog: utils.NewLinkLogger(logger, cfg.Port),
		cfg: ConnectionConfig{
			Port:         cfg.Port,
			BaudRate:     cfg.BaudRate,
			DataBits:     cfg.DataBits,
			StopBits:     cfg.StopBits,
			Parity:       cfg.Parity,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RTS:          cfg.RTS,
			DTR:          cfg.DTR,
		},
		rxFormat:          FormatASCII,
		txFormat:          FormatASCII,
		open:              serial.Open,
		listPorts:         serial.GetPortsList,
		rxQueue:           make(chan []byte, rxQueueCapacity),
		txQueue:           make(chan []byte, txQueueCapacity),
		reconnectEnabled:  cfg.AutoReconnect,
		reconnectInterval: cfg.ReconnectInterval,
	}

	if t.reconnectInterval < 500*time.Millisecond {
		t.reconnectInterval = 2 * time.Second
	}

	return t
}

// SetConnectionChangedHandler registers the connection state callback.
// Invoked outside the transport lock.
func (t *Transport) SetConnectionChangedHandler(fn func(connected bool)) {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	t.onConnectionChanged = fn
}

// SetDataReceivedHandler registers the inbound data callback.
func (t *Transport) SetDataReceivedHandler(fn func(data []byte)) {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	t.onDataReceived = fn
}

// SetAutoReconnectHandler registers the auto-reconnect notification callback.
func (t *Transport) SetAutoReconnectHandler(fn func(success bool, port string, reconnected bool)) {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	t.onAutoReconnect = fn
}

// Configure merges the supplied fields into the connection configuration.
// RTS/DTR changes are applied immediately on a live link; everything else
// takes effect on the next connect.
func (t *Transport) Configure(update ConfigUpdate) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.cfg.merge(update); err != nil {
		return fmt.Errorf("configure transport: %w", err)
	}

	if update.Port != nil {
		t.linkLog = utils.NewLinkLogger(t.base, t.cfg.Port)
	}

	if t.connected && t.port != nil && (update.RTS != nil || update.DTR != nil) {
		if err := t.applyModemLinesLocked(); err != nil {
			t.stats.addError()
			return fmt.Errorf("apply RTS/DTR: %w", err)
		}
	}

	return nil
}

func (t *Transport) applyModemLinesLocked() error {
	if err := t.port.SetRTS(t.cfg.RTS); err != nil {
		return err
	}
	return t.port.SetDTR(t.cfg.DTR)
}

// Config returns a copy of the current connection configuration.
func (t *Transport) Config() ConnectionConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg
}

// IsConnected reports the current link state.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// Connect opens the serial device with the configured parameters and
// spawns the receive/transmit workers. Connecting while connected is a
// no-op. Statistics are reset on success.
func (t *Transport) Connect() error {
	t.mu.Lock()

	if t.connected {
		t.mu.Unlock()
		return nil
	}

	if t.cfg.Port == "" {
		t.stats.addError()
		t.mu.Unlock()
		return fmt.Errorf("connect: no port configured")
	}

	mode, err := t.cfg.mode()
	if err != nil {
		t.stats.addError()
		t.mu.Unlock()
		return fmt.Errorf("connect: %w", err)
	}

	port, err := t.open(t.cfg.Port, mode)
	if err != nil {
		t.stats.addError()
		t.linkLog.LogConnection("connect", false, err)
		t.mu.Unlock()
		return fmt.Errorf("open %s: %w", t.cfg.Port, err)
	}

	if err := port.SetReadTimeout(t.cfg.ReadTimeout); err != nil {
		port.Close()
		t.stats.addError()
		t.mu.Unlock()
		return fmt.Errorf("set read timeout: %w", err)
	}

	// Modem lines start low; raise the configured levels after the
	// port settles so CDC devices see a clean DTR edge.
	time.Sleep(openSettleDelay)
	if err := port.SetDTR(t.cfg.DTR); err != nil {
		t.logger.Warn("Failed to set DTR", zap.Error(err))
	}
	if err := port.SetRTS(t.cfg.RTS); err != nil {
		t.logger.Warn("Failed to set RTS", zap.Error(err))
	}
	time.Sleep(dtrSettleDelay)

	t.drainQueuesLocked()

	t.port = port
	t.connected = true
	t.stopCh = make(chan struct{})
	t.workers = &sync.WaitGroup{}
	t.lastConnectedPort = t.cfg.Port
	t.connectionLost = false
	t.manualDisconnect = false
	t.stats.reset()

	t.workers.Add(2)
	go t.rxWorker(port, t.stopCh, t.workers)
	go t.txWorker(port, t.stopCh, t.workers)

	startMonitor := t.reconnectEnabled
	t.mu.Unlock()

	t.linkLog.LogConnection("connect", true, nil)

	if startMonitor {
		t.startMonitor()
	}

	t.notifyConnectionChanged(true)
	return nil
}

// Disconnect tears the link down. Idempotent; stops auto-send, joins the
// workers within a bounded timeout, closes the device and drains both
// queues before firing the connection-changed notification.
func (t *Transport) Disconnect() {
	t.teardown(true)
}

// teardown stops the session. manual distinguishes a caller-requested
// disconnect from a detected link loss (which keeps reconnect armed).
func (t *Transport) teardown(manual bool) {
	t.StopAutoSend()

	t.mu.Lock()
	if !t.connected {
		t.manualDisconnect = manual || t.manualDisconnect
		t.mu.Unlock()
		return
	}

	t.manualDisconnect = manual
	if manual {
		t.connectionLost = false
	}

	close(t.stopCh)
	workers := t.workers
	port := t.port
	t.port = nil
	t.connected = false
	t.mu.Unlock()

	if !waitTimeout(workers, workerJoinWait) {
		t.logger.Warn("Transport workers did not stop within timeout")
	}

	if port != nil {
		// Dropping DTR lets the device notice the host going away.
		port.SetDTR(false)
		time.Sleep(20 * time.Millisecond)
		if err := port.Close(); err != nil {
			t.logger.Warn("Failed to close serial port", zap.Error(err))
		}
	}

	t.mu.Lock()
	t.drainQueuesLocked()
	t.mu.Unlock()

	final := t.stats.snapshot()
	t.linkLog.LogTransfer(final.RxBytes, final.TxBytes, final.Errors)
	t.linkLog.LogConnection("disconnect", true, nil)
	t.notifyConnectionChanged(false)
}

func (t *Transport) drainQueuesLocked() {
	for {
		select {
		case <-t.rxQueue:
		default:
			goto tx
		}
	}
tx:
	for {
		select {
		case <-t.txQueue:
		default:
			return
		}
	}
}

// Send encodes data per format, optionally appends CRLF, and enqueues it
// for the transmit worker. Fails without blocking when disconnected, on
// a malformed payload, or when the outbound queue is full.
func (t *Transport) Send(data string, format DataFormat) error {
	if !t.IsConnected() {
		t.stats.addError()
		return ErrNotConnected
	}

	if format == "" {
		t.mu.RLock()
		format = t.txFormat
		t.mu.RUnlock()
	}

	payload, err := EncodePayload(data, format)
	if err != nil {
		t.stats.addError()
		return err
	}

	if t.txNewline.Load() {
		payload = append(payload, '\r', '\n')
	}

	select {
	case t.txQueue <- payload:
		return nil
	case <-time.After(enqueueTimeout):
		t.stats.addError()
		return ErrQueueFull
	}
}

// Receive drains all currently queued inbound chunks and renders them
// in the requested format.
func (t *Transport) Receive(format DataFormat) string {
	if format == "" {
		t.mu.RLock()
		format = t.rxFormat
		t.mu.RUnlock()
	}

	var all []byte
	for {
		select {
		case chunk := <-t.rxQueue:
			all = append(all, chunk...)
		default:
			return RenderPayload(all, format)
		}
	}
}

// ClearReceiveBuffer discards all queued inbound chunks.
func (t *Transport) ClearReceiveBuffer() {
	for {
		select {
		case <-t.rxQueue:
		default:
			return
		}
	}
}

// PauseReceive stops inbound chunks from being queued or reported;
// byte counters still advance.
func (t *Transport) PauseReceive(paused bool) {
	t.rxPaused.Store(paused)
}

// SetNewlineOnSend appends CRLF to every sent payload when enabled.
func (t *Transport) SetNewlineOnSend(enabled bool) {
	t.txNewline.Store(enabled)
}

// SetSendFormat sets the default outbound format.
func (t *Transport) SetSendFormat(format DataFormat) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.txFormat = format
}

// SetReceiveFormat sets the default inbound rendering format.
func (t *Transport) SetReceiveFormat(format DataFormat) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rxFormat = format
}

// Stats returns a snapshot of the link statistics.
func (t *Transport) Stats() StatsSnapshot {
	return t.stats.snapshot()
}

// ToggleRTS flips the RTS line on a live link and returns the new level.
func (t *Transport) ToggleRTS() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected || t.port == nil {
		return false, ErrNotConnected
	}

	next := !t.cfg.RTS
	if err := t.port.SetRTS(next); err != nil {
		t.stats.addError()
		return t.cfg.RTS, fmt.Errorf("toggle RTS: %w", err)
	}
	t.cfg.RTS = next
	return next, nil
}

// ToggleDTR flips the DTR line on a live link and returns the new level.
func (t *Transport) ToggleDTR() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected || t.port == nil {
		return false, ErrNotConnected
	}

	next := !t.cfg.DTR
	if err := t.port.SetDTR(next); err != nil {
		t.stats.addError()
		return t.cfg.DTR, fmt.Errorf("toggle DTR: %w", err)
	}
	t.cfg.DTR = next
	return next, nil
}

// ResetTargetDevice hardware-resets the companion device by pulsing
// RTS+DTR high for 100ms, low for 500ms, then restoring the configured
// levels.
func (t *Transport) ResetTargetDevice() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected || t.port == nil {
		return ErrNotConnected
	}

	pulse := func(rts, dtr bool) error {
		if err := t.port.SetRTS(rts); err != nil {
			return err
		}
		return t.port.SetDTR(dtr)
	}

	if err := pulse(true, true); err != nil {
		t.stats.addError()
		return fmt.Errorf("reset device: %w", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := pulse(false, false); err != nil {
		t.stats.addError()
		return fmt.Errorf("reset device: %w", err)
	}
	time.Sleep(500 * time.Millisecond)

	if err := pulse(t.cfg.RTS, t.cfg.DTR); err != nil {
		t.stats.addError()
		return fmt.Errorf("reset device: %w", err)
	}

	return nil
}

// StartAutoSend repeats Send with the given payload at a fixed interval
// while the link is connected. A running auto-send loop is replaced.
func (t *Transport) StartAutoSend(data string, interval time.Duration) {
	t.StopAutoSend()

	if interval <= 0 {
		interval = time.Second
	}

	stop := make(chan struct{})
	done := make(chan struct{})

	t.autoMu.Lock()
	t.autoStop = stop
	t.autoDone = done
	t.autoMu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if data != "" && t.IsConnected() {
				if err := t.Send(data, ""); err != nil {
					t.logger.Debug("Auto-send failed", zap.Error(err))
				}
			}
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

// StopAutoSend stops the auto-send loop and joins it within 1s.
func (t *Transport) StopAutoSend() {
	t.autoMu.Lock()
	stop, done := t.autoStop, t.autoDone
	t.autoStop, t.autoDone = nil, nil
	t.autoMu.Unlock()

	if stop == nil {
		return
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.logger.Warn("Auto-send loop did not stop within timeout")
	}
}

// rxWorker polls the port for inbound data. Transient read errors are
// counted and retried after a bounded backoff; only the session stop
// signal terminates the loop.
func (t *Transport) rxWorker(port serial.Port, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	buf := make([]byte, 4096)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := port.Read(buf)
		if err != nil {
			t.stats.addError()
			t.noteConnectionLost()
			if !sleepInterruptible(stop, 100*time.Millisecond) {
				return
			}
			continue
		}
		if n == 0 {
			// read timeout, idle link
			continue
		}

		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		t.stats.addRx(n)

		if t.rxPaused.Load() {
			continue
		}

		select {
		case t.rxQueue <- chunk:
		default:
			// inbound queue full, drop the chunk
			t.stats.addError()
		}

		t.notifyDataReceived(chunk)
	}
}

// txWorker drains the outbound queue, writing each item fully. Write
// errors are logged and counted but never terminate the worker.
func (t *Transport) txWorker(port serial.Port, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-stop:
			return
		case data := <-t.txQueue:
			if _, err := port.Write(data); err != nil {
				t.stats.addError()
				t.noteConnectionLost()
				t.logger.Warn("Serial write failed", zap.Error(err))
				continue
			}
			port.Drain()
			t.stats.addTx(len(data))
		}
	}
}

func (t *Transport) notifyConnectionChanged(connected bool) {
	t.cbMu.RLock()
	fn := t.onConnectionChanged
	t.cbMu.RUnlock()
	if fn != nil {
		fn(connected)
	}
}

func (t *Transport) notifyDataReceived(data []byte) {
	t.cbMu.RLock()
	fn := t.onDataReceived
	t.cbMu.RUnlock()
	if fn != nil {
		fn(data)
	}
}

func (t *Transport) notifyAutoReconnect(success bool, port string, reconnected bool) {
	t.cbMu.RLock()
	fn := t.onAutoReconnect
	t.cbMu.RUnlock()
	if fn != nil {
		fn(success, port, reconnected)
	}
}

// waitTimeout waits for the group up to d; reports whether it finished.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// sleepInterruptible sleeps for d unless stop fires first; reports
// whether the sleep completed.
func sleepInterruptible(stop <-chan struct{}, d time.Duration) bool {
	select {
	case <-stop:
		return false
	case <-time.After(d):
		return true
	}
}
