// internal/telemetry/scheduler.go
package telemetry

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"superkey-service/internal/config"
	"superkey-service/internal/provider"
	"superkey-service/internal/transport"
)

// Category identifies one telemetry stream.
type Category string

const (
	CategoryTime        Category = "time"
	CategoryAPI         Category = "api"
	CategoryPerformance Category = "performance"
)

// Categories lists the streams in a stable order.
var Categories = []Category{CategoryTime, CategoryAPI, CategoryPerformance}

// minIntervals are the floors a caller cannot configure below.
var minIntervals = map[Category]time.Duration{
	CategoryTime:        100 * time.Millisecond,
	CategoryAPI:         time.Second,
	CategoryPerformance: 500 * time.Millisecond,
}

const (
	minCommandSpacing = time.Millisecond

	// workerJoinWait bounds the Stop join; a worker stuck in a slow
	// provider call is abandoned and exits on its own once the call
	// returns.
	workerJoinWait = 2 * time.Second
)

// Sender is the transport surface the scheduler needs.
type Sender interface {
	IsConnected() bool
	Send(data string, format transport.DataFormat) error
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running       bool                       `json:"running"`
	Connected     bool                       `json:"connected"`
	Enabled       map[Category]bool          `json:"enabled"`
	Intervals     map[Category]time.Duration `json:"intervals"`
	CommandsSent  uint64                     `json:"commands_sent"`
	SendErrors    uint64                     `json:"send_errors"`
	LastSendTime  time.Time                  `json:"last_send_time"`
	ActiveWorkers int                        `json:"active_workers"`
}

// Scheduler pushes periodic telemetry batches to the device: one
// worker per enabled category, each on its own interval. Commands
// within a batch are spaced apart so the device-side shell keeps up.
type Scheduler struct {
	logger *zap.Logger
	sender Sender

	hw      provider.HardwareMonitor
	weather provider.WeatherProvider
	stock   provider.StockProvider

	mu            sync.Mutex
	running       bool
	enabled       map[Category]bool
	intervals     map[Category]time.Duration
	initialDelays map[Category]time.Duration
	spacing       time.Duration
	gpuIndex      int
	stopCh        chan struct{}
	wg            *sync.WaitGroup
	activeWorkers int

	statsMu      sync.Mutex
	commandsSent uint64
	sendErrors   uint64
	lastSendAt   time.Time

	cbMu           sync.RWMutex
	onStateChanged func(Status)
}

// NewScheduler creates a telemetry scheduler wired to the given
// transport and data providers. Any provider may be nil.
func NewScheduler(
	cfg *config.TelemetryConfig,
	sender Sender,
	hw provider.HardwareMonitor,
	weather provider.WeatherProvider,
	stock provider.StockProvider,
	logger *zap.Logger,
) *Scheduler {
	s := &Scheduler{
		logger:  logger.With(zap.String("component", "telemetry")),
		sender:  sender,
		hw:      hw,
		weather: weather,
		stock:   stock,
		enabled: map[Category]bool{
			CategoryTime:        cfg.TimeEnabled,
			CategoryAPI:         cfg.APIEnabled,
			CategoryPerformance: cfg.PerformanceEnabled,
		},
		intervals: map[Category]time.Duration{
			CategoryTime:        cfg.TimeInterval,
			CategoryAPI:         cfg.APIInterval,
			CategoryPerformance: cfg.PerformanceInterval,
		},
		initialDelays: map[Category]time.Duration{
			CategoryTime:        0,
			CategoryAPI:         cfg.APIInitialDelay,
			CategoryPerformance: 0,
		},
		spacing:  cfg.CommandSpacing,
		gpuIndex: cfg.GPUIndex,
	}

	for cat, min := range minIntervals {
		if s.intervals[cat] < min {
			s.intervals[cat] = min
		}
	}
	if s.spacing < minCommandSpacing {
		s.spacing = minCommandSpacing
	}

	return s
}

// SetStateChangedHandler registers a callback fired after every state
// transition (start, stop, enable flips, interval changes).
func (s *Scheduler) SetStateChangedHandler(fn func(Status)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onStateChanged = fn
}

// Start launches one worker per category. Starting a running
// scheduler is a no-op. Workers for disabled categories still run and
// idle so a later enable takes effect without a restart.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.wg = &sync.WaitGroup{}
	s.activeWorkers = len(Categories)

	s.wg.Add(len(Categories))
	for _, cat := range Categories {
		go s.worker(cat, s.stopCh, s.wg)
	}
	s.mu.Unlock()

	s.logger.Info("Telemetry scheduler started")
	s.notifyState()
}

// Stop halts all workers and joins them, bounded by workerJoinWait.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	wg := s.wg
	s.mu.Unlock()

	if !waitTimeout(wg, workerJoinWait) {
		s.logger.Warn("Telemetry workers did not stop in time, abandoning")
	}

	s.mu.Lock()
	s.activeWorkers = 0
	s.mu.Unlock()

	s.logger.Info("Telemetry scheduler stopped")
	s.notifyState()
}

// Running reports whether the scheduler is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetCategoryEnabled flips one stream on or off at runtime.
func (s *Scheduler) SetCategoryEnabled(cat Category, enabled bool) {
	s.mu.Lock()
	if _, ok := s.enabled[cat]; ok {
		s.enabled[cat] = enabled
	}
	s.mu.Unlock()
	s.notifyState()
}

// CategoryEnabled reports whether one stream is enabled.
func (s *Scheduler) CategoryEnabled(cat Category) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled[cat]
}

// SetInterval updates one stream's period, clamped to its floor.
// Takes effect on the worker's next cycle.
func (s *Scheduler) SetInterval(cat Category, interval time.Duration) {
	if min, ok := minIntervals[cat]; ok && interval < min {
		interval = min
	}
	s.mu.Lock()
	if _, ok := s.intervals[cat]; ok {
		s.intervals[cat] = interval
	}
	s.mu.Unlock()
	s.notifyState()
}

// SetSpacing changes the minimum gap between consecutive commands
// within a batch, floored at the send-safety minimum.
func (s *Scheduler) SetSpacing(spacing time.Duration) {
	if spacing < minCommandSpacing {
		spacing = minCommandSpacing
	}
	s.mu.Lock()
	s.spacing = spacing
	s.mu.Unlock()
	s.notifyState()
}

// Interval returns one stream's current period.
func (s *Scheduler) Interval(cat Category) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intervals[cat]
}

// Status snapshots the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	enabled := make(map[Category]bool, len(s.enabled))
	for k, v := range s.enabled {
		enabled[k] = v
	}
	intervals := make(map[Category]time.Duration, len(s.intervals))
	for k, v := range s.intervals {
		intervals[k] = v
	}
	st := Status{
		Running:       s.running,
		Enabled:       enabled,
		Intervals:     intervals,
		ActiveWorkers: s.activeWorkers,
	}
	s.mu.Unlock()

	st.Connected = s.sender.IsConnected()

	s.statsMu.Lock()
	st.CommandsSent = s.commandsSent
	st.SendErrors = s.sendErrors
	st.LastSendTime = s.lastSendAt
	s.statsMu.Unlock()

	return st
}

// worker runs one category loop: optional initial delay, immediate
// first batch, then batches on every interval elapse. The interval is
// re-read each cycle so runtime changes apply without a restart.
func (s *Scheduler) worker(cat Category, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	s.mu.Lock()
	delay := s.initialDelays[cat]
	s.mu.Unlock()

	if delay > 0 && !sleepInterruptible(stop, delay) {
		return
	}

	for {
		if s.CategoryEnabled(cat) && s.sender.IsConnected() {
			if !s.push(cat, stop) {
				return
			}
		}

		start := time.Now()
		for {
			interval := s.Interval(cat)
			if time.Since(start) >= interval {
				break
			}
			granularity := interval / 10
			if granularity > 100*time.Millisecond {
				granularity = 100 * time.Millisecond
			}
			if granularity < time.Millisecond {
				granularity = time.Millisecond
			}
			if !sleepInterruptible(stop, granularity) {
				return
			}
		}
	}
}

// push builds and sends one batch, pacing commands apart. Returns
// false when the stop signal fired mid-batch.
func (s *Scheduler) push(cat Category, stop <-chan struct{}) bool {
	reading := s.buildReading(cat)
	if len(reading) == 0 {
		return true
	}

	s.mu.Lock()
	spacing := s.spacing
	s.mu.Unlock()

	for i, field := range reading {
		if i > 0 && !sleepInterruptible(stop, spacing) {
			return false
		}

		cmd := FormatCommand(field.Key, field.Value)
		if err := s.sender.Send(cmd, transport.FormatASCII); err != nil {
			s.statsMu.Lock()
			s.sendErrors++
			s.statsMu.Unlock()
			s.logger.Debug("Telemetry send failed",
				zap.String("category", string(cat)),
				zap.String("key", field.Key),
				zap.Error(err),
			)
			continue
		}

		s.statsMu.Lock()
		s.commandsSent++
		s.lastSendAt = time.Now()
		s.statsMu.Unlock()
	}

	return true
}

func (s *Scheduler) buildReading(cat Category) Reading {
	switch cat {
	case CategoryTime:
		return timeReading(time.Now())
	case CategoryAPI:
		return apiReading(s.weather, s.stock)
	case CategoryPerformance:
		s.mu.Lock()
		gpuIndex := s.gpuIndex
		s.mu.Unlock()
		return performanceReading(s.hw, gpuIndex)
	default:
		return nil
	}
}

func (s *Scheduler) notifyState() {
	s.cbMu.RLock()
	fn := s.onStateChanged
	s.cbMu.RUnlock()
	if fn != nil {
		fn(s.Status())
	}
}

func sleepInterruptible(stop <-chan struct{}, d time.Duration) bool {
	select {
	case <-stop:
		return false
	case <-time.After(d):
		return true
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
